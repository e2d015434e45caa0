package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tessera-backend/internal/pkg/response"
)

const userLocal = "user"

// Actor is the authenticated caller extracted from the session.
type Actor struct {
	UserID   uuid.UUID
	Name     string
	Email    string
	UserType string
}

// IsAdmin reports whether the actor may act on other users' resources.
func (a *Actor) IsAdmin() bool {
	return a.UserType == "admin"
}

// RequireAuth ensures a valid user is in the session. 401 otherwise.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		if actor == nil {
			return response.Err(c, fiber.StatusUnauthorized, "Authentication required")
		}
		return c.Next()
	}
}

// RequireUserType restricts a route to the given user types; admin always
// passes. 403 otherwise.
func RequireUserType(types ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		if actor == nil {
			return response.Err(c, fiber.StatusUnauthorized, "Authentication required")
		}
		if actor.IsAdmin() {
			return c.Next()
		}
		for _, t := range types {
			if actor.UserType == t {
				return c.Next()
			}
		}
		return response.Err(c, fiber.StatusForbidden, "Access denied")
	}
}

// GetActor returns the authenticated caller, or nil if the session has no
// valid user.
func GetActor(c *fiber.Ctx) *Actor {
	m, ok := c.Locals(userLocal).(map[string]interface{})
	if !ok {
		return nil
	}
	rawID, _ := m["user_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	actor := &Actor{UserID: id}
	actor.Name, _ = m["name"].(string)
	actor.Email, _ = m["email"].(string)
	actor.UserType, _ = m["user_type"].(string)
	return actor
}
