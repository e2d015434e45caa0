package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	authsvc "tessera-backend/internal/application/auth"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/middleware"
	"tessera-backend/internal/pkg/response"
)

// Handlers for register/login/me/logout.
type Handlers struct {
	Service     *authsvc.Service
	Rdb         *redis.Client
	Config      middleware.SessionConfig
	Development bool
}

// Register POST /api/auth/register — creates the user and starts a session.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var body authsvc.RegisterInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid request body")
	}
	user, err := h.Service.Register(c.Context(), body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	h.startSession(c, user)
	log.Info().Str("user_id", user.UserID.String()).Msg("user registered")
	return response.Created(c, fiber.Map{"user": user})
}

// Login POST /api/auth/login — verifies credentials and starts a session.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var body authsvc.LoginInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid request body")
	}
	user, err := h.Service.Login(c.Context(), body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	h.startSession(c, user)
	return response.JSON(c, fiber.Map{"user": user})
}

// Me GET /api/auth/me — returns the session user's account.
func (h *Handlers) Me(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if actor == nil {
		return response.Err(c, fiber.StatusUnauthorized, "Not authenticated")
	}
	user, err := h.Service.GetUser(c.Context(), actor.UserID.String())
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, fiber.Map{"user": user})
}

// Logout DELETE /api/auth/logout — destroys the session.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sid := middleware.GetSessionID(c)
	if sid != "" && h.Rdb != nil {
		h.Rdb.Del(context.Background(), middleware.SessionRedisPrefix+sid)
	}
	middleware.DestroySession(c)
	c.Locals("session_id", "")
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.MaxAge = -1
	c.Cookie(&cookie)
	return response.Message(c, "Logged out")
}

func (h *Handlers) startSession(c *fiber.Ctx, user *domain.User) {
	sid := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   user.UserID.String(),
		Name:     user.Name,
		Email:    user.Email,
		UserType: user.UserType,
	})
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = sid
	c.Cookie(&cookie)
}
