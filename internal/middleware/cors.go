package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tessera-backend/internal/pkg/response"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	FrontendURL string
}

// CORS allows the configured frontend origin plus localhost during
// development. Credentials allowed (cookie sessions).
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		// No origin (same-origin or tools): allow
		if origin == "" {
			return c.Next()
		}
		allowed := strings.EqualFold(origin, cfg.FrontendURL) ||
			strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:")
		if !allowed {
			return response.Err(c, fiber.StatusForbidden, "Not allowed by CORS")
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set("Access-Control-Allow-Origin", origin)
	c.Set("Access-Control-Allow-Credentials", "true")
	c.Set("Access-Control-Allow-Headers", "Content-Type")
	c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}
