package middleware

import (
	"github.com/gofiber/fiber/v2"

	"tessera-backend/internal/pkg/response"
)

// ErrorHandler is the global error handler. Returns the standard
// {"error": "..."} shape for anything that escapes a handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return response.Err(c, code, message)
}
