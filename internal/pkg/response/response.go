package response

import (
	"github.com/gofiber/fiber/v2"

	"tessera-backend/internal/pkg/apperr"
)

// ErrorBody is the standard error shape: {"error": "..."}.
type ErrorBody struct {
	Error string `json:"error"`
}

// Err sends an error with an explicit status code.
func Err(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorBody{Error: message})
}

// FromError maps an application error to its HTTP status and sends the
// standard body. Unexpected errors are suppressed outside development so
// internal detail never reaches clients.
func FromError(c *fiber.Ctx, err error, development bool) error {
	status := apperr.StatusCode(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError && !development {
		message = "Server error"
	}
	return Err(c, status, message)
}

// JSON sends a 200 with the given payload.
func JSON(c *fiber.Ctx, payload interface{}) error {
	return c.Status(fiber.StatusOK).JSON(payload)
}

// Created sends a 201 with the given payload.
func Created(c *fiber.Ctx, payload interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(payload)
}

// Message sends a 200 with {"message": "..."}.
func Message(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": message})
}
