package portfolios

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	portsvc "tessera-backend/internal/application/portfolios"
	"tessera-backend/internal/middleware"
	"tessera-backend/internal/pkg/response"
)

// Handlers for portfolio reads and owner mutations.
type Handlers struct {
	Service     *portsvc.Service
	Development bool
}

// GetMine GET /api/portfolios/me — lazily creates an empty portfolio.
func (h *Handlers) GetMine(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	view, err := h.Service.GetOrCreateView(c.Context(), actor.UserID)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// GetByUser GET /api/portfolios/user/:userId — admin or the owner only.
func (h *Handlers) GetByUser(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid user id")
	}
	if !actor.IsAdmin() && actor.UserID != userID {
		return response.Err(c, fiber.StatusForbidden, "Access denied")
	}
	view, err := h.Service.GetByUser(c.Context(), userID)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// GetAll GET /api/portfolios — admin only.
func (h *Handlers) GetAll(c *fiber.Ctx) error {
	views, err := h.Service.ListAll(c.Context())
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, views)
}

// Update PUT /api/portfolios/me — allow-listed wholesale update.
func (h *Handlers) Update(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body portsvc.UpdateInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid request body")
	}
	view, err := h.Service.Update(c.Context(), actor.UserID, body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// AddToken POST /api/portfolios/me/tokens — appends a held entry.
func (h *Handlers) AddToken(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body portsvc.TokenInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid request body")
	}
	view, err := h.Service.AddToken(c.Context(), actor.UserID, body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// RemoveToken DELETE /api/portfolios/me/tokens/:tokenId — full removal,
// or a decrement when ?amount= is given.
func (h *Handlers) RemoveToken(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var amount *float64
	if raw := c.Query("amount"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return response.Err(c, fiber.StatusBadRequest, "Amount must be a positive number")
		}
		amount = &parsed
	}
	view, err := h.Service.RemoveToken(c.Context(), actor.UserID, c.Params("tokenId"), amount)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}
