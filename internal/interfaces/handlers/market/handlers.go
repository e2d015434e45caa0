package market

import (
	"github.com/gofiber/fiber/v2"

	listsvc "tessera-backend/internal/application/listings"
	tradesvc "tessera-backend/internal/application/trading"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/middleware"
	"tessera-backend/internal/pkg/response"
)

// Handlers for the secondary market: listing CRUD plus purchases.
type Handlers struct {
	Listings    *listsvc.Service
	Trading     *tradesvc.Service
	Development bool
}

// buyRetryAttempts bounds retries when a concurrent buy wins the row
// guard first; contention is expected to be low.
const buyRetryAttempts = 3

// GetAll GET /api/market — public listing discovery.
func (h *Handlers) GetAll(c *fiber.Ctx) error {
	views, err := h.Listings.GetAll(c.Context())
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, views)
}

// GetByID GET /api/market/:id — one listing, 404 if absent.
func (h *Handlers) GetByID(c *fiber.Ctx) error {
	view, err := h.Listings.GetByListingID(c.Context(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// Create POST /api/market — posts a new listing backed by held tokens.
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body listsvc.CreateInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "All fields are required")
	}
	view, err := h.Listings.Create(c.Context(), actorUser(actor), body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.Created(c, view)
}

// Update PUT /api/market/:id — seller-or-admin partial edit.
func (h *Handlers) Update(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body listsvc.UpdateInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid request body")
	}
	view, err := h.Listings.Update(c.Context(), c.Params("id"), actor.UserID, actor.IsAdmin(), body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// Buy POST /api/market/:id/buy — settles a partial or full purchase.
func (h *Handlers) Buy(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Amount is required")
	}
	result, err := h.Trading.BuyWithRetry(c.Context(), c.Params("id"), actorUser(actor), body.Amount, buyRetryAttempts)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, result)
}

// Delete DELETE /api/market/:id — seller-or-admin cancel (tombstone).
func (h *Handlers) Delete(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	if err := h.Listings.Cancel(c.Context(), c.Params("id"), actor.UserID, actor.IsAdmin()); err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.Message(c, "Market listing cancelled successfully")
}

// GetMine GET /api/market/user/me — the caller's own listings.
func (h *Handlers) GetMine(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	views, err := h.Listings.GetBySeller(c.Context(), actor.UserID)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, views)
}

func actorUser(actor *middleware.Actor) *domain.User {
	return &domain.User{
		UserID:   actor.UserID,
		Name:     actor.Name,
		Email:    actor.Email,
		UserType: actor.UserType,
	}
}
