package projects

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	projsvc "tessera-backend/internal/application/projects"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/middleware"
	"tessera-backend/internal/pkg/response"
)

// Handlers for project reads plus developer creation.
type Handlers struct {
	Service     *projsvc.Service
	Development bool
}

// GetAll GET /api/projects — public.
func (h *Handlers) GetAll(c *fiber.Ctx) error {
	views, err := h.Service.GetAll(c.Context())
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, views)
}

// GetByID GET /api/projects/:id — public, 404 if absent.
func (h *Handlers) GetByID(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Err(c, fiber.StatusBadRequest, "Invalid project id")
	}
	view, err := h.Service.GetByID(c.Context(), projectID)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.JSON(c, view)
}

// Create POST /api/projects — developer-or-admin.
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	var body projsvc.CreateInput
	if err := c.BodyParser(&body); err != nil {
		return response.Err(c, fiber.StatusBadRequest, "All fields are required")
	}
	developer := &domain.User{UserID: actor.UserID, Name: actor.Name, Email: actor.Email, UserType: actor.UserType}
	project, err := h.Service.Create(c.Context(), developer, body)
	if err != nil {
		return response.FromError(c, err, h.Development)
	}
	return response.Created(c, project)
}
