package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"tessera-backend/internal/pkg/response"
)

// DBPinger is optional; when nil the database reports disconnected.
type DBPinger interface {
	Ping() error
}

// Handlers for the health endpoint.
type Handlers struct {
	Rdb *redis.Client
	DB  DBPinger
	Env string
}

// Check GET /api/health — status, environment and dependency pings.
func (h *Handlers) Check(c *fiber.Ctx) error {
	deps := fiber.Map{}

	dbStatus := "disconnected"
	if h.DB != nil {
		if err := h.DB.Ping(); err == nil {
			dbStatus = "connected"
		} else {
			dbStatus = "error"
		}
	}
	deps["database"] = dbStatus

	redisStatus := "disconnected"
	if h.Rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.Rdb.Ping(ctx).Err(); err == nil {
			redisStatus = "connected"
		} else {
			redisStatus = "error"
		}
	}
	deps["redis"] = redisStatus

	return response.JSON(c, fiber.Map{
		"status":       "OK",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"environment":  h.Env,
		"dependencies": deps,
	})
}
