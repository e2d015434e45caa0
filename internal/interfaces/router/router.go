package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	authsvc "tessera-backend/internal/application/auth"
	listsvc "tessera-backend/internal/application/listings"
	portsvc "tessera-backend/internal/application/portfolios"
	projsvc "tessera-backend/internal/application/projects"
	tradesvc "tessera-backend/internal/application/trading"
	"tessera-backend/internal/config"
	"tessera-backend/internal/domain"
	"tessera-backend/internal/infrastructure/database"
	authhandler "tessera-backend/internal/interfaces/handlers/auth"
	healthhandler "tessera-backend/internal/interfaces/handlers/health"
	markethandler "tessera-backend/internal/interfaces/handlers/market"
	porthandler "tessera-backend/internal/interfaces/handlers/portfolios"
	projhandler "tessera-backend/internal/interfaces/handlers/projects"
	"tessera-backend/internal/middleware"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp opens the database and Redis from config and assembles the app.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, err
		}
	}

	app := NewApp(cfg, db, rdb, sessionHandler)
	return app, db, rdb, nil
}

// NewApp assembles the Fiber app from already-opened dependencies. Tests
// pass an in-memory sqlite DB and a miniredis-backed client.
func NewApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client, sessionHandler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{FrontendURL: cfg.FrontendURL}))
	app.Use(sessionHandler)
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	dev := cfg.IsDevelopment()

	hh := &healthhandler.Handlers{Rdb: rdb, Env: cfg.Env}
	if db != nil {
		hh.DB = &gormDBPinger{db: db}
	}
	app.Get("/api/health", hh.Check)

	if db == nil {
		return app
	}

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}

	// Auth
	as := &authsvc.Service{DB: db}
	ah := &authhandler.Handlers{Service: as, Rdb: rdb, Config: sessionCfg, Development: dev}
	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", ah.Register)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	// Projects
	ps := &projsvc.Service{DB: db}
	ph := &projhandler.Handlers{Service: ps, Development: dev}
	pg := app.Group("/api/projects")
	pg.Get("/", ph.GetAll)
	pg.Post("/", middleware.RequireUserType(domain.UserTypeDeveloper), ph.Create)
	pg.Get("/:id", ph.GetByID)

	// Market
	ls := &listsvc.Service{DB: db}
	ts := &tradesvc.Service{DB: db}
	mh := &markethandler.Handlers{Listings: ls, Trading: ts, Development: dev}
	mg := app.Group("/api/market")
	mg.Get("/", mh.GetAll)
	mg.Get("/user/me", middleware.RequireAuth(), mh.GetMine)
	mg.Post("/", middleware.RequireAuth(), mh.Create)
	mg.Get("/:id", mh.GetByID)
	mg.Put("/:id", middleware.RequireAuth(), mh.Update)
	mg.Post("/:id/buy", middleware.RequireAuth(), mh.Buy)
	mg.Delete("/:id", middleware.RequireAuth(), mh.Delete)

	// Portfolios
	pos := &portsvc.Service{DB: db}
	poh := &porthandler.Handlers{Service: pos, Development: dev}
	pog := app.Group("/api/portfolios", middleware.RequireAuth())
	pog.Get("/", middleware.RequireUserType(domain.UserTypeAdmin), poh.GetAll)
	pog.Get("/me", poh.GetMine)
	pog.Put("/me", poh.Update)
	pog.Post("/me/tokens", poh.AddToken)
	pog.Delete("/me/tokens/:tokenId", poh.RemoveToken)
	pog.Get("/user/:userId", poh.GetByUser)

	return app
}
