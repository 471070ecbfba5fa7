package router

import (
	analysissvc "github.com/Fairfood/Navigate-Server/internal/application/analysis"
	farmsvc "github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/application/report"
	analysishandler "github.com/Fairfood/Navigate-Server/internal/interfaces/handlers/analysis"
	farmhandler "github.com/Fairfood/Navigate-Server/internal/interfaces/handlers/farms"
	healthhandler "github.com/Fairfood/Navigate-Server/internal/interfaces/handlers/health"
	reporthandler "github.com/Fairfood/Navigate-Server/internal/interfaces/handlers/reports"
	"github.com/Fairfood/Navigate-Server/internal/middleware"
	"github.com/Fairfood/Navigate-Server/internal/pkg/response"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the services the HTTP surface is built on. Registry, Rdb and Sync may be nil.
type Deps struct {
	DB       *gorm.DB
	Rdb      *redis.Client
	Registry *prometheus.Registry
	Store    *analysissvc.JobStore
	Sync     analysishandler.SyncRunner
	Farms    *farmsvc.Service
	Composer *report.Composer

	AdminKey            string
	CORSAllowedSuffixes []string
	AllowLocalhost      bool
}

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

// CreateApp builds the Fiber app with global middleware and every route.
func CreateApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler(d.Rdb),
		EnableTrustedProxyCheck: true,
	})

	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffixes: d.CORSAllowedSuffixes,
		AllowLocalhost:  d.AllowLocalhost,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	if d.Rdb != nil {
		app.Use(middleware.HealthMarker(d.Rdb))
	}

	if d.Registry != nil {
		prom := fiberprometheus.NewWithRegistry(d.Registry, "navigate", "http", "", nil)
		app.Use(prom.Middleware)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	hh := &healthhandler.Handlers{Rdb: d.Rdb}
	if d.DB != nil {
		hh.DB = &gormDBPinger{db: d.DB}
	}
	if d.Store != nil {
		hh.Queue = d.Store
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", middleware.RequireAdminKey(d.AdminKey), hh.Errors)
	app.Post("/health/reset", middleware.RequireAdminKey(d.AdminKey), hh.Reset)

	api := app.Group("/api/v1")

	// Farms
	fh := &farmhandler.Handlers{Service: d.Farms}
	fg := api.Group("/farms", middleware.RequireCompany())
	fg.Post("/", fh.CreateFarm)
	fg.Get("/", fh.ListFarms)
	fg.Get("/:id", fh.GetFarm)
	fg.Patch("/:id", fh.UpdateFarm)
	fg.Post("/:id/comments", fh.AddComment)
	fg.Get("/:id/comments", fh.ListComments)

	// Analysis queue
	ah := &analysishandler.Handlers{Sync: d.Sync, Store: d.Store, Farms: d.Farms}
	ag := api.Group("/analysis")
	ag.Post("/farms/:id/reanalyze", middleware.RequireCompany(), ah.Reanalyze)
	ag.Get("/queue", middleware.RequireAdminKey(d.AdminKey), ah.ListQueue)
	if d.Sync != nil {
		ag.Post("/sync", middleware.RequireAdminKey(d.AdminKey), ah.RunSync)
	}

	// Reports
	rh := &reporthandler.Handlers{Composer: d.Composer}
	rg := api.Group("/reports", middleware.RequireCompany())
	rg.Get("/stats", rh.Stats)
	rg.Get("/compliance", rh.Compliance)
	rg.Get("/detail", rh.Detail)

	app.Use(func(c *fiber.Ctx) error {
		return response.Error(c, "Resource not found", fiber.StatusNotFound, fiber.Map{"url": c.OriginalURL()})
	})

	return app
}
