package handler

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	_ "driveprov/docs"
	"driveprov/internal/http/middleware"
	"driveprov/internal/logging"
	"driveprov/internal/model"
	"driveprov/internal/repository"
	"driveprov/internal/service"
	"driveprov/internal/storage"
)

// Runner performs one provisioning run.
type Runner interface {
	Run(ctx context.Context) (model.ProvisionResult, error)
}

// RunnerFactory builds a Runner that narrates into log.
type RunnerFactory func(log service.Logger) Runner

// Deps are the collaborators the routes need. DB and Runs are nil when the ledger is disabled.
type Deps struct {
	Store     storage.Store
	DB        *sql.DB
	Runs      repository.RunRepository
	NewRunner RunnerFactory
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
}

// ProvisionResponse is the body of a successful POST /provision.
type ProvisionResponse struct {
	Result   model.ProvisionResult `json:"result"`
	Guidance []string              `json:"guidance"`
}

// RunListResponse is the body of GET /runs.
type RunListResponse struct {
	Items []model.ProvisionRun `json:"data"`
	Total int                  `json:"total"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.Store, d.DB))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	app.Post("/provision", Provision(d.NewRunner, d.Logger))
	if d.Runs != nil {
		app.Get("/runs", ListRuns(d.Runs))
	}
	app.Get("/swagger/*", SwaggerUI())
}

// SwaggerUI serves the API docs. The spec leaves host and schemes empty so the UI
// targets whatever host and scheme served it, including behind a proxy.
func SwaggerUI() fiber.Handler {
	return swagger.HandlerDefault
}

// HealthCheck reports healthy when the store root resolves and, if configured, the ledger answers a ping.
//
//	@Summary	Readiness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	errorPayload
//	@Router		/health [get]
func HealthCheck(store storage.Store, db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		if _, err := store.Root(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Success	200
//	@Router		/healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Provision runs the provisioner once per request. Runs are serialised within this
// process; the store has no create-if-absent primitive, so overlapping runs could
// otherwise both create the same resource.
//
//	@Summary		Run provisioning once
//	@Description	Ensures the folder and the template spreadsheet exist and returns their identifiers with the follow-up instructions.
//	@Tags			provision
//	@Produce		json
//	@Success		200	{object}	ProvisionResponse
//	@Failure		500	{object}	errorPayload
//	@Failure		502	{object}	errorPayload
//	@Router			/provision [post]
func Provision(newRunner RunnerFactory, logger zerolog.Logger) fiber.Handler {
	var mu sync.Mutex
	sink := logging.NewSink(logger)

	return func(c *fiber.Ctx) error {
		mu.Lock()
		defer mu.Unlock()

		ctx := c.UserContext()
		lines := logging.NewLines(sink)
		res, err := newRunner(lines).Run(ctx)
		if err != nil {
			logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(ctx)).Msg("provision failed")
			return writeRunError(c, err)
		}
		return c.JSON(ProvisionResponse{Result: res, Guidance: lines.Lines()})
	}
}

// ListRuns returns ledger rows with limit & offset.
//
//	@Summary	List provisioning runs
//	@Tags		runs
//	@Produce	json
//	@Param		limit	query		int	false	"Page size (1-100)"	default(10)
//	@Param		offset	query		int	false	"Rows to skip"		default(0)
//	@Success	200		{object}	RunListResponse
//	@Failure	400		{object}	errorPayload
//	@Router		/runs [get]
func ListRuns(runs repository.RunRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		if limit <= 0 || limit > 100 {
			limit = 10
		}
		if offset < 0 {
			offset = 0
		}

		res, err := runs.List(c.UserContext(), repository.PageQuery{Limit: limit, Offset: offset})
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(RunListResponse{Items: res.Items, Total: res.Total})
	}
}
