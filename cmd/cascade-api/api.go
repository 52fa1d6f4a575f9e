// Package main provides the Cascade API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/cascadehq/cascade/pkg/analytics"
	"github.com/cascadehq/cascade/pkg/auth"
	"github.com/cascadehq/cascade/pkg/cmd"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/execution"
	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/services"
	"github.com/cascadehq/cascade/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	checker     auth.Checker
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	authTokens string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    cmd.NewRegistry(logger, nil, cmd.NewAdapterRegistry(), nil),
		eventBus:    eventBus,
		checker:     newChecker(authTokens),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// newChecker parses the static token table from the "token:org:role" comma
// separated form. An empty table means auth terminates upstream and every
// caller is an admin.
func newChecker(authTokens string) auth.Checker {
	if authTokens == "" {
		return auth.AllowAll{Role: auth.RoleAdmin}
	}

	tokens := make(map[string]map[string]auth.Role)

	for _, grant := range strings.Split(authTokens, ",") {
		parts := strings.SplitN(strings.TrimSpace(grant), ":", 3)
		if len(parts) != 3 {
			continue
		}

		token, organizationID, role := parts[0], parts[1], auth.Role(parts[2])
		if tokens[token] == nil {
			tokens[token] = make(map[string]auth.Role)
		}

		tokens[token][organizationID] = role
	}

	return &auth.StaticChecker{Tokens: tokens}
}

func (a *API) App() *fiber.App {
	orchestrator := execution.NewOrchestrator(a.logger, a.persistence, a.registry, a.eventBus)

	workflowService := services.NewWorkflow(a.persistence)
	graphService := services.NewGraph(a.persistence, a.registry)
	triggerService := services.NewTrigger(a.persistence)
	executionService := services.NewExecution(a.persistence, orchestrator)
	aggregator := analytics.NewAggregator(a.logger, a.persistence)

	handlers := web.NewAPIHandlers(
		a.logger,
		workflowService,
		graphService,
		triggerService,
		executionService,
		aggregator,
		a.registry,
		a.checker,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.BearerToken())

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cascade API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
