// Package api assembles the fiber application serving the testbed API
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/celestiaorg/testbed/internal/api/middleware"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/types"
	"github.com/celestiaorg/testbed/pkg/api/v1/handlers"
	"github.com/celestiaorg/testbed/pkg/api/v1/routes"
)

// NewApp creates the fiber application for svc. m may be nil.
func NewApp(svc *services.Testbed, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.Logger())

	var gatherer prometheus.Gatherer
	if m != nil {
		gatherer = m.Registry
	}
	routes.RegisterRoutes(app,
		handlers.NewTestbedHandler(svc),
		handlers.NewOperationHandler(svc),
		gatherer,
	)
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	if code < fiber.StatusInternalServerError {
		return c.Status(code).JSON(types.ErrInvalidInput(err.Error()))
	}
	return c.Status(code).JSON(types.ErrServer(err.Error()))
}
