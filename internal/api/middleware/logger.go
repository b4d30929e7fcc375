// Package middleware holds the fiber middlewares of the testbed API
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/testbed/internal/logger"
)

// Logger returns a middleware that logs HTTP requests
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Continue chain
		err := c.Next()

		fields := map[string]interface{}{
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
			"ip":      c.IP(),
			"method":  c.Method(),
			"path":    c.Path(),
			"handler": c.Route().Name,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			logger.ErrorWithFields("Request", fields)
		} else {
			logger.InfoWithFields("Request", fields)
		}

		return err
	}
}
