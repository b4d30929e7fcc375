// Package handlers provides HTTP request handling
package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/internal/types"
)

// Common error messages
const (
	ErrMsgInvalidReqBody     = "Invalid request body"
	ErrMsgQuantityRequired   = "Quantity is required"
	ErrMsgInvalidAction      = "Invalid action"
	ErrMsgInvalidStatus      = "Invalid operation status"
	ErrMsgNegativePagination = "Limit and offset must not be negative"
	ErrMsgHistoryDisabled    = "Operation history is disabled"
)

// writeError maps an engine error to its HTTP status
func writeError(c *fiber.Ctx, err error) error {
	var capacityErr *testbed.InsufficientCapacityError
	switch {
	case errors.As(err, &capacityErr):
		return c.Status(fiber.StatusConflict).JSON(types.SlugResponse{
			Slug:  types.InsufficientCapacitySlug,
			Error: err.Error(),
			Data:  capacityErr.Deficits,
		})
	case errors.Is(err, testbed.ErrInvalidQuantity):
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(err.Error()))
	case errors.Is(err, services.ErrHistoryDisabled):
		return c.Status(fiber.StatusNotFound).JSON(types.ErrInvalidInput(ErrMsgHistoryDisabled))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrServer(err.Error()))
	}
}
