package handlers

import (
	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/types"
)

// DefaultPageSize is the number of operations returned when no limit is given
const DefaultPageSize = models.DefaultLimit

// OperationHandler handles HTTP requests for the operation history
type OperationHandler struct {
	service *services.Testbed
}

// NewOperationHandler creates a new operation handler instance
func NewOperationHandler(service *services.Testbed) *OperationHandler {
	return &OperationHandler{
		service: service,
	}
}

// ListOperations returns recorded operations, most recent first
func (h *OperationHandler) ListOperations(c *fiber.Ctx) error {
	var opts models.ListOptions
	opts.Limit = c.QueryInt("limit", DefaultPageSize)
	opts.Offset = c.QueryInt("offset", 0)
	if opts.Limit < 0 || opts.Offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgNegativePagination))
	}

	if actionStr := c.Query("action"); actionStr != "" {
		action, err := models.ParseAction(actionStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidAction))
		}
		opts.Action = action
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status, err := models.ParseOperationStatus(statusStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidStatus))
		}
		opts.Status = status
	}

	ops, err := h.service.History(c.UserContext(), &opts)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(types.ListResponse[models.Operation]{
		Rows: ops,
		Pagination: types.PaginationResponse{
			Total:  len(ops),
			Limit:  opts.Limit,
			Offset: opts.Offset,
		},
	})
}
