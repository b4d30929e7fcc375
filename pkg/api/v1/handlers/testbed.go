package handlers

import (
	"context"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/types"
)

// TestbedHandler handles HTTP requests for testbed lifecycle operations
type TestbedHandler struct {
	service *services.Testbed
}

// NewTestbedHandler creates a new testbed handler instance
func NewTestbedHandler(service *services.Testbed) *TestbedHandler {
	return &TestbedHandler{
		service: service,
	}
}

// GetStatus returns the status view of the fleet
func (h *TestbedHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(types.Success(h.service.Status()))
}

// ListInstances returns the current snapshot
func (h *TestbedHandler) ListInstances(c *fiber.Ctx) error {
	instances := h.service.Instances()
	return c.JSON(types.ListResponse[types.Instance]{
		Rows: instances,
		Pagination: types.PaginationResponse{
			Total: len(instances),
			Limit: len(instances),
		},
	})
}

// Deploy creates the requested number of instances in every region
func (h *TestbedHandler) Deploy(c *fiber.Ctx) error {
	quantity, err := parseQuantity(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(err.Error()))
	}
	return h.respond(c, func(ctx context.Context) (*models.Operation, error) {
		return h.service.Deploy(ctx, quantity)
	})
}

// Start activates the requested number of inactive instances in every region
func (h *TestbedHandler) Start(c *fiber.Ctx) error {
	quantity, err := parseQuantity(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(err.Error()))
	}
	return h.respond(c, func(ctx context.Context) (*models.Operation, error) {
		return h.service.Start(ctx, quantity)
	})
}

// Stop powers off the whole fleet
func (h *TestbedHandler) Stop(c *fiber.Ctx) error {
	return h.respond(c, h.service.Stop)
}

// Refresh resyncs the fleet from the provider
func (h *TestbedHandler) Refresh(c *fiber.Ctx) error {
	return h.respond(c, h.service.Refresh)
}

// Destroy deletes the whole fleet
func (h *TestbedHandler) Destroy(c *fiber.Ctx) error {
	return h.respond(c, h.service.Destroy)
}

func (h *TestbedHandler) respond(c *fiber.Ctx, fn func(context.Context) (*models.Operation, error)) error {
	op, err := fn(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(types.Success(op))
}

func parseQuantity(c *fiber.Ctx) (int, error) {
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, ErrMsgInvalidReqBody)
	}
	if req.Quantity == nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, ErrMsgQuantityRequired)
	}
	return *req.Quantity, nil
}
