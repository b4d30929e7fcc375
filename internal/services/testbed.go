// Package services wraps the testbed engine for concurrent callers
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/db/repos"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/internal/types"
)

// ErrHistoryDisabled is returned by History when no operation repository is configured
var ErrHistoryDisabled = errors.New("operation history is disabled")

// Testbed serialises every engine call and records each lifecycle operation
type Testbed struct {
	mu         sync.Mutex
	engine     *testbed.Testbed
	operations *repos.OperationRepository
	metrics    *metrics.Metrics
}

// NewTestbedService creates a new testbed service. operationRepo and m may be nil.
func NewTestbedService(engine *testbed.Testbed, operationRepo *repos.OperationRepository, m *metrics.Metrics) *Testbed {
	s := &Testbed{engine: engine, operations: operationRepo, metrics: m}
	if m != nil {
		m.SetFleet(engine.Settings().Regions, engine.Instances())
	}
	return s
}

// Deploy creates quantity instances in every region
func (s *Testbed) Deploy(ctx context.Context, quantity int) (*models.Operation, error) {
	return s.run(ctx, models.ActionDeploy, quantity, func(ctx context.Context) error {
		return s.engine.Deploy(ctx, quantity)
	})
}

// Destroy deletes the whole fleet
func (s *Testbed) Destroy(ctx context.Context) (*models.Operation, error) {
	return s.run(ctx, models.ActionDestroy, 0, s.engine.Destroy)
}

// Start activates quantity inactive instances in every region
func (s *Testbed) Start(ctx context.Context, quantity int) (*models.Operation, error) {
	return s.run(ctx, models.ActionStart, quantity, func(ctx context.Context) error {
		return s.engine.Start(ctx, quantity)
	})
}

// Stop powers off the whole fleet
func (s *Testbed) Stop(ctx context.Context) (*models.Operation, error) {
	return s.run(ctx, models.ActionStop, 0, s.engine.Stop)
}

// Refresh resyncs the snapshot from the provider
func (s *Testbed) Refresh(ctx context.Context) (*models.Operation, error) {
	return s.run(ctx, models.ActionRefresh, 0, s.engine.Refresh)
}

// Status returns the display view of the current snapshot
func (s *Testbed) Status() testbed.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Status()
}

// Instances returns a copy of the current snapshot
func (s *Testbed) Instances() []types.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Instances()
}

// History lists the recorded operations of this testbed, most recent first
func (s *Testbed) History(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error) {
	if s.operations == nil {
		return nil, ErrHistoryDisabled
	}
	return s.operations.List(ctx, s.engine.Settings().TestbedID, opts)
}

// run executes fn under the service lock and records its outcome. The engine error is
// returned unchanged; history failures are only logged.
func (s *Testbed) run(ctx context.Context, action models.Action, quantity int, fn func(context.Context) error) (*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := &models.Operation{
		Name:      uuid.NewString(),
		TestbedID: s.engine.Settings().TestbedID,
		Provider:  s.engine.ProviderName(),
		Action:    action,
		Quantity:  quantity,
		Status:    models.OperationStatusRunning,
		StartedAt: time.Now(),
	}
	if s.operations != nil {
		if err := s.operations.Create(ctx, op); err != nil {
			logger.Warnf("Failed to record %s operation: %v", action, err)
		}
	}

	err := fn(ctx)

	finished := time.Now()
	op.FinishedAt = &finished
	op.Instances = len(s.engine.Instances())
	op.Status = models.OperationStatusCompleted
	if err != nil {
		op.Status = models.OperationStatusFailed
		op.Error = err.Error()
	}

	fields := map[string]interface{}{
		"operation": op.Name,
		"action":    action.String(),
		"quantity":  quantity,
		"status":    op.Status.String(),
		"duration":  op.Duration().String(),
		"instances": op.Instances,
	}
	switch {
	case errors.Is(err, testbed.ErrInsufficientCapacity):
		fields["error"] = err.Error()
		logger.WarnWithFields("Operation refused", fields)
	case err != nil:
		fields["error"] = err.Error()
		logger.ErrorWithFields("Operation failed", fields)
	default:
		logger.InfoWithFields("Operation completed", fields)
	}

	if s.operations != nil && op.ID != 0 {
		// record the outcome even when the caller's context was cancelled
		if uerr := s.operations.Update(context.WithoutCancel(ctx), op); uerr != nil {
			logger.Warnf("Failed to update %s operation %s: %v", action, op.Name, uerr)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(action.String(), op.Status.String(), op.Duration())
		s.metrics.SetFleet(s.engine.Settings().Regions, s.engine.Instances())
	}

	return op, err
}
