// Package repos provides database access for the testbed records
package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/celestiaorg/testbed/internal/db/models"
)

// ErrOperationNotFound is returned when no operation matches the lookup
var ErrOperationNotFound = errors.New("operation not found")

// OperationRepository provides access to the operation history
type OperationRepository struct {
	db *gorm.DB
}

// NewOperationRepository creates a new operation repository instance
func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create creates a new operation in the database
func (r *OperationRepository) Create(ctx context.Context, op *models.Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	if op.Action == models.ActionUnknown {
		return fmt.Errorf("operation action is required")
	}
	return r.db.WithContext(ctx).Create(op).Error
}

// Update saves every field of an existing operation
func (r *OperationRepository) Update(ctx context.Context, op *models.Operation) error {
	if op.ID == 0 {
		return fmt.Errorf("operation %q has not been created", op.Name)
	}
	return r.db.WithContext(ctx).Save(op).Error
}

// GetByName retrieves an operation by its name
func (r *OperationRepository) GetByName(ctx context.Context, name string) (*models.Operation, error) {
	var op models.Operation
	err := r.db.WithContext(ctx).Where(&models.Operation{Name: name}).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return &op, nil
}

// List returns operations of a testbed, most recent first
func (r *OperationRepository) List(ctx context.Context, testbedID string, opts *models.ListOptions) ([]models.Operation, error) {
	if opts == nil {
		opts = &models.ListOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}

	qry := &models.Operation{TestbedID: testbedID, Action: opts.Action, Status: opts.Status}

	var ops []models.Operation
	err := r.db.WithContext(ctx).Model(&models.Operation{}).
		Where(qry).
		Limit(limit).Offset(opts.Offset).
		Order(models.OperationStartedAtField + " DESC").
		Order("id DESC").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// Count returns the number of operations of a testbed
func (r *OperationRepository) Count(ctx context.Context, testbedID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Operation{}).
		Where(&models.Operation{TestbedID: testbedID}).
		Count(&count).Error
	return count, err
}
