package testbed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientCapacity is matched by every *InsufficientCapacityError
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrInvalidQuantity is returned for negative per-region quantities
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	// ErrReadinessTimeout is returned when the fleet does not become reachable within the maximum wait
	ErrReadinessTimeout = errors.New("timed out waiting for instances to become reachable")
	// ErrStopTimeout is returned when the fleet does not report inactive within the maximum wait
	ErrStopTimeout = errors.New("timed out waiting for instances to stop")
)

// Deficit is the shortfall of inactive instances in one region
type Deficit struct {
	Region  string `json:"region"`
	Missing int    `json:"missing"`
}

// InsufficientCapacityError lists every region that cannot satisfy a start request
type InsufficientCapacityError struct {
	Deficits []Deficit
}

// Error implements the error interface for InsufficientCapacityError
func (e *InsufficientCapacityError) Error() string {
	parts := make([]string, 0, len(e.Deficits))
	for _, d := range e.Deficits {
		parts = append(parts, fmt.Sprintf("%s missing %d", d.Region, d.Missing))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientCapacity, strings.Join(parts, ", "))
}

// Is reports whether target is ErrInsufficientCapacity
func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// ProviderError reports a failed provider call
type ProviderError struct {
	Op  string
	Err error
}

// Error implements the error interface for ProviderError
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying provider error
func (e *ProviderError) Unwrap() error {
	return e.Err
}
