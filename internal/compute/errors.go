package compute

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/celestiaorg/testbed/internal/types"
)

// ErrUnauthorized marks provider errors that retrying cannot fix, such as a revoked token
var ErrUnauthorized = errors.New("provider rejected credentials")

// ErrInvalidInstance is returned when an instance identifier cannot be understood by the backend
var ErrInvalidInstance = errors.New("invalid instance")

// IsFatal reports whether err should stop a polling loop instead of being retried
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidInstance) ||
		errors.Is(err, context.Canceled)
}

func unauthorized(err error) error {
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}

// forEachInstance runs fn for every instance concurrently and returns the first error
func forEachInstance(ctx context.Context, instances []types.Instance, fn func(context.Context, types.Instance) error) error {
	g := errgroup.Group{}
	for _, instance := range instances {
		instance := instance
		g.Go(func() error {
			return fn(ctx, instance)
		})
	}
	return g.Wait()
}
