package testbed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/ssh"
	"github.com/celestiaorg/testbed/internal/types"
)

// ready blocks until every active instance and every target is reachable over SSH
func (t *Testbed) ready(ctx context.Context, targets []string) error {
	start := time.Now()
	err := t.poll(ctx, t.pollInterval, ErrReadinessTimeout, func(ctx context.Context) error {
		instances, err := t.client.ListInstances(ctx)
		if err != nil {
			return &ProviderError{Op: compute.OpList, Err: err}
		}
		return t.reachable(ctx, instances, targets)
	}, func() {
		logger.Infof("Waiting for machines to boot (%ds)...", int(time.Since(start).Seconds()))
	})
	if err != nil {
		return err
	}

	logger.Infof("Machines are reachable after %ds", int(time.Since(start).Seconds()))
	return nil
}

// stopped polls the provider until every remaining instance is inactive and returns that listing
func (t *Testbed) stopped(ctx context.Context) ([]types.Instance, error) {
	var instances []types.Instance
	err := t.poll(ctx, t.stopPollInterval, ErrStopTimeout, func(ctx context.Context) error {
		listed, err := t.client.ListInstances(ctx)
		if err != nil {
			return &ProviderError{Op: compute.OpList, Err: err}
		}
		for _, instance := range listed {
			if !instance.IsTerminated() && !instance.IsInactive() {
				return fmt.Errorf("instance %s is still %s", instance.ID, instance.PowerStatus)
			}
		}
		instances = listed
		return nil
	}, nil)
	return instances, err
}

// reachable checks every listed instance that should be running. Targets missing from the
// listing count as not ready.
func (t *Testbed) reachable(ctx context.Context, instances []types.Instance, targets []string) error {
	pending := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		pending[id] = struct{}{}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, instance := range instances {
		_, targeted := pending[instance.ID]
		delete(pending, instance.ID)
		if instance.IsTerminated() || !(targeted || instance.IsActive()) {
			continue
		}

		instance := instance
		g.Go(func() error {
			if instance.MainIP == "" {
				return fmt.Errorf("instance %s has no address yet", instance.ID)
			}
			err := t.checker.CheckSSH(ctx, instance.SSHAddress(), t.client.Username(), t.settings.SSHPrivateKeyFile)
			if err != nil {
				return fmt.Errorf("instance %s not reachable: %w", instance.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for id := range pending {
		return fmt.Errorf("instance %s is not listed yet", id)
	}
	return nil
}

// poll retries check every interval until it succeeds or fails with a fatal error.
// It also gives up when the maximum wait elapses (timeoutErr) or ctx is done.
func (t *Testbed) poll(ctx context.Context, interval time.Duration, timeoutErr error, check func(context.Context) error, onRetry func()) error {
	pollCtx := ctx
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	var lastErr error
	err := retry.Do(
		func() error { return check(pollCtx) },
		retry.Context(pollCtx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !compute.IsFatal(err) && !errors.Is(err, ssh.ErrKeyMaterial)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			lastErr = err
			logger.DebugWithFields("Not converged yet", map[string]interface{}{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			if onRetry != nil {
				onRetry()
			}
		}),
	)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) && pollCtx.Err() != nil {
		if lastErr != nil {
			return fmt.Errorf("%w after %s: %v", timeoutErr, t.maxWait, lastErr)
		}
		return fmt.Errorf("%w after %s", timeoutErr, t.maxWait)
	}
	return err
}
