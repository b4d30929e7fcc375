// Package testbed drives the lifecycle of a region-spread fleet of cloud instances
package testbed

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/ssh"
	"github.com/celestiaorg/testbed/internal/types"
)

const (
	// DefaultPollInterval is the delay between two readiness checks
	DefaultPollInterval = 5 * time.Second
	// DefaultStopPollInterval is the delay between two listings while waiting for a stop
	DefaultStopPollInterval = time.Second
)

// Option configures a Testbed
type Option func(*Testbed)

// WithSSHChecker replaces the reachability checker
func WithSSHChecker(checker ssh.Checker) Option {
	return func(t *Testbed) {
		t.checker = checker
	}
}

// WithPollInterval sets the delay between two readiness checks
func WithPollInterval(interval time.Duration) Option {
	return func(t *Testbed) {
		t.pollInterval = interval
	}
}

// WithStopPollInterval sets the delay between two listings while waiting for a stop
func WithStopPollInterval(interval time.Duration) Option {
	return func(t *Testbed) {
		t.stopPollInterval = interval
	}
}

// WithMaxWait bounds every convergence loop. Zero waits forever.
func WithMaxWait(maxWait time.Duration) Option {
	return func(t *Testbed) {
		t.maxWait = maxWait
	}
}

// Testbed owns the fleet snapshot and drives lifecycle changes through the provider.
// It is not safe for concurrent use.
type Testbed struct {
	settings *config.Settings
	client   compute.Provider
	checker  ssh.Checker

	pollInterval     time.Duration
	stopPollInterval time.Duration
	maxWait          time.Duration

	// instances is replaced wholesale, never patched
	instances []types.Instance
}

// New validates the configured key pair, registers the public key with the provider and
// loads the current fleet
func New(ctx context.Context, settings *config.Settings, client compute.Provider, opts ...Option) (*Testbed, error) {
	t := &Testbed{
		settings:         settings,
		client:           client,
		checker:          ssh.NewDefaultChecker(),
		pollInterval:     DefaultPollInterval,
		stopPollInterval: DefaultStopPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}

	if _, err := settings.LoadSSHPrivateKey(); err != nil {
		return nil, err
	}
	publicKey, err := settings.LoadSSHPublicKey()
	if err != nil {
		return nil, err
	}
	if err := client.RegisterSSHPublicKey(ctx, publicKey); err != nil {
		return nil, &ProviderError{Op: compute.OpRegisterKey, Err: err}
	}
	if err := t.Refresh(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Instances returns a copy of the current snapshot
func (t *Testbed) Instances() []types.Instance {
	return append([]types.Instance(nil), t.instances...)
}

// Username returns the login used to reach the instances
func (t *Testbed) Username() string {
	return t.client.Username()
}

// ProviderName returns the name of the bound provider
func (t *Testbed) ProviderName() string {
	return t.client.Name()
}

// Settings returns the testbed settings
func (t *Testbed) Settings() *config.Settings {
	return t.settings
}

// Refresh replaces the snapshot with the provider's current listing
func (t *Testbed) Refresh(ctx context.Context) error {
	instances, err := t.client.ListInstances(ctx)
	if err != nil {
		return &ProviderError{Op: compute.OpList, Err: err}
	}
	t.instances = instances
	return nil
}

// Deploy creates quantity instances in every region, waits until they are reachable and
// refreshes the snapshot. The first failing create is returned; instances created by the
// other calls are kept.
func (t *Testbed) Deploy(ctx context.Context, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	logger.Infof("Populating testbed with %d instances per region", quantity)

	regions := t.settings.Regions
	created := make([]string, quantity*len(regions))
	err := t.fanOut(len(created), func(i int) error {
		instance, err := t.client.CreateInstance(ctx, regions[i/quantity])
		if err != nil {
			return err
		}
		created[i] = instance.ID
		return nil
	})
	if err != nil {
		return &ProviderError{Op: compute.OpCreate, Err: err}
	}

	if err := t.ready(ctx, created); err != nil {
		return err
	}
	return t.Refresh(ctx)
}

// Destroy deletes every instance of the snapshot and empties it
func (t *Testbed) Destroy(ctx context.Context) error {
	instances := t.instances
	logger.Infof("Destroying %d instances", len(instances))

	err := t.fanOut(len(instances), func(i int) error {
		return t.client.DeleteInstance(ctx, instances[i])
	})
	if err != nil {
		return &ProviderError{Op: compute.OpDelete, Err: err}
	}

	t.instances = nil
	return nil
}

// Start activates quantity inactive instances in every region. When any region lacks
// capacity an *InsufficientCapacityError is returned and nothing is started.
func (t *Testbed) Start(ctx context.Context, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	selected, deficits := SelectInactive(t.instances, t.settings.Regions, quantity)
	if len(deficits) > 0 {
		return &InsufficientCapacityError{Deficits: deficits}
	}

	logger.Infof("Starting %d instances per region", quantity)
	if err := t.client.StartInstances(ctx, selected); err != nil {
		return &ProviderError{Op: compute.OpStart, Err: err}
	}

	targets := make([]string, 0, len(selected))
	for _, instance := range selected {
		targets = append(targets, instance.ID)
	}
	if err := t.ready(ctx, targets); err != nil {
		return err
	}
	return t.Refresh(ctx)
}

// Stop powers off the whole fleet and waits until the provider reports it inactive
func (t *Testbed) Stop(ctx context.Context) error {
	running := make([]types.Instance, 0, len(t.instances))
	for _, instance := range t.instances {
		if !instance.IsTerminated() {
			running = append(running, instance)
		}
	}

	logger.Infof("Stopping %d instances", len(running))
	if err := t.client.StopInstances(ctx, running); err != nil {
		return &ProviderError{Op: compute.OpStop, Err: err}
	}

	instances, err := t.stopped(ctx)
	if err != nil {
		return err
	}
	t.instances = instances
	return nil
}

// fanOut runs fn for every index concurrently, bounded by the concurrency setting.
// Once a call fails, goroutines that have not yet invoked fn skip it. Without a limit
// every goroutine is already launched, so only calls that had not started are skipped.
// Calls already in flight complete.
func (t *Testbed) fanOut(n int, fn func(i int) error) error {
	var g errgroup.Group
	if t.settings.Concurrency > 0 {
		g.SetLimit(t.settings.Concurrency)
	}

	var failed atomic.Bool
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := fn(i); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
