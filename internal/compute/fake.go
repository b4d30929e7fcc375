package compute

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/celestiaorg/testbed/internal/types"
)

// ErrFakeCreateFailed is returned by FakeProvider once its create budget is exhausted
var ErrFakeCreateFailed = errors.New("fake provider: create failed")

// FakeProvider is an in-memory Provider. Instance IDs are assigned sequentially ("0", "1", ...)
// and new instances come up powered off, so callers control activation explicitly.
type FakeProvider struct {
	mu sync.Mutex

	nextID    int
	instances []types.Instance
	keys      []string
	calls     map[string]int

	// createBudget is the number of creates allowed before failing, negative means unlimited
	createBudget int
	// stopLag is the number of listings an instance keeps reporting booting after a stop
	stopLag      int
	pendingStops map[string]int
	authFailure  bool
}

// NewFakeProvider creates an empty in-memory provider
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		calls:        make(map[string]int),
		createBudget: -1,
		pendingStops: make(map[string]int),
	}
}

// Name implements Provider.Name
func (f *FakeProvider) Name() string {
	return ProviderFake
}

// Username implements Provider.Username
func (f *FakeProvider) Username() string {
	return "root"
}

// SimulateAuthenticationFailure makes every subsequent call fail with ErrUnauthorized
func (f *FakeProvider) SimulateAuthenticationFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authFailure = true
}

// SimulateCreateFailure lets `succeed` more creates through, then fails every following create
func (f *FakeProvider) SimulateCreateFailure(succeed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createBudget = succeed
}

// SimulateSlowStop keeps stopped instances in the booting state for the given number of listings
func (f *FakeProvider) SimulateSlowStop(listings int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLag = listings
}

// ResetToStandard clears every simulated failure
func (f *FakeProvider) ResetToStandard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authFailure = false
	f.createBudget = -1
	f.stopLag = 0
}

// CallCount returns how many times the given operation was invoked
func (f *FakeProvider) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// RegisteredKeys returns the distinct public keys registered so far
func (f *FakeProvider) RegisteredKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// RegisterSSHPublicKey implements Provider.RegisterSSHPublicKey
func (f *FakeProvider) RegisterSSHPublicKey(_ context.Context, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpRegisterKey); err != nil {
		return err
	}

	for _, key := range f.keys {
		if key == publicKey {
			return nil
		}
	}
	f.keys = append(f.keys, publicKey)
	return nil
}

// ListInstances implements Provider.ListInstances
func (f *FakeProvider) ListInstances(_ context.Context) ([]types.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpList); err != nil {
		return nil, err
	}

	for id, remaining := range f.pendingStops {
		if remaining <= 0 {
			f.setStatus(id, types.PowerStatusInactive)
			delete(f.pendingStops, id)
			continue
		}
		f.pendingStops[id] = remaining - 1
	}
	return append([]types.Instance(nil), f.instances...), nil
}

// CreateInstance implements Provider.CreateInstance
func (f *FakeProvider) CreateInstance(_ context.Context, region string) (types.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpCreate); err != nil {
		return types.Instance{}, err
	}

	if f.createBudget == 0 {
		return types.Instance{}, ErrFakeCreateFailed
	}
	if f.createBudget > 0 {
		f.createBudget--
	}

	id := f.nextID
	f.nextID++
	instance := types.Instance{
		ID:          strconv.Itoa(id),
		Name:        fmt.Sprintf("fake-%d", id),
		Region:      region,
		MainIP:      fmt.Sprintf("10.0.%d.%d", id/256, id%256),
		PowerStatus: types.PowerStatusInactive,
	}
	f.instances = append(f.instances, instance)
	return instance, nil
}

// DeleteInstance implements Provider.DeleteInstance
func (f *FakeProvider) DeleteInstance(_ context.Context, instance types.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpDelete); err != nil {
		return err
	}

	for i, existing := range f.instances {
		if existing.ID == instance.ID {
			f.instances = append(f.instances[:i], f.instances[i+1:]...)
			delete(f.pendingStops, instance.ID)
			return nil
		}
	}
	return fmt.Errorf("%w: instance %s not found", ErrInvalidInstance, instance.ID)
}

// StartInstances implements Provider.StartInstances
func (f *FakeProvider) StartInstances(_ context.Context, instances []types.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpStart); err != nil {
		return err
	}

	for _, instance := range instances {
		if !f.setStatus(instance.ID, types.PowerStatusActive) {
			return fmt.Errorf("%w: instance %s not found", ErrInvalidInstance, instance.ID)
		}
		delete(f.pendingStops, instance.ID)
	}
	return nil
}

// StopInstances implements Provider.StopInstances
func (f *FakeProvider) StopInstances(_ context.Context, instances []types.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpStop); err != nil {
		return err
	}

	for _, instance := range instances {
		if f.stopLag > 0 {
			if !f.exists(instance.ID) {
				return fmt.Errorf("%w: instance %s not found", ErrInvalidInstance, instance.ID)
			}
			f.setStatus(instance.ID, types.PowerStatusBooting)
			f.pendingStops[instance.ID] = f.stopLag
			continue
		}
		if !f.setStatus(instance.ID, types.PowerStatusInactive) {
			return fmt.Errorf("%w: instance %s not found", ErrInvalidInstance, instance.ID)
		}
	}
	return nil
}

// begin records the call and applies simulated credential failures. Callers hold f.mu.
func (f *FakeProvider) begin(op string) error {
	f.calls[op]++
	if f.authFailure {
		return unauthorized(errors.New("fake provider: authentication failed"))
	}
	return nil
}

func (f *FakeProvider) setStatus(id string, status types.PowerStatus) bool {
	for i := range f.instances {
		if f.instances[i].ID == id {
			f.instances[i].PowerStatus = status
			return true
		}
	}
	return false
}

func (f *FakeProvider) exists(id string) bool {
	for _, instance := range f.instances {
		if instance.ID == id {
			return true
		}
	}
	return false
}
