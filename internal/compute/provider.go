// Package compute defines the cloud provider capability interface and its implementations
package compute

import (
	"context"
	"fmt"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/types"
)

// Provider names accepted in the cloud_provider setting
const (
	ProviderDigitalOcean = "digitalocean"
	ProviderHetzner      = "hetzner"
	ProviderGCP          = "gcp"
	ProviderFake         = "fake"
)

// Provider operation names, as reported in errors
const (
	OpRegisterKey = "register_key"
	OpList        = "list"
	OpCreate      = "create"
	OpDelete      = "delete"
	OpStart       = "start"
	OpStop        = "stop"
)

// Provider defines the capabilities the testbed requires from a cloud backend
type Provider interface {
	// Name returns the backend name used in status output
	Name() string

	// Username returns the login used for every SSH reachability check
	Username() string

	// RegisterSSHPublicKey uploads the public key; calling it again with the same key is a no-op
	RegisterSSHPublicKey(ctx context.Context, publicKey string) error

	// ListInstances returns every testbed instance regardless of its power state
	ListInstances(ctx context.Context) ([]types.Instance, error)

	// CreateInstance provisions one instance in region. The returned instance may still be booting.
	CreateInstance(ctx context.Context, region string) (types.Instance, error)

	// DeleteInstance permanently removes the instance, even while it transitions
	DeleteInstance(ctx context.Context, instance types.Instance) error

	// StartInstances powers on the given instances; an empty slice is a no-op
	StartInstances(ctx context.Context, instances []types.Instance) error

	// StopInstances powers off the given instances; an empty slice is a no-op
	StopInstances(ctx context.Context, instances []types.Instance) error
}

// NewComputeProvider creates the provider selected by settings.CloudProvider
func NewComputeProvider(ctx context.Context, settings *config.Settings) (Provider, error) {
	switch settings.CloudProvider {
	case ProviderDigitalOcean:
		token, err := settings.LoadToken()
		if err != nil {
			return nil, err
		}
		return NewDigitalOceanProvider(ctx, token, settings), nil
	case ProviderHetzner:
		token, err := settings.LoadToken()
		if err != nil {
			return nil, err
		}
		return NewHetznerProvider(token, settings), nil
	case ProviderGCP:
		provider, err := NewGCPProvider(ctx, settings)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case ProviderFake:
		return NewFakeProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.CloudProvider)
	}
}

// IsValidProvider checks whether the given provider name is supported
func IsValidProvider(name string) bool {
	_, ok := validProviders[name]
	return ok
}

var validProviders = map[string]struct{}{
	ProviderDigitalOcean: {}, ProviderHetzner: {}, ProviderGCP: {}, ProviderFake: {},
}
