package compute

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/constants"
)

func testSettings() *config.Settings {
	return &config.Settings{
		TestbedID:         "unit",
		CloudProvider:     ProviderFake,
		SSHPrivateKeyFile: "/keys/testbed",
		SSHPublicKeyFile:  "/keys/testbed.pub",
		Regions:           []string{"nyc1", "ams3"},
		Specs:             "s-1vcpu-1gb",
		Project:           "unit-project",
	}
}

func TestNewComputeProvider(t *testing.T) {
	t.Setenv(constants.EnvProviderToken, "test-token")

	tests := []struct {
		name     string
		provider string
		wantName string
		errMsg   string
	}{
		{name: "digitalocean", provider: ProviderDigitalOcean, wantName: ProviderDigitalOcean},
		{name: "hetzner", provider: ProviderHetzner, wantName: ProviderHetzner},
		{name: "fake", provider: ProviderFake, wantName: ProviderFake},
		{name: "unsupported", provider: "vultr", errMsg: "unsupported provider: vultr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.CloudProvider = tt.provider

			provider, err := NewComputeProvider(context.Background(), settings)
			if tt.errMsg != "" {
				assert.EqualError(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, provider.Name())
		})
	}
}

func TestNewComputeProvider_MissingToken(t *testing.T) {
	t.Setenv(constants.EnvProviderToken, "")

	settings := testSettings()
	settings.CloudProvider = ProviderDigitalOcean

	_, err := NewComputeProvider(context.Background(), settings)
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestIsValidProvider(t *testing.T) {
	for _, name := range []string{ProviderDigitalOcean, ProviderHetzner, ProviderGCP, ProviderFake} {
		assert.True(t, IsValidProvider(name), name)
	}
	assert.False(t, IsValidProvider("vultr"))
	assert.False(t, IsValidProvider(""))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(unauthorized(errors.New("bad token"))))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrInvalidInstance)))
	assert.True(t, IsFatal(context.Canceled))
	assert.False(t, IsFatal(context.DeadlineExceeded))
	assert.False(t, IsFatal(errors.New("connection reset")))
	assert.False(t, IsFatal(nil))
}
