// Package config loads and validates the testbed settings
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"

	"github.com/celestiaorg/testbed/internal/constants"
)

// Default values applied when the settings file omits them
const (
	DefaultTestbedID     = "testbed"
	DefaultCloudProvider = "digitalocean"
	DefaultBranch        = "main"
)

// ConfigurationError reports unreadable or malformed configuration material such as key files
type ConfigurationError struct {
	Path string
	Err  error
}

// Error implements the error interface for ConfigurationError
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Repository describes the code under test; it is only displayed by the testbed
type Repository struct {
	URL    string `mapstructure:"url" json:"url"`
	Branch string `mapstructure:"branch" json:"branch"`
}

// Settings holds the testbed configuration. It is read-only once loaded.
type Settings struct {
	// TestbedID tags every instance so several testbeds can share a provider account
	TestbedID string `mapstructure:"testbed_id" json:"testbed_id"`
	// CloudProvider selects the compute backend
	CloudProvider string `mapstructure:"cloud_provider" json:"cloud_provider"`
	// TokenFile contains the provider API token
	TokenFile string `mapstructure:"token_file" json:"token_file"`
	// SSHPrivateKeyFile is used by every reachability check
	SSHPrivateKeyFile string `mapstructure:"ssh_private_key_file" json:"ssh_private_key_file"`
	// SSHPublicKeyFile is registered with the provider once, at construction
	SSHPublicKeyFile string `mapstructure:"ssh_public_key_file" json:"ssh_public_key_file"`
	// Regions are the deployment regions (zones for GCP); order only matters for display
	Regions []string `mapstructure:"regions" json:"regions"`
	// Specs is the provider-specific machine size
	Specs string `mapstructure:"specs" json:"specs"`
	// Image is the provider-specific OS image
	Image string `mapstructure:"image" json:"image"`
	// Project is the GCP project ID
	Project string `mapstructure:"project" json:"project,omitempty"`
	// Concurrency bounds in-flight provider calls per batch, 0 means unbounded
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`

	Repository Repository `mapstructure:"repository" json:"repository"`
}

// Load reads the settings file at path. Values may be overridden with TESTBED_* environment variables.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("testbed_id", DefaultTestbedID)
	v.SetDefault("cloud_provider", DefaultCloudProvider)
	v.SetDefault("repository.branch", DefaultBranch)

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("failed to decode settings: %w", err)}
	}

	settings.TokenFile = expandHome(settings.TokenFile)
	settings.SSHPrivateKeyFile = expandHome(settings.SSHPrivateKeyFile)
	settings.SSHPublicKeyFile = expandHome(settings.SSHPublicKeyFile)

	if err := settings.Validate(); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return &settings, nil
}

// Validate checks that the settings are complete
func (s *Settings) Validate() error {
	if s.TestbedID == "" {
		return errors.New("testbed_id is required")
	}
	if s.CloudProvider == "" {
		return errors.New("cloud_provider is required")
	}
	if len(s.Regions) == 0 {
		return errors.New("at least one region is required")
	}
	seen := make(map[string]struct{}, len(s.Regions))
	for _, region := range s.Regions {
		if region == "" {
			return errors.New("region names cannot be empty")
		}
		if _, ok := seen[region]; ok {
			return fmt.Errorf("duplicate region: %s", region)
		}
		seen[region] = struct{}{}
	}
	if s.SSHPrivateKeyFile == "" {
		return errors.New("ssh_private_key_file is required")
	}
	if s.SSHPublicKeyFile == "" {
		return errors.New("ssh_public_key_file is required")
	}
	if s.Concurrency < 0 {
		return errors.New("concurrency cannot be negative")
	}
	return nil
}

// NumberOfRegions returns the number of configured regions
func (s *Settings) NumberOfRegions() int {
	return len(s.Regions)
}

// LoadSSHPublicKey reads and validates the public key registered with the provider
func (s *Settings) LoadSSHPublicKey() (string, error) {
	// #nosec G304 -- the path comes from the operator's settings file
	data, err := os.ReadFile(s.SSHPublicKeyFile)
	if err != nil {
		return "", &ConfigurationError{Path: s.SSHPublicKeyFile, Err: fmt.Errorf("failed to read public key: %w", err)}
	}

	if _, _, _, _, err := ssh.ParseAuthorizedKey(data); err != nil {
		return "", &ConfigurationError{Path: s.SSHPublicKeyFile, Err: fmt.Errorf("failed to parse public key: %w", err)}
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadSSHPrivateKey reads and parses the private key used to reach the instances
func (s *Settings) LoadSSHPrivateKey() (ssh.Signer, error) {
	// #nosec G304 -- the path comes from the operator's settings file
	data, err := os.ReadFile(s.SSHPrivateKeyFile)
	if err != nil {
		return nil, &ConfigurationError{Path: s.SSHPrivateKeyFile, Err: fmt.Errorf("failed to read private key: %w", err)}
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, &ConfigurationError{Path: s.SSHPrivateKeyFile, Err: fmt.Errorf("failed to parse private key: %w", err)}
	}
	return signer, nil
}

// LoadToken returns the provider API token from the token file, falling back to TESTBED_PROVIDER_TOKEN
func (s *Settings) LoadToken() (string, error) {
	if s.TokenFile == "" {
		token := os.Getenv(constants.EnvProviderToken)
		if token == "" {
			return "", &ConfigurationError{
				Path: constants.EnvProviderToken,
				Err:  errors.New("no token_file configured and environment variable is not set"),
			}
		}
		return token, nil
	}

	// #nosec G304 -- the path comes from the operator's settings file
	data, err := os.ReadFile(s.TokenFile)
	if err != nil {
		return "", &ConfigurationError{Path: s.TokenFile, Err: fmt.Errorf("failed to read token: %w", err)}
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", &ConfigurationError{Path: s.TokenFile, Err: errors.New("token file is empty")}
	}
	return token, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
