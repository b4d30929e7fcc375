// Package constants provides centralized definitions of constants used throughout the application
package constants

// Environment variable names
const (
	// EnvPrefix is the prefix viper uses when overriding settings from the environment
	EnvPrefix = "TESTBED"

	// EnvProviderToken holds the cloud provider API token when no token file is configured
	EnvProviderToken = "TESTBED_PROVIDER_TOKEN"

	// EnvLogLevel selects the logrus level (trace, debug, info, warn, error)
	EnvLogLevel = "TESTBED_LOG_LEVEL"

	// EnvLogFormat selects the log formatter ("text" or "json")
	EnvLogFormat = "TESTBED_LOG_FORMAT"

	// EnvSettingsFile points the CLI at a settings file when --settings is not passed
	EnvSettingsFile = "TESTBED_SETTINGS"

	// EnvServerAddress points the CLI at a running testbed server instead of driving the provider directly
	EnvServerAddress = "TESTBED_SERVER_ADDRESS"

	// EnvDatabase is the operation history sqlite file used when --db is not passed
	EnvDatabase = "TESTBED_DB"
)
