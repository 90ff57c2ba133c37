package ports

import (
	"mirrord.dev/launch/internal/core/runconfig"
)

// ConfigurationRepository defines the interface for configuration persistence
type ConfigurationRepository interface {
	// Load retrieves the current configuration
	Load() (*Configuration, error)

	// Save persists the configuration
	Save(config *Configuration) error

	// LoadDefault returns the default configuration
	LoadDefault() *Configuration

	// Validate validates the configuration
	Validate(config *Configuration) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// Configuration represents the application configuration
type Configuration struct {
	// MirrordBinary is the mirrord CLI that computes launch patches
	MirrordBinary string `yaml:"mirrord_binary" json:"mirrord_binary"`

	// ExecTimeout bounds one patch computation, in seconds
	ExecTimeout int `yaml:"exec_timeout_seconds" json:"exec_timeout_seconds"`

	// ServerPort is the application server's shutdown port. The injected
	// layer must never wait on it as a debugger port.
	ServerPort string `yaml:"server_port" json:"server_port"`

	ManagedKind       string `yaml:"managed_kind" json:"managed_kind"`
	ManagedNamePrefix string `yaml:"managed_name_prefix" json:"managed_name_prefix"`
	ConfigEnvName     string `yaml:"config_env_name" json:"config_env_name"`
	Product           string `yaml:"product" json:"product"`

	// RunConfigDir holds the persisted run configurations of the local host
	RunConfigDir string `yaml:"run_config_dir" json:"run_config_dir"`

	Debug    bool   `yaml:"debug" json:"debug"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Disabled makes the exec manager decline every patch
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// RunConfigurationRepository persists the run configurations a host owns
type RunConfigurationRepository interface {
	// Load retrieves a run configuration by name
	Load(name string) (*runconfig.RunConfiguration, error)

	// Save persists a run configuration
	Save(config *runconfig.RunConfiguration) error

	// List returns the names of all stored run configurations
	List() ([]string, error)
}
