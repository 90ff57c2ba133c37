package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"mirrord.dev/launch/internal/application/ports"
)

const (
	// AppName names the configuration and data directories
	AppName = "mirrord-launch"

	// ConfigFileEnv overrides the configuration file location
	ConfigFileEnv = "MIRRORD_LAUNCH_CONFIG_FILE"

	// ServerPortEnv overrides the application server's shutdown port
	ServerPortEnv = "MIRRORD_TOMCAT_SERVER_PORT"
)

// CompositeConfigRepository implements the ConfigurationRepository interface
type CompositeConfigRepository struct {
	mu         sync.Mutex
	sources    []ConfigSource
	cache      *ConfigCache
	configPath string
	logger     ports.LoggingGateway
}

// ConfigSource defines the interface for configuration sources
type ConfigSource interface {
	Load() (*ports.Configuration, error)
	Priority() int
	Name() string
}

// ConfigCache provides caching for configuration
type ConfigCache struct {
	config    *ports.Configuration
	timestamp time.Time
	ttl       time.Duration
}

// NewCompositeConfigRepository creates a repository reading the environment
// and the YAML file at configPath. An empty configPath falls back to
// MIRRORD_LAUNCH_CONFIG_FILE, then to the XDG config directory.
func NewCompositeConfigRepository(configPath string) *CompositeConfigRepository {
	if configPath == "" {
		configPath = os.Getenv(ConfigFileEnv)
	}
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	repo := &CompositeConfigRepository{
		cache:      &ConfigCache{ttl: 5 * time.Minute},
		configPath: configPath,
	}
	repo.AddSource(NewEnvironmentConfigSource())
	repo.AddSource(NewFileConfigSource(configPath))
	return repo
}

// AddSource adds a configuration source
func (r *CompositeConfigRepository) AddSource(source ConfigSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	r.cache.config = nil
}

// SetLogger sets the gateway that reports sources skipped while loading
func (r *CompositeConfigRepository) SetLogger(logger ports.LoggingGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Load merges every source over the defaults. Sources with a lower priority
// number win. A source that fails to load is skipped.
func (r *CompositeConfigRepository) Load() (*ports.Configuration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.config != nil && time.Since(r.cache.timestamp) < r.cache.ttl {
		cached := *r.cache.config
		return &cached, nil
	}

	config := r.LoadDefault()

	sorted := make([]ConfigSource, len(r.sources))
	copy(sorted, r.sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})

	for _, source := range sorted {
		sourceConfig, err := source.Load()
		if err != nil {
			if r.logger != nil {
				r.logger.LogError(err, "Skipping configuration source", map[string]interface{}{
					"source": source.Name(),
				})
			}
			continue
		}
		config = mergeConfigurations(config, sourceConfig)
	}

	if err := r.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	r.cache.config = config
	r.cache.timestamp = time.Now()

	result := *config
	return &result, nil
}

// Save persists the configuration as YAML
func (r *CompositeConfigRepository) Save(config *ports.Configuration) error {
	if err := r.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(r.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	r.mu.Lock()
	r.cache.config = nil
	r.mu.Unlock()
	return nil
}

// LoadDefault returns the default configuration
func (r *CompositeConfigRepository) LoadDefault() *ports.Configuration {
	return &ports.Configuration{
		MirrordBinary:     "mirrord",
		ExecTimeout:       60,
		ServerPort:        "8005",
		ManagedKind:       "tomcat",
		ManagedNamePrefix: "Tomcat",
		ConfigEnvName:     "MIRRORD_CONFIG_FILE",
		Product:           "idea",
		RunConfigDir:      DefaultRunConfigDir(),
		Debug:             false,
		LogLevel:          "info",
		Disabled:          false,
	}
}

// Validate validates the configuration
func (r *CompositeConfigRepository) Validate(config *ports.Configuration) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if config.MirrordBinary == "" {
		return fmt.Errorf("mirrord binary is required")
	}

	if config.ExecTimeout <= 0 {
		return fmt.Errorf("exec timeout must be greater than 0")
	}

	port, err := strconv.Atoi(config.ServerPort)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server port must be a number between 1 and 65535, got %q", config.ServerPort)
	}

	if config.ConfigEnvName == "" {
		return fmt.Errorf("config environment variable name is required")
	}

	if config.Product == "" {
		return fmt.Errorf("product is required")
	}

	if config.RunConfigDir == "" {
		return fmt.Errorf("run configuration directory is required")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		if config.LogLevel == level {
			return nil
		}
	}
	return fmt.Errorf("log level must be one of: %s", strings.Join(validLevels, ", "))
}

// GetConfigPath returns the path to the configuration file
func (r *CompositeConfigRepository) GetConfigPath() string {
	return r.configPath
}

// mergeConfigurations merges two configurations (source overwrites target)
func mergeConfigurations(target, source *ports.Configuration) *ports.Configuration {
	if source == nil {
		return target
	}
	if target == nil {
		return source
	}

	result := *target

	if source.MirrordBinary != "" {
		result.MirrordBinary = source.MirrordBinary
	}
	if source.ExecTimeout != 0 {
		result.ExecTimeout = source.ExecTimeout
	}
	if source.ServerPort != "" {
		result.ServerPort = source.ServerPort
	}
	if source.ManagedKind != "" {
		result.ManagedKind = source.ManagedKind
	}
	if source.ManagedNamePrefix != "" {
		result.ManagedNamePrefix = source.ManagedNamePrefix
	}
	if source.ConfigEnvName != "" {
		result.ConfigEnvName = source.ConfigEnvName
	}
	if source.Product != "" {
		result.Product = source.Product
	}
	if source.RunConfigDir != "" {
		result.RunConfigDir = source.RunConfigDir
	}
	if source.LogLevel != "" {
		result.LogLevel = source.LogLevel
	}

	// Boolean fields can only be switched on by a source
	if source.Debug {
		result.Debug = true
	}
	if source.Disabled {
		result.Disabled = true
	}

	return &result
}

// FileConfigSource loads configuration from a YAML file
type FileConfigSource struct {
	filePath string
}

// NewFileConfigSource creates a new file configuration source
func NewFileConfigSource(filePath string) *FileConfigSource {
	return &FileConfigSource{filePath: filePath}
}

// Load loads configuration from file. A missing file yields a nil config.
func (f *FileConfigSource) Load() (*ports.Configuration, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ports.Configuration
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", f.filePath, err)
	}
	return &config, nil
}

// Priority returns the priority of this source (lower number = higher priority)
func (f *FileConfigSource) Priority() int {
	return 100
}

// Name returns the name of this source
func (f *FileConfigSource) Name() string {
	return "file"
}

// EnvironmentConfigSource loads configuration from environment variables
type EnvironmentConfigSource struct {
	lookup func(string) (string, bool)
}

// NewEnvironmentConfigSource creates a source reading the process environment
func NewEnvironmentConfigSource() *EnvironmentConfigSource {
	return &EnvironmentConfigSource{lookup: os.LookupEnv}
}

// NewEnvironmentConfigSourceFrom creates a source reading a fixed mapping
func NewEnvironmentConfigSourceFrom(env map[string]string) *EnvironmentConfigSource {
	return &EnvironmentConfigSource{lookup: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}
}

func (e *EnvironmentConfigSource) getenv(name string) string {
	v, _ := e.lookup(name)
	return strings.TrimSpace(v)
}

// Load loads configuration from environment variables
func (e *EnvironmentConfigSource) Load() (*ports.Configuration, error) {
	config := &ports.Configuration{}

	if val := e.getenv("MIRRORD_BINARY"); val != "" {
		config.MirrordBinary = val
	}
	if val := e.getenv("MIRRORD_LAUNCH_EXEC_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			config.ExecTimeout = timeout
		}
	}
	if val := e.getenv(ServerPortEnv); val != "" {
		config.ServerPort = val
	}
	if val := e.getenv("MIRRORD_LAUNCH_PRODUCT"); val != "" {
		config.Product = val
	}
	if val := e.getenv("MIRRORD_LAUNCH_RUN_CONFIG_DIR"); val != "" {
		config.RunConfigDir = val
	}
	if val := e.getenv("MIRRORD_LAUNCH_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(val)
	}
	if isTrue(e.getenv("MIRRORD_LAUNCH_DEBUG")) {
		config.Debug = true
		config.LogLevel = "debug"
	}
	if isTrue(e.getenv("MIRRORD_LAUNCH_DISABLED")) {
		config.Disabled = true
	}

	return config, nil
}

// Priority returns the priority of this source (lower number = higher priority)
func (e *EnvironmentConfigSource) Priority() int {
	return 10
}

// Name returns the name of this source
func (e *EnvironmentConfigSource) Name() string {
	return "environment"
}

func isTrue(val string) bool {
	b, err := strconv.ParseBool(val)
	return err == nil && b
}

// DefaultConfigPath returns the configuration file under the XDG config home
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DefaultRunConfigDir returns the run configuration directory under the XDG data home
func DefaultRunConfigDir() string {
	return filepath.Join(xdg.DataHome, AppName, "run-configurations")
}

var _ ports.ConfigurationRepository = (*CompositeConfigRepository)(nil)
