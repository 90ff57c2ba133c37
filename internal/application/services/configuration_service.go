package services

import (
	"context"
	"fmt"
	"time"

	"mirrord.dev/launch/internal/application/ports"
	"mirrord.dev/launch/internal/core/runconfig"
)

// ConfigurationService handles configuration management
type ConfigurationService struct {
	configRepo ports.ConfigurationRepository
	logger     ports.LoggingGateway
}

// NewConfigurationService creates a new configuration service
func NewConfigurationService(configRepo ports.ConfigurationRepository, logger ports.LoggingGateway) *ConfigurationService {
	return &ConfigurationService{
		configRepo: configRepo,
		logger:     logger,
	}
}

// LoadConfiguration loads the current configuration, falling back to the
// defaults when no source can be read
func (s *ConfigurationService) LoadConfiguration(ctx context.Context) (*ports.Configuration, error) {
	config, err := s.configRepo.Load()
	if err != nil {
		s.logger.LogError(err, "Failed to load configuration", nil)
		return s.configRepo.LoadDefault(), nil
	}

	if err := s.configRepo.Validate(config); err != nil {
		s.logger.LogError(err, "Configuration validation failed", nil)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// SaveConfiguration saves the configuration
func (s *ConfigurationService) SaveConfiguration(ctx context.Context, config *ports.Configuration) error {
	if err := s.configRepo.Validate(config); err != nil {
		s.logger.LogError(err, "Configuration validation failed", nil)
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := s.configRepo.Save(config); err != nil {
		s.logger.LogError(err, "Failed to save configuration", nil)
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	s.logger.Log(ports.LogLevelInfo, "Configuration saved successfully", map[string]interface{}{
		"config_path": s.configRepo.GetConfigPath(),
	})
	return nil
}

// GetDefaultConfiguration returns the default configuration
func (s *ConfigurationService) GetDefaultConfiguration(ctx context.Context) *ports.Configuration {
	return s.configRepo.LoadDefault()
}

// GetConfigurationPath returns the path to the configuration file
func (s *ConfigurationService) GetConfigurationPath(ctx context.Context) string {
	return s.configRepo.GetConfigPath()
}

// InterceptorSettingsFrom derives the interceptor settings from config
func InterceptorSettingsFrom(config *ports.Configuration, platform runconfig.Platform) InterceptorSettings {
	settings := DefaultInterceptorSettings()
	settings.Platform = platform
	if config == nil {
		return settings
	}
	if config.ManagedKind != "" {
		settings.ManagedKind = config.ManagedKind
	}
	settings.ManagedNamePrefix = config.ManagedNamePrefix
	if config.ConfigEnvName != "" {
		settings.ConfigEnvName = config.ConfigEnvName
	}
	if config.Product != "" {
		settings.Product = config.Product
	}
	if config.ServerPort != "" {
		settings.ServerPort = config.ServerPort
	}
	return settings
}

// ExecTimeout returns the configured exec timeout
func ExecTimeout(config *ports.Configuration) time.Duration {
	if config == nil || config.ExecTimeout <= 0 {
		return time.Minute
	}
	return time.Duration(config.ExecTimeout) * time.Second
}
