package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateConverter() error {
	if err := ensurePositiveMap(map[string]int{
		"converter.batch_size":      c.Converter.BatchSize,
		"converter.timeout_seconds": c.Converter.TimeoutSeconds,
		"converter.max_retries":     c.Converter.MaxRetries,
		"converter.workers":         c.Converter.Workers,
	}); err != nil {
		return err
	}
	if c.Converter.CooldownSeconds < 0 {
		return errors.New("converter.cooldown_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.ManifestPageSize <= 0 {
		return errors.New("generation.manifest_page_size must be positive")
	}
	if c.Generation.SignatureFallbackDays < 0 {
		return errors.New("generation.signature_fallback_days must be >= 0")
	}
	if c.Generation.SessionSweepIntervalMinutes <= 0 {
		return errors.New("generation.session_sweep_interval_minutes must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.SessionTTLHours <= 0 {
		return errors.New("auth.session_ttl_hours must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
