package config

import "time"

// APIConfig represents the configuration for the classification service
type APIConfig struct {
	Endpoint    string
	Key         string
	DemoKey     string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// ScanConfig represents the email scanning configuration
type ScanConfig struct {
	Enabled              bool
	NotificationsEnabled bool
	WhitelistedDomains   []string
}

// QuarantineConfig represents the automatic quarantine configuration
type QuarantineConfig struct {
	Auto                bool
	ConfidenceThreshold float64
	SettleDelay         time.Duration
}

// GetAPI returns the classification service configuration
func (c *Config) GetAPI() (APIConfig, error) {
	baseDelay, err := c.GetDuration("api.base_delay")
	if err != nil {
		return APIConfig{}, err
	}
	timeout, err := c.GetDuration("api.timeout")
	if err != nil {
		return APIConfig{}, err
	}
	return APIConfig{
		Endpoint:    c.GetString("api.endpoint"),
		Key:         c.GetString("api.key"),
		DemoKey:     c.GetString("api.demo_key"),
		MaxAttempts: c.GetInt("api.max_attempts"),
		BaseDelay:   baseDelay,
		Timeout:     timeout,
	}, nil
}

// GetScan returns the scanning configuration
func (c *Config) GetScan() ScanConfig {
	return ScanConfig{
		Enabled:              c.GetBool("scan.enabled"),
		NotificationsEnabled: c.GetBool("scan.notifications_enabled"),
		WhitelistedDomains:   c.GetStringSlice("scan.whitelisted_domains"),
	}
}

// GetQuarantine returns the quarantine configuration
func (c *Config) GetQuarantine() (QuarantineConfig, error) {
	settleDelay, err := c.GetDuration("quarantine.settle_delay")
	if err != nil {
		return QuarantineConfig{}, err
	}
	return QuarantineConfig{
		Auto:                c.GetBool("quarantine.auto"),
		ConfidenceThreshold: c.GetFloat64("quarantine.confidence_threshold"),
		SettleDelay:         settleDelay,
	}, nil
}
