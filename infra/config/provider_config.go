package config

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig holds the settings of every payment gateway that is configured
type ProviderConfig struct {
	configs map[string]map[string]string
	mu      sync.RWMutex
}

// NewProviderConfig creates an empty provider configuration
func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		configs: make(map[string]map[string]string),
	}
}

// LoadFromApp registers gateways whose credentials are present in the app config
func (c *ProviderConfig) LoadFromApp(app *AppConfig) {
	m := app.Mpesa
	if m.ConsumerKey == "" || m.ConsumerSecret == "" || m.ShortCode == "" {
		return
	}

	_ = c.Set("mpesa", map[string]string{
		"consumerKey":    m.ConsumerKey,
		"consumerSecret": m.ConsumerSecret,
		"environment":    m.Environment,
		"passKey":        m.PassKey,
		"shortCode":      m.ShortCode,
		"callbackURL":    m.CallbackURL,
	})
}

// Set stores a copy of the configuration for a gateway
func (c *ProviderConfig) Set(providerName string, config map[string]string) error {
	if providerName == "" {
		return fmt.Errorf("provider name is required")
	}
	if len(config) == 0 {
		return fmt.Errorf("configuration for %s is empty", providerName)
	}

	cp := make(map[string]string, len(config))
	for k, v := range config {
		cp[k] = v
	}

	c.mu.Lock()
	c.configs[providerName] = cp
	c.mu.Unlock()
	return nil
}

// GetConfig returns the configuration of a gateway
func (c *ProviderConfig) GetConfig(providerName string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.configs[providerName]
	if !ok {
		return nil, fmt.Errorf("configuration not found for provider: %s", providerName)
	}

	cp := make(map[string]string, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp, nil
}

// GetAvailableProviders lists configured gateways in name order
func (c *ProviderConfig) GetAvailableProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
