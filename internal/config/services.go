package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServiceSettings controls one mounted service.
type ServiceSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Description string `yaml:"description"`
}

// ServicesConfig toggles the storefront's services.
type ServicesConfig struct {
	Services map[string]*ServiceSettings `yaml:"services"`
}

// Enabled reports whether the named service should mount. Unknown names
// are disabled.
func (c *ServicesConfig) Enabled(name string) bool {
	if c == nil || c.Services == nil {
		return false
	}
	s, ok := c.Services[name]
	return ok && s.Enabled
}

// LoadServicesConfig loads config/services.yaml.
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "services.yaml"))
}

// LoadServicesConfigFromPath loads a services configuration file.
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read services config: %w", err)
	}
	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse services config: %w", err)
	}
	return &cfg, nil
}

// LoadServicesConfigOrDefault loads services config, falling back to all
// services enabled when the file is absent.
func LoadServicesConfigOrDefault() *ServicesConfig {
	cfg, err := LoadServicesConfig()
	if err != nil {
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig enables every service.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"catalog": {
				Enabled:     true,
				Description: "Product catalog and stock",
			},
			"orders": {
				Enabled:     true,
				Description: "Checkout, order lifecycle and deliveries",
			},
			"accounts": {
				Enabled:     true,
				Description: "Profiles, addresses and user administration",
			},
			"settings": {
				Enabled:     true,
				Description: "Store-wide settings",
			},
			"dashboard": {
				Enabled:     true,
				Description: "Sales analytics and live order feed",
			},
			"mailer": {
				Enabled:     true,
				Description: "Transactional email dispatch",
			},
			"geocode": {
				Enabled:     true,
				Description: "Address search and reverse lookup",
			},
		},
	}
}
