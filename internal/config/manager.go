package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager holds the currently active configuration and supports hot reload
// from the backing file, notifying a subscriber of the old/new pair whenever
// the config changes. Grounded on the teacher's ConfigManager
// (RWMutex-guarded pointer swap, onUpdate callback fired on a fresh
// goroutine so a slow subscriber never blocks the reload path).
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configFile string
	onUpdate   func(old, new *Config)
}

// NewManager constructs a Manager holding cfg, optionally backed by
// configFile for Reload/SaveToFile.
func NewManager(cfg *Config, configFile string) *Manager {
	return &Manager{config: cfg, configFile: configFile}
}

// SetOnUpdate registers the callback fired after a successful Reload.
func (m *Manager) SetOnUpdate(fn func(old, new *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Config returns the currently active configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ConfigFile returns the backing file path, or "" if the Manager was built
// from an in-memory Config.
func (m *Manager) ConfigFile() string {
	return m.configFile
}

// Reload re-reads and re-validates the backing file, swapping it in only on
// success, and fires onUpdate (if set) on a new goroutine.
func (m *Manager) Reload() error {
	if m.configFile == "" {
		return fmt.Errorf("config: no backing file configured")
	}

	newCfg, err := LoadConfig(m.configFile)
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}
	if errs := ValidateConfig(newCfg); len(errs) > 0 {
		return fmt.Errorf("config: reload: validation failed: %v", errs[0])
	}

	m.mu.Lock()
	oldCfg := m.config
	m.config = newCfg
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		go onUpdate(oldCfg, newCfg)
	}
	return nil
}

// SaveToFile writes the current configuration back to its backing file as
// YAML, using the yaml:"..." tags on Config and its sections.
func (m *Manager) SaveToFile() error {
	if m.configFile == "" {
		return fmt.Errorf("config: no backing file configured")
	}

	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
