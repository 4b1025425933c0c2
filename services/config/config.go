package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// Manager handles loading and saving application configuration
type Manager struct {
	path string
	data *Config
	mu   sync.RWMutex
}

// Config represents the application configuration
type Config struct {
	// Archive describes where the replay catalog is published
	Archive ArchiveConfig `toml:"archive"`

	// Previews contains map preview settings
	Previews PreviewConfig `toml:"previews"`
}

// ArchiveConfig describes the replay archive source
type ArchiveConfig struct {
	// URL is the base URL the index and replay files are served under.
	// When Dir is set it takes precedence and the archive is read from disk.
	URL string `toml:"url"`

	// Dir is an optional local archive directory
	Dir string `toml:"dir"`
}

// PreviewConfig contains map preview settings
type PreviewConfig struct {
	// Enabled controls whether map previews are fetched
	Enabled bool `toml:"enabled"`

	// URL is the base URL map preview images are served under
	URL string `toml:"url"`

	// Workers is the number of concurrent preview downloads
	Workers int `toml:"workers"`
}

var defaultConfig = Config{
	Archive: ArchiveConfig{
		URL: "https://entrepreneurtimes.co.nz/lwg-replays/",
	},
	Previews: PreviewConfig{
		Enabled: true,
		URL:     "https://entrepreneurtimes.co.nz/lwg-replays/previews/",
		Workers: 2,
	},
}

// Default returns the built-in configuration, for callers running without a
// config manager.
func Default() Config {
	return defaultConfig
}

// NewManager creates a new configuration manager
func NewManager(configPath string) (*Manager, error) {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := defaultConfig
	manager := &Manager{
		path: configPath,
		data: &cfg,
	}

	// Try to load existing config
	if err := manager.Load(); err != nil {
		// If file doesn't exist, save defaults
		if os.IsNotExist(err) {
			if err := manager.Save(); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	return manager, nil
}

// Load reads configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := toml.DecodeFile(m.path, m.data); err != nil {
		return err
	}

	return nil
}

// Save writes configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.Create(m.path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(m.data); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.data
}

// SetArchive updates the archive source configuration
func (m *Manager) SetArchive(archive ArchiveConfig) error {
	m.mu.Lock()
	m.data.Archive = archive
	m.mu.Unlock()

	return m.Save()
}

// SetPreviews updates preview configuration
func (m *Manager) SetPreviews(previews PreviewConfig) error {
	m.mu.Lock()
	m.data.Previews = previews
	m.mu.Unlock()

	return m.Save()
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "replaydeck", "replaydeck.toml")
}
