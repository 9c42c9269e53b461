package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/leonardotrapani/neurotype/internal/logging"
)

var ErrConfigNotFound = errors.New("config not found")

const appDir = "neurotype"

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, appDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

// GetDataDir returns $XDG_DATA_HOME/neurotype, creating it.
func GetDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}

	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// Load reads the user config, writing the defaults first if none exists.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log := logging.WithComponent("config")
		log.Info().Str("path", configPath).Msg("no config file found, creating with defaults")
		if err := SaveDefaultConfig(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	return LoadFile(configPath)
}

// LoadFile decodes path on top of DefaultConfig.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	log := logging.WithComponent("config")
	log.Debug().Str("path", path).Msg("loading configuration")

	config := DefaultConfig()
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warn().Interface("keys", undecoded).Msg("ignoring unknown config keys")
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	config.applySegmentationDefaults()

	log.Debug().Msg("configuration loaded successfully")
	return config, nil
}

// applySegmentationDefaults derives unset window lengths from the sample rate.
func (c *Config) applySegmentationDefaults() {
	s := &c.Segmentation
	if s.SampleRate <= 0 {
		s.SampleRate = DefaultSampleRate
	}
	if s.SegmentLength == 0 {
		s.SegmentLength = s.SampleRate * 2
	}
	if s.SubWindowLength == 0 {
		s.SubWindowLength = s.SampleRate / 4
	}
	if s.Slide == 0 {
		s.Slide = 4
	}
}

// Save writes cfg to the user config path.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(configPath, cfg)
}

// SaveFile writes cfg to path atomically.
func SaveFile(path string, cfg *Config) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config content: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func SaveDefaultConfig() error {
	return Save(DefaultConfig())
}

const header = `# Neurotype Configuration
# Edit values as needed - most changes are applied without a daemon restart.
#
# API keys may be left empty and supplied through OPENAI_API_KEY or
# GROQ_API_KEY instead.

`
