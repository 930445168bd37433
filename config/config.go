package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	core_config "github.com/grovetools/core/config"
	"github.com/grovetools/core/logging"
	"gopkg.in/yaml.v3"
)

//go:generate go run ../tools/schema-generator

// ExtensionName is the key under which agconsole settings live in grove.yml.
const ExtensionName = "agconsole"

// ServerConfig defines where the HTTP API listens.
type ServerConfig struct {
	// Host is the interface to bind. Defaults to 127.0.0.1.
	Host string `yaml:"host,omitempty"`

	// Port is the TCP port to bind. Defaults to 3456.
	Port int `yaml:"port,omitempty"`
}

// CacheConfig defines the session cache bounds.
type CacheConfig struct {
	// TTL is how long a cached listing or transcript is served without
	// re-validation. Defaults to 5s.
	TTL time.Duration `yaml:"ttl,omitempty"`

	// MaxEntries bounds each cache namespace. Defaults to 100.
	MaxEntries int `yaml:"max_entries,omitempty"`
}

// WatcherConfig defines filesystem watcher behavior.
type WatcherConfig struct {
	// SettleWindow is the quiet period after the last write to a path
	// before a single change event is emitted. Defaults to 100ms.
	SettleWindow time.Duration `yaml:"settle_window,omitempty"`
}

// DisplayConfig defines how transcripts are printed in the terminal.
type DisplayConfig struct {
	// DetailLevel is "summary" or "full". Defaults to summary.
	DetailLevel string `yaml:"detail_level,omitempty" jsonschema:"enum=summary,enum=full"`

	// MaxDiffLines bounds Edit/Write diffs in summary mode. 0 shows all.
	MaxDiffLines int `yaml:"max_diff_lines,omitempty"`
}

// Config is the top-level configuration structure for agconsole.
type Config struct {
	// ClaudeHome is the agent's home tree. Defaults to $CLAUDE_HOME or ~/.claude.
	ClaudeHome string        `yaml:"claude_home,omitempty"`
	Server     ServerConfig  `yaml:"server,omitempty"`
	Cache      CacheConfig   `yaml:"cache,omitempty"`
	Watcher    WatcherConfig `yaml:"watcher,omitempty"`
	Display    DisplayConfig `yaml:"display,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 3456},
		Cache:   CacheConfig{TTL: 5 * time.Second, MaxEntries: 100},
		Watcher: WatcherConfig{SettleWindow: 100 * time.Millisecond},
		Display: DisplayConfig{DetailLevel: "summary", MaxDiffLines: 10},
	}
}

// Load resolves the configuration from defaults, the grove config extension,
// an optional YAML file, and the CLAUDE_HOME environment variable, in that order.
// grovePath names a grove.yml explicitly; when empty, grove config is searched
// for from the working directory and its absence is not an error.
func Load(grovePath, path string) (Config, error) {
	cfg := Default()
	log := logging.NewLogger("agconsole.config")

	coreCfg, err := loadGroveConfig(grovePath)
	if err != nil {
		if grovePath != "" {
			return cfg, err
		}
		log.WithError(err).Warn("Failed to load grove config, continuing without it")
	}
	if coreCfg != nil {
		if raw, ok := coreCfg.Extensions[ExtensionName]; ok {
			ext, err := decodeExtension(raw)
			if err != nil {
				log.WithError(err).Warn("Ignoring invalid agconsole section in grove config")
			} else {
				cfg.merge(ext)
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.merge(file)
	}

	if home := os.Getenv("CLAUDE_HOME"); home != "" {
		cfg.ClaudeHome = home
	}
	if cfg.ClaudeHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.ClaudeHome = filepath.Join(home, ".claude")
	}
	return cfg, nil
}

func loadGroveConfig(path string) (*core_config.Config, error) {
	if path == "" {
		return core_config.LoadDefault()
	}
	coreCfg, err := core_config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load grove config %s: %w", path, err)
	}
	return coreCfg, nil
}

// decodeExtension decodes the agconsole section of grove.yml. The section is
// re-encoded as YAML so durations like "2s" decode the same way they do in a
// standalone config file.
func decodeExtension(raw interface{}) (Config, error) {
	var ext Config
	data, err := yaml.Marshal(raw)
	if err != nil {
		return ext, fmt.Errorf("failed to encode %s config: %w", ExtensionName, err)
	}
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return ext, fmt.Errorf("failed to decode %s config: %w", ExtensionName, err)
	}
	return ext, nil
}

// merge overlays the non-zero fields of other onto c.
func (c *Config) merge(other Config) {
	if other.ClaudeHome != "" {
		c.ClaudeHome = expandPath(other.ClaudeHome)
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port > 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Cache.TTL > 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.MaxEntries > 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}
	if other.Watcher.SettleWindow > 0 {
		c.Watcher.SettleWindow = other.Watcher.SettleWindow
	}
	if other.Display.DetailLevel != "" {
		c.Display.DetailLevel = other.Display.DetailLevel
	}
	if other.Display.MaxDiffLines > 0 {
		c.Display.MaxDiffLines = other.Display.MaxDiffLines
	}
}

// ProjectsDir is the session root containing one directory per project.
func (c Config) ProjectsDir() string {
	return filepath.Join(c.ClaudeHome, "projects")
}

// SettingsFile is the user settings file observed for settings-change events.
func (c Config) SettingsFile() string {
	return filepath.Join(c.ClaudeHome, "settings.json")
}

// PluginsFile is the plugin registry observed for plugin-change events.
func (c Config) PluginsFile() string {
	return filepath.Join(c.ClaudeHome, "plugins", "installed_plugins.json")
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
