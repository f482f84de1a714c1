// Package config loads the application settings from config.json with
// environment overrides and hot reload. The UI preference keys mirror the
// settings file the desktop client writes; the service sections drive the
// backend.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex

	reloadMu    sync.Mutex
	reloadHooks []func(*Config)
)

// Config represents the application configuration.
type Config struct {
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Search      SearchConfig      `mapstructure:"search"`
	Filters     FiltersConfig     `mapstructure:"filters"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// PreferencesConfig carries the user-visible appearance settings. The
// backend only persists them; the desktop shell consumes them.
type PreferencesConfig struct {
	Theme            string `mapstructure:"theme"`
	FontFamily       string `mapstructure:"font_family"`
	FontSize         int    `mapstructure:"font_size"`
	FontBold         bool   `mapstructure:"font_bold"`
	Language         string `mapstructure:"language"`
	PlayWelcomeSound bool   `mapstructure:"play_welcome_sound"`
	AutoSave         bool   `mapstructure:"auto_save"`
	BackgroundColor  string `mapstructure:"background_color"`
	TextColor        string `mapstructure:"text_color"`
	TabColor         string `mapstructure:"tab_color"`
}

// DatabaseConfig locates the store and its backups.
type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
}

// SyncConfig tunes mailbox synchronization.
type SyncConfig struct {
	Workers      int    `mapstructure:"workers"`
	MaxPerSender int    `mapstructure:"max_per_sender"`
	PollSchedule string `mapstructure:"poll_schedule"`
}

// SearchConfig carries the lead discovery provider credentials.
type SearchConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Engine        string `mapstructure:"engine"`
	MaxCandidates int    `mapstructure:"max_candidates"`
}

// FiltersConfig overrides the built-in filter and sentiment tables.
// These sections hot-reload: edits to config.json apply to the next
// message without a restart.
type FiltersConfig struct {
	BulkPatterns     []string       `mapstructure:"bulk_patterns"`
	RequestPhrases   []string       `mapstructure:"request_phrases"`
	MinBodyLength    int            `mapstructure:"min_body_length"`
	SentimentPhrases map[string]int `mapstructure:"sentiment_phrases"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("preferences.theme", "light")
	v.SetDefault("preferences.font_family", "Segoe UI")
	v.SetDefault("preferences.font_size", 10)
	v.SetDefault("preferences.language", "en")
	v.SetDefault("preferences.auto_save", true)
	v.SetDefault("database.path", "database/crm.db")
	v.SetDefault("database.backup_dir", "backups")
	v.SetDefault("sync.workers", 3)
	v.SetDefault("sync.max_per_sender", 50)
	v.SetDefault("sync.poll_schedule", "*/10 * * * *")
	v.SetDefault("search.engine", "google")
	v.SetDefault("search.max_candidates", 50)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "127.0.0.1")
	v.SetDefault("metrics.port", 9180)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stderr")
}

// Load initializes the configuration with hot reload support. configPath
// is the directory holding config.json; a missing file yields defaults.
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := viper.New()
		v.SetConfigType("json")
		v.SetConfigName("config")
		v.AddConfigPath(configPath)
		setDefaults(v)

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config: %w", readErr)
				return
			}
		}

		v.SetEnvPrefix("EXPORTDESK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			newCfg := &Config{}
			if reloadErr := v.Unmarshal(newCfg); reloadErr != nil {
				fmt.Printf("Failed to reload config from %s: %v\n", e.Name, reloadErr)
				return
			}
			mu.Lock()
			cfg = newCfg
			mu.Unlock()
			notifyReload(newCfg)
		})
	})
	return err
}

// Get returns the current configuration (thread-safe).
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// OnReload registers a hook called with the new configuration after every
// successful hot reload. Hooks run on the watcher goroutine and must not
// block.
func OnReload(hook func(*Config)) {
	if hook == nil {
		return
	}
	reloadMu.Lock()
	defer reloadMu.Unlock()
	reloadHooks = append(reloadHooks, hook)
}

func notifyReload(c *Config) {
	reloadMu.Lock()
	hooks := make([]func(*Config), len(reloadHooks))
	copy(hooks, reloadHooks)
	reloadMu.Unlock()
	for _, hook := range hooks {
		hook(c)
	}
}

// LoadFromFile loads configuration from a specific file (useful for
// testing).
func LoadFromFile(configFile string) error {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// MustLoad loads configuration and panics on error.
func MustLoad(configPath string) {
	if err := Load(configPath); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
}

// MetricsAddr returns the Prometheus listen address.
func (c *MetricsConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
