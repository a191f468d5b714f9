package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/pkg/errors"
)

// DefaultPluginsFile is where plugin state lives when plugins_file is unset.
const DefaultPluginsFile = ".sonicjs/plugins.yaml"

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string

	v *viper.Viper
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (SONICJS_ prefix)
// 3. .env files
// 4. Config file (.sonicjs.yaml in the working or home directory)
// 5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()
	return loadConfig(viper.New(), "")
}

func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix("sonicjs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("plugins_file", DefaultPluginsFile)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(".sonicjs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	// A missing config file is fine; a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "failed to read config file", err)
		}
	}

	return &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("output"),
		ConfigFile: v.ConfigFileUsed(),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),
		LogOutput:  v.GetString("log_output"),
		v:          v,
	}, nil
}

// Reload re-reads configuration from configFile, keeping flag values.
func (c *Config) Reload(configFile string) error {
	fresh, err := loadConfig(viper.New(), configFile)
	if err != nil {
		return err
	}
	c.ConfigFile = fresh.ConfigFile
	c.v = fresh.v
	if c.LogLevel == "" {
		c.LogLevel = fresh.LogLevel
	}
	if c.Format == "" {
		c.Format = fresh.Format
	}
	return nil
}

// Settings returns the file-backed settings as currently loaded.
func (c *Config) Settings() appcontext.Settings {
	s := appcontext.Settings{
		PluginsFile:   c.v.GetString("plugins_file"),
		SnapshotPath:  c.v.GetString("snapshot_path"),
		DefaultTTL:    c.v.GetDuration("cache.default_ttl"),
		NamespaceTTLs: make(map[string]time.Duration),
	}
	for ns := range c.v.GetStringMap("cache.namespaces") {
		key := "cache.namespaces." + ns + ".ttl"
		if c.v.IsSet(key) {
			s.NamespaceTTLs[ns] = c.v.GetDuration(key)
		}
	}
	return s
}

// UpdateFromFlags updates config values from parsed command flags so they
// take precedence over the config file and environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first because godotenv never overrides.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
