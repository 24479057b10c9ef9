// Package config loads secretkeep settings from defaults, a YAML config
// file, SECRETKEEP_* environment variables and bound command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides: vault.dir is read from
	// SECRETKEEP_VAULT_DIR.
	EnvPrefix = "SECRETKEEP"

	// FileName is the config file looked up in the vault directory.
	FileName = "config"

	defaultDirName    = ".secretkeep"
	defaultVaultName  = "secrets"
	defaultRounds     = 3
	defaultBackend    = BackendFile
	defaultKeep       = 10
	defaultMaxAge     = 168 * time.Hour
	defaultLogLevel   = "warn"
	defaultLogFormat  = "console"
	defaultPolicyName = "mcp-policy.yaml"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the resolved configuration.
type Config struct {
	Vault   VaultConfig   `mapstructure:"vault" yaml:"vault"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Backup  BackupConfig  `mapstructure:"backup" yaml:"backup"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	MCP     MCPConfig     `mapstructure:"mcp" yaml:"mcp"`
}

type VaultConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Name   string `mapstructure:"name" yaml:"name"`
	Rounds int    `mapstructure:"rounds" yaml:"rounds"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type BackupConfig struct {
	// Keep is the number of restore points kept.
	Keep int `mapstructure:"keep" yaml:"keep"`
	// MaxAge is the age after which the newest restore point counts as stale.
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

type SyncConfig struct {
	// Dir is the shared directory used by the folder sync agent.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// KeyFile seals the shared state; every peer needs a copy.
	KeyFile string `mapstructure:"key_file" yaml:"key_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MCPConfig struct {
	Policy string `mapstructure:"policy" yaml:"policy"`
}

// DefaultDir returns ~/.secretkeep, or .secretkeep when there is no home
// directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vault.dir", DefaultDir())
	v.SetDefault("vault.name", defaultVaultName)
	v.SetDefault("vault.rounds", defaultRounds)
	v.SetDefault("storage.backend", defaultBackend)
	v.SetDefault("backup.keep", defaultKeep)
	v.SetDefault("backup.max_age", defaultMaxAge)
	v.SetDefault("sync.dir", "")
	v.SetDefault("sync.key_file", "")
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("mcp.policy", "")
}

// Load resolves the configuration. file names an explicit config file,
// which must exist; otherwise config.yaml in the vault directory is read
// when present.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(v.GetString("vault.dir"))
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Vault.Dir == "" {
		return errors.New("config: vault.dir must not be empty")
	}
	if c.Vault.Name == "" || strings.ContainsAny(c.Vault.Name, `/\`) {
		return fmt.Errorf("config: invalid vault.name %q", c.Vault.Name)
	}
	if c.Vault.Rounds < 1 || c.Vault.Rounds > 100 {
		return fmt.Errorf("config: vault.rounds must be between 1 and 100, got %d", c.Vault.Rounds)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown storage.backend %q (use file or sqlite)", c.Storage.Backend)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("config: backup.keep must not be negative, got %d", c.Backup.Keep)
	}
	if c.Backup.MaxAge < 0 {
		return fmt.Errorf("config: backup.max_age must not be negative, got %s", c.Backup.MaxAge)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q (use console or json)", c.Log.Format)
	}
	return nil
}

// PolicyPath returns the MCP policy file, by default next to the vault.
func (c *Config) PolicyPath() string {
	if c.MCP.Policy != "" {
		return c.MCP.Policy
	}
	return filepath.Join(c.Vault.Dir, defaultPolicyName)
}

// SyncKeyFile returns the sync key file, by default next to the vault.
func (c *Config) SyncKeyFile() string {
	if c.Sync.KeyFile != "" {
		return c.Sync.KeyFile
	}
	return filepath.Join(c.Vault.Dir, "sync.key")
}

// SQLitePath is the database file used by the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Vault.Dir, c.Vault.Name+".db")
}
