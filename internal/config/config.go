// Package config resolves KDT settings from defaults, an optional YAML file,
// a .env file in the key home and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kdtcrypt/kdt/internal/storage"
)

// Environment variables.
const (
	EnvHome             = "KDT_HOME"
	EnvConfig           = "KDT_CONFIG"
	EnvQuiet            = "KDT_QUIET"
	EnvBackend          = "KDT_BACKEND"
	EnvPassphraseSource = "KDT_PASSPHRASE_SOURCE"
	EnvPassphrase       = storage.DefaultPassphraseEnv
)

const (
	// DefaultConfigFile is looked up in the key home when no file is named.
	DefaultConfigFile = "config.yaml"
	// DotEnvFile is read from the key home when present.
	DotEnvFile = ".env"
)

// Storage backends.
const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

// Passphrase sources.
const (
	PassphraseFromEnv     = "env"
	PassphraseFromKeyring = "keyring"
	PassphraseNone        = "none"
)

// ErrInvalid is returned for settings with unknown values.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of one invocation.
type Config struct {
	Home             string
	Backend          string
	PublicKeysFile   string
	OwnedKeysFile    string
	DatabaseFile     string
	Quiet            bool
	PassphraseSource string

	// passphrase is set when a .env file supplies KDT_PASSPHRASE.
	passphrase string
}

// FileConfig is the layout of the YAML configuration file.
type FileConfig struct {
	Home           string `yaml:"home"`
	Backend        string `yaml:"backend"`
	PublicKeysFile string `yaml:"publicKeysFile"`
	OwnedKeysFile  string `yaml:"ownedKeysFile"`
	DatabaseFile   string `yaml:"databaseFile"`
	Quiet          *bool  `yaml:"quiet"`
	Passphrase     string `yaml:"passphrase"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Home:             DefaultHome(),
		Backend:          BackendYAML,
		PublicKeysFile:   storage.DefaultPublicKeysFile,
		OwnedKeysFile:    storage.DefaultOwnedKeysFile,
		DatabaseFile:     storage.DefaultDatabaseFile,
		PassphraseSource: PassphraseFromEnv,
	}
}

// DefaultHome is the per-user configuration directory, or the working
// directory when the platform has none.
func DefaultHome() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "kdt")
}

// Load resolves the configuration. configPath names a YAML file that must
// exist; when empty, KDT_CONFIG or <home>/config.yaml is used if present.
// getenv is typically os.Getenv.
func Load(configPath string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if home := strings.TrimSpace(getenv(EnvHome)); home != "" {
		cfg.Home = home
	}

	explicit := true
	if configPath == "" {
		configPath = strings.TrimSpace(getenv(EnvConfig))
	}
	if configPath == "" {
		configPath = filepath.Join(cfg.Home, DefaultConfigFile)
		explicit = false
	}

	parsed, err := readFile(configPath)
	switch {
	case err == nil:
		Merge(&cfg, parsed)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, err
	}

	dotenv, err := readDotEnv(filepath.Join(cfg.Home, DotEnvFile))
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	if err := ApplyEnvOverrides(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if getenv(EnvPassphrase) == "" {
		cfg.passphrase = dotenv[EnvPassphrase]
	}

	return cfg, cfg.Validate()
}

func readFile(path string) (FileConfig, error) {
	var parsed FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return parsed, err
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return parsed, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return parsed, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return values, nil
}

// Merge copies the settings present in src over dst.
func Merge(dst *Config, src FileConfig) {
	if src.Home != "" {
		dst.Home = src.Home
	}
	if src.Backend != "" {
		dst.Backend = src.Backend
	}
	if src.PublicKeysFile != "" {
		dst.PublicKeysFile = src.PublicKeysFile
	}
	if src.OwnedKeysFile != "" {
		dst.OwnedKeysFile = src.OwnedKeysFile
	}
	if src.DatabaseFile != "" {
		dst.DatabaseFile = src.DatabaseFile
	}
	if src.Quiet != nil {
		dst.Quiet = *src.Quiet
	}
	if src.Passphrase != "" {
		dst.PassphraseSource = src.Passphrase
	}
}

// ApplyEnvOverrides applies KDT_* variables found through lookup.
func ApplyEnvOverrides(cfg *Config, lookup func(string) string) error {
	if home := strings.TrimSpace(lookup(EnvHome)); home != "" {
		cfg.Home = home
	}
	if backend := strings.TrimSpace(lookup(EnvBackend)); backend != "" {
		cfg.Backend = backend
	}
	if source := strings.TrimSpace(lookup(EnvPassphraseSource)); source != "" {
		cfg.PassphraseSource = source
	}
	if raw := strings.TrimSpace(lookup(EnvQuiet)); raw != "" {
		quiet, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvQuiet, raw)
		}
		cfg.Quiet = quiet
	}
	return nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendYAML, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	switch c.PassphraseSource {
	case PassphraseFromEnv, PassphraseFromKeyring, PassphraseNone:
	default:
		return fmt.Errorf("%w: unknown passphrase source %q", ErrInvalid, c.PassphraseSource)
	}
	return nil
}

// Passphrase builds the passphrase source the configuration selects.
func (c Config) Passphrase() (storage.PassphraseSource, error) {
	switch c.PassphraseSource {
	case PassphraseNone:
		return storage.NoPassphrase{}, nil
	case PassphraseFromKeyring:
		ring, err := storage.OpenKeyring()
		if err != nil {
			return nil, err
		}
		return ring, nil
	default:
		if c.passphrase != "" {
			return storage.StaticPassphrase(c.passphrase), nil
		}
		return storage.EnvPassphrase{Var: EnvPassphrase}, nil
	}
}

// StorageOptions returns the storage options for this configuration.
func (c Config) StorageOptions(src storage.PassphraseSource) []storage.Option {
	return []storage.Option{
		storage.WithPassphrase(src),
		storage.WithPublicKeysFile(c.PublicKeysFile),
		storage.WithOwnedKeysFile(c.OwnedKeysFile),
	}
}
