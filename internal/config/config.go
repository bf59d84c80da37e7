// Package config loads CLI settings from yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gear-cli/go-backend/internal/keypair"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfig     = "GEAR_CLI_CONFIG"
	EnvDataDir    = "GEAR_CLI_DATA_DIR"
	EnvSS58Prefix = "GEAR_CLI_SS58_PREFIX"
	EnvScheme     = "GEAR_CLI_SCHEME"
	EnvLogLevel   = "GEAR_CLI_LOG_LEVEL"

	defaultDirName = ".gear"
	maxSS58Prefix  = 16383
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DataDir    string
	SS58Prefix uint16
	Scheme     keypair.Scheme
	LogLevel   slog.Level
	Unlock     UnlockConfig
}

type UnlockConfig struct {
	// Concurrency bounds simultaneous scrypt runs.
	Concurrency int
	// AttemptsPerMinute and Burst throttle unlock attempts per account.
	AttemptsPerMinute float64
	Burst             int
	Timeout           time.Duration
}

// File mirrors the yaml document. Pointer and zero fields leave defaults alone.
type File struct {
	DataDir    string     `yaml:"dataDir"`
	SS58Prefix *uint16    `yaml:"ss58Prefix"`
	Scheme     string     `yaml:"scheme"`
	LogLevel   string     `yaml:"logLevel"`
	Unlock     UnlockFile `yaml:"unlock"`
}

type UnlockFile struct {
	Concurrency       int           `yaml:"concurrency"`
	AttemptsPerMinute float64       `yaml:"attemptsPerMinute"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir:    filepath.Join(home, defaultDirName),
		SS58Prefix: 42,
		Scheme:     keypair.Sr25519,
		LogLevel:   slog.LevelWarn,
		Unlock: UnlockConfig{
			Concurrency:       2,
			AttemptsPerMinute: 6,
			Burst:             3,
			Timeout:           time.Minute,
		},
	}
}

// Load reads the first existing candidate file, merges it onto the defaults
// and applies environment overrides. An explicit configPath must exist.
func Load(configPath string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(configPath)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	candidates := []string{explicit}
	if explicit == "" {
		candidates = []string{filepath.Join(cfg.DataDir, "config.yaml")}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit == "" && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var parsed File
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		if err := Merge(&cfg, parsed); err != nil {
			return Config{}, err
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src File) error {
	if src.DataDir != "" {
		dst.DataDir = expandHome(src.DataDir)
	}
	if src.SS58Prefix != nil {
		if *src.SS58Prefix > maxSS58Prefix {
			return fmt.Errorf("%w: ss58Prefix %d", ErrInvalidConfig, *src.SS58Prefix)
		}
		dst.SS58Prefix = *src.SS58Prefix
	}
	if src.Scheme != "" {
		scheme, err := keypair.ParseScheme(src.Scheme)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		dst.Scheme = scheme
	}
	if src.LogLevel != "" {
		if err := dst.LogLevel.UnmarshalText([]byte(src.LogLevel)); err != nil {
			return fmt.Errorf("%w: logLevel: %v", ErrInvalidConfig, err)
		}
	}
	if src.Unlock.Concurrency > 0 {
		dst.Unlock.Concurrency = src.Unlock.Concurrency
	}
	if src.Unlock.AttemptsPerMinute > 0 {
		dst.Unlock.AttemptsPerMinute = src.Unlock.AttemptsPerMinute
	}
	if src.Unlock.Burst > 0 {
		dst.Unlock.Burst = src.Unlock.Burst
	}
	if src.Unlock.Timeout > 0 {
		dst.Unlock.Timeout = src.Unlock.Timeout
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) error {
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		cfg.DataDir = expandHome(dir)
	}
	if raw := strings.TrimSpace(os.Getenv(EnvSS58Prefix)); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || v > maxSS58Prefix {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSS58Prefix, raw)
		}
		cfg.SS58Prefix = uint16(v)
	}
	if raw := strings.TrimSpace(os.Getenv(EnvScheme)); raw != "" {
		scheme, err := keypair.ParseScheme(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvScheme, err)
		}
		cfg.Scheme = scheme
	}
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvLogLevel, err)
		}
	}
	return nil
}

// KeystoreDir is where logged-in accounts are kept.
func (c Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
