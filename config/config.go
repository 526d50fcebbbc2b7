package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so both TOML and YAML accept strings like "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// Config is the ledgerd node configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	DataDir       string `toml:"DataDir" yaml:"data_dir"`
	Environment   string `toml:"Environment" yaml:"environment"`
	// LogFile enables a rotated JSON log file next to stdout.
	LogFile      string `toml:"LogFile" yaml:"log_file"`
	AllowMigrate bool   `toml:"AllowMigrate" yaml:"allow_migrate"`

	Ledger    LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `toml:"audit" yaml:"audit"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

// LedgerConfig seeds a fresh ledger. It is ignored once a ledger root has
// been committed to DataDir.
type LedgerConfig struct {
	Owner          string             `toml:"Owner" yaml:"owner"`
	Agent          string             `toml:"Agent" yaml:"agent"`
	Custody        string             `toml:"Custody" yaml:"custody"`
	TokenSymbol    string             `toml:"TokenSymbol" yaml:"token_symbol"`
	TokenName      string             `toml:"TokenName" yaml:"token_name"`
	TokenDecimals  uint8              `toml:"TokenDecimals" yaml:"token_decimals"`
	PlatformFeeBps *uint32            `toml:"PlatformFeeBps" yaml:"platform_fee_bps"`
	Allocations    []AllocationConfig `toml:"allocations" yaml:"allocations"`
}

// AllocationConfig is an opening token balance. Amounts are base-10 strings in
// the token's minor unit.
type AllocationConfig struct {
	Address   string `toml:"Address" yaml:"address"`
	Balance   string `toml:"Balance" yaml:"balance"`
	Allowance string `toml:"Allowance" yaml:"allowance"`
}

type StorageConfig struct {
	CacheMB int `toml:"CacheMB" yaml:"cache_mb"`
	Handles int `toml:"Handles" yaml:"handles"`
}

// AuthConfig controls caller identity on the HTTP API.
type AuthConfig struct {
	JWTSecret    string   `toml:"JWTSecret" yaml:"jwt_secret"`
	JWTSecretEnv string   `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	Issuer       string   `toml:"Issuer" yaml:"issuer"`
	TokenTTL     Duration `toml:"TokenTTL" yaml:"token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// AuditConfig selects the audit log database. Driver is "sqlite" or
// "postgres".
type AuditConfig struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`

	// SampleRatio keeps this fraction of traces; zero keeps all of them.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default filled in and no roles.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8088"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./creatorpay-data"
	}
	if strings.TrimSpace(cfg.Ledger.TokenSymbol) == "" {
		cfg.Ledger.TokenSymbol = "USDC"
	}
	if strings.TrimSpace(cfg.Ledger.TokenName) == "" {
		cfg.Ledger.TokenName = "USD Coin"
	}
	if cfg.Ledger.TokenDecimals == 0 {
		cfg.Ledger.TokenDecimals = 6
	}
	if cfg.Ledger.PlatformFeeBps == nil {
		bps := uint32(DefaultPlatformFeeBps)
		cfg.Ledger.PlatformFeeBps = &bps
	}
	if cfg.Storage.CacheMB <= 0 {
		cfg.Storage.CacheMB = 64
	}
	if cfg.Storage.Handles <= 0 {
		cfg.Storage.Handles = 64
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "creatorpay"
	}
	if cfg.Auth.TokenTTL.Duration <= 0 {
		cfg.Auth.TokenTTL = Duration{Duration: time.Hour}
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 100
	}
	if strings.TrimSpace(cfg.Audit.Driver) == "" {
		cfg.Audit.Driver = AuditDriverSQLite
	}
	if cfg.Audit.Driver == AuditDriverSQLite && strings.TrimSpace(cfg.Audit.DSN) == "" {
		cfg.Audit.DSN = filepath.Join(cfg.DataDir, "audit.db")
	}
}

// JWTSecretValue returns the HMAC key, preferring the environment variable
// named by JWTSecretEnv.
func (a AuthConfig) JWTSecretValue() (string, error) {
	if env := strings.TrimSpace(a.JWTSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value, nil
		}
		if strings.TrimSpace(a.JWTSecret) == "" {
			return "", fmt.Errorf("auth: environment variable %s is empty", env)
		}
	}
	if secret := strings.TrimSpace(a.JWTSecret); secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: jwt secret not configured")
}

// Persist writes cfg to path as TOML.
func Persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
