package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"creatorpay/core/ledger"
	"creatorpay/crypto"
	"creatorpay/native/fees"
)

const (
	AuditDriverSQLite   = "sqlite"
	AuditDriverPostgres = "postgres"

	DefaultPlatformFeeBps = fees.DefaultPlatformFeeBps

	minJWTSecretLength = 32
)

// Validate checks cfg after defaults have been applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil configuration")
	}
	var errs []error
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if _, err := cfg.Genesis(); err != nil {
		errs = append(errs, err)
	}
	secret, err := cfg.Auth.JWTSecretValue()
	if err != nil {
		errs = append(errs, err)
	} else if len(secret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("auth: jwt secret must be at least %d bytes", minJWTSecretLength))
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit: requests_per_second and burst must be positive"))
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry: sample_ratio must be within [0,1]"))
	}
	switch cfg.Audit.Driver {
	case AuditDriverSQLite, AuditDriverPostgres:
		if strings.TrimSpace(cfg.Audit.DSN) == "" {
			errs = append(errs, fmt.Errorf("audit: dsn required for %s", cfg.Audit.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("audit: unsupported driver %q", cfg.Audit.Driver))
	}
	return errors.Join(errs...)
}

// Genesis converts the ledger section into the genesis used to seed an empty
// data directory.
func (c *Config) Genesis() (*ledger.Genesis, error) {
	lc := c.Ledger
	owner, err := parseRole("owner", lc.Owner)
	if err != nil {
		return nil, err
	}
	agent, err := parseRole("agent", lc.Agent)
	if err != nil {
		return nil, err
	}
	custody, err := parseRole("custody", lc.Custody)
	if err != nil {
		return nil, err
	}
	if owner == agent {
		return nil, errors.New("ledger: owner and agent must differ")
	}
	if custody == owner || custody == agent {
		return nil, errors.New("ledger: custody must differ from owner and agent")
	}
	if strings.TrimSpace(lc.TokenSymbol) == "" || strings.TrimSpace(lc.TokenName) == "" {
		return nil, errors.New("ledger: token symbol and name are required")
	}
	bps := uint32(DefaultPlatformFeeBps)
	if lc.PlatformFeeBps != nil {
		bps = *lc.PlatformFeeBps
	}
	if err := fees.ValidateRate(bps); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	genesis := &ledger.Genesis{
		Owner:   owner,
		Agent:   agent,
		Custody: custody,
		Token: ledger.TokenSpec{
			Symbol:   strings.TrimSpace(lc.TokenSymbol),
			Name:     strings.TrimSpace(lc.TokenName),
			Decimals: lc.TokenDecimals,
		},
		PlatformFeeBps: bps,
	}
	seen := make(map[[20]byte]struct{}, len(lc.Allocations))
	for i, alloc := range lc.Allocations {
		addr, err := crypto.ParseLedgerAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("ledger: allocation %d: %w", i, err)
		}
		if addr == custody {
			return nil, fmt.Errorf("ledger: allocation %d: custody cannot hold an opening balance", i)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("ledger: allocation %d: duplicate address %s", i, alloc.Address)
		}
		seen[addr] = struct{}{}
		balance, err := parseAmount(alloc.Balance)
		if err != nil {
			return nil, fmt.Errorf("ledger: allocation %d balance: %w", i, err)
		}
		allowance, err := parseAmount(alloc.Allowance)
		if err != nil {
			return nil, fmt.Errorf("ledger: allocation %d allowance: %w", i, err)
		}
		genesis.Allocations = append(genesis.Allocations, ledger.Allocation{
			Address:   addr,
			Balance:   balance,
			Allowance: allowance,
		})
	}
	return genesis, nil
}

func parseRole(name, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("ledger: %s address required", name)
	}
	addr, err := crypto.ParseLedgerAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("ledger: %s: %w", name, err)
	}
	return addr, nil
}

// parseAmount accepts an empty string as "not set".
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	if value.Sign() > 0 {
		if err := fees.ValidateAmount(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}
