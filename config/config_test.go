package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creatorpay/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAddr(b byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.FormatAddress(raw)
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadTOMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "ledgerd.toml", fmt.Sprintf(`DataDir = "/var/lib/creatorpay"

[ledger]
Owner = "%s"
Agent = "%s"
Custody = "%s"

[[ledger.allocations]]
Address = "%s"
Balance = "1000000"
Allowance = "500000"

[auth]
JWTSecret = "%s"
TokenTTL = "15m"
`, testAddr(1), testAddr(2), testAddr(3), testAddr(4), testSecret))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8088", cfg.ListenAddress)
	require.Equal(t, "USDC", cfg.Ledger.TokenSymbol)
	require.EqualValues(t, DefaultPlatformFeeBps, *cfg.Ledger.PlatformFeeBps)
	require.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL.Duration)
	require.Equal(t, AuditDriverSQLite, cfg.Audit.Driver)
	require.Equal(t, filepath.Join("/var/lib/creatorpay", "audit.db"), cfg.Audit.DSN)

	genesis, err := cfg.Genesis()
	require.NoError(t, err)
	require.EqualValues(t, 250, genesis.PlatformFeeBps)
	require.Len(t, genesis.Allocations, 1)
	require.EqualValues(t, 1_000_000, genesis.Allocations[0].Balance.Int64())
	require.EqualValues(t, 500_000, genesis.Allocations[0].Allowance.Int64())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ledgerd.yaml", fmt.Sprintf(`listen: "127.0.0.1:9000"
ledger:
  owner: %s
  agent: %s
  custody: %s
  platform_fee_bps: 0
auth:
  jwt_secret: %s
audit:
  driver: postgres
  dsn: "host=localhost user=audit dbname=audit"
`, testAddr(1), testAddr(2), testAddr(3), testSecret))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.EqualValues(t, 0, *cfg.Ledger.PlatformFeeBps)
	require.Equal(t, AuditDriverPostgres, cfg.Audit.Driver)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "ledgerd.toml", "Bogus = 1\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")

	path = writeFile(t, "ledgerd.yml", "bogus: 1\n")
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	high := uint32(1500)
	cfg := &Config{
		Ledger: LedgerConfig{
			Owner:          testAddr(1),
			Agent:          testAddr(2),
			Custody:        testAddr(3),
			PlatformFeeBps: &high,
		},
		Auth: AuthConfig{JWTSecret: "short"},
	}
	applyDefaults(cfg)
	err := Validate(cfg)
	require.ErrorContains(t, err, "fee rate")
	require.ErrorContains(t, err, "jwt secret must be at least")
}

func TestGenesisRejectsBadAllocations(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Ledger: LedgerConfig{Owner: testAddr(1), Agent: testAddr(2), Custody: testAddr(3)}}
		applyDefaults(cfg)
		return cfg
	}

	cases := map[string]AllocationConfig{
		"negative":     {Address: testAddr(4), Balance: "-1"},
		"not a number": {Address: testAddr(4), Balance: "ten"},
		"custody":      {Address: testAddr(3), Balance: "1"},
		"bad address":  {Address: "nope", Balance: "1"},
	}
	for name, alloc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			cfg.Ledger.Allocations = []AllocationConfig{alloc}
			_, err := cfg.Genesis()
			require.Error(t, err)
		})
	}

	cfg := base()
	cfg.Ledger.Custody = cfg.Ledger.Owner
	_, err := cfg.Genesis()
	require.Error(t, err)
}

func TestGenesisRejectsSharedRoles(t *testing.T) {
	cfg := &Config{Ledger: LedgerConfig{Owner: testAddr(1), Agent: testAddr(1), Custody: testAddr(3)}}
	applyDefaults(cfg)
	_, err := cfg.Genesis()
	require.ErrorContains(t, err, "owner and agent")
}

func TestJWTSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("CREATORPAY_TEST_JWT", "from-env")
	auth := AuthConfig{JWTSecret: "from-file", JWTSecretEnv: "CREATORPAY_TEST_JWT"}
	secret, err := auth.JWTSecretValue()
	require.NoError(t, err)
	require.Equal(t, "from-env", secret)

	_, err = AuthConfig{JWTSecretEnv: "CREATORPAY_TEST_UNSET"}.JWTSecretValue()
	require.Error(t, err)
}

func TestPersistRoundTrip(t *testing.T) {
	bps := uint32(100)
	cfg := &Config{
		DataDir: "./data",
		Ledger:  LedgerConfig{Owner: testAddr(1), Agent: testAddr(2), Custody: testAddr(3), PlatformFeeBps: &bps},
		Auth:    AuthConfig{JWTSecret: testSecret},
	}
	applyDefaults(cfg)
	path := filepath.Join(t.TempDir(), "nested", "ledgerd.toml")
	require.NoError(t, Persist(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 100, *loaded.Ledger.PlatformFeeBps)
	require.Equal(t, cfg.Auth.TokenTTL, loaded.Auth.TokenTTL)
}
