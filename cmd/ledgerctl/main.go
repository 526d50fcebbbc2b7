package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"creatorpay/cmd/internal/passphrase"
	"creatorpay/config"
	"creatorpay/crypto"
	"creatorpay/services/ledgerd"
	"creatorpay/services/ledgerd/auditlog"
)

const (
	defaultConfig  = "./config.toml"
	defaultPassEnv = "CREATORPAY_KEY_PASS"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(args, os.Stdout)
	case "address":
		err = runAddress(args, os.Stdout)
	case "init":
		err = runInit(args, os.Stdout)
	case "token":
		err = runToken(args, os.Stdout)
	case "export":
		err = runExport(args, os.Stdout)
	case "verify":
		err = runVerify(args, os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ledgerctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen   generate an operator key into an encrypted keystore")
	fmt.Fprintln(w, "  address  print the ledger address held in a keystore")
	fmt.Fprintln(w, "  init     write a ledgerd config with a fresh JWT secret")
	fmt.Fprintln(w, "  token    issue a caller bearer token for an address")
	fmt.Fprintln(w, "  export   export the audit log to a parquet file")
	fmt.Fprintln(w, "  verify   recompute the audit log hash chain")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return errors.New("keygen: -out is required")
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("keygen: %s already exists (use -force to overwrite)", *path)
	}
	pass, err := passphrase.NewSource(*passEnv, "Enter passphrase for the new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	fmt.Fprintf(out, "Address: %s\nKeystore: %s\n", crypto.FormatAddress(key.PubKey().Address().Raw()), *path)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	path := fs.String("keystore", "", "Path to the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return errors.New("address: -keystore is required")
	}
	pass, err := passphrase.NewSource(*passEnv, "Enter keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	fmt.Fprintln(out, crypto.FormatAddress(key.PubKey().Address().Raw()))
	return nil
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("out", defaultConfig, "Output path for the config file")
	owner := fs.String("owner", "", "Owner address (cpay1...)")
	agent := fs.String("agent", "", "Agent address (cpay1...)")
	custody := fs.String("custody", "", "Custody address holding pulled funds (cpay1...)")
	dataDir := fs.String("data-dir", "", "Data directory for the ledger and audit databases")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("init: %s already exists (use -force to overwrite)", *path)
	}
	cfg, err := newNodeConfig(*owner, *agent, *custody, *dataDir)
	if err != nil {
		return err
	}
	if err := config.Persist(*path, cfg); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", *path)
	return nil
}

func newNodeConfig(owner, agent, custody, dataDir string) (*config.Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("init: generate secret: %w", err)
	}
	cfg := config.Default()
	if dir := strings.TrimSpace(dataDir); dir != "" {
		cfg.DataDir = dir
		cfg.Audit.DSN = filepath.Join(dir, "audit.db")
	}
	cfg.Ledger.Owner = strings.TrimSpace(owner)
	cfg.Ledger.Agent = strings.TrimSpace(agent)
	cfg.Ledger.Custody = strings.TrimSpace(custody)
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return cfg, nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	address := fs.String("address", "", "Caller address the token is issued for")
	ttl := fs.Duration("ttl", 0, "Token lifetime (defaults to auth.TokenTTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	caller, err := crypto.ParseLedgerAddress(*address)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	token, err := issueToken(cfg, caller, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func issueToken(cfg *config.Config, caller [20]byte, ttl time.Duration) (string, error) {
	secret, err := cfg.Auth.JWTSecretValue()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL.Duration
	}
	auth, err := ledgerd.NewAuthenticator(secret, cfg.Auth.Issuer, ttl)
	if err != nil {
		return "", err
	}
	return auth.Issue(caller)
}

func openAudit(ctx context.Context, configPath string) (*auditlog.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := auditlog.Open(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	store, err := auditlog.New(ctx, db, nil)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	path := fs.String("out", "audit.parquet", "Output parquet file")
	after := fs.Uint64("after", 0, "Only export entries with a greater sequence number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	store, closeFn, err := openAudit(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	n, err := store.ExportParquet(ctx, *path, *after)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d entries to %s\n", n, *path)
	return nil
}

func runVerify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledgerd config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx := context.Background()
	store, closeFn, err := openAudit(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := store.Verify(ctx); err != nil {
		return err
	}
	seq, hash := store.Head()
	fmt.Fprintf(out, "Audit chain intact: %d entries, head %s\n", seq, hash)
	return nil
}
