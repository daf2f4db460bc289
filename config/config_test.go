package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Database.Driver != "sqlite" || cfg.Lightning.Backend != "fake" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Lightning.InvoiceExpiry != time.Hour {
		t.Fatalf("invoice expiry = %v", cfg.Lightning.InvoiceExpiry)
	}
	if cfg.LND.Network != "mainnet" || cfg.Lightning.MaxInvoiceSat != 0 {
		t.Fatalf("lnd network = %q, max invoice = %d", cfg.LND.Network, cfg.Lightning.MaxInvoiceSat)
	}
}

func TestValidateLndNetwork(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LNW_LIGHTNING_BACKEND", "lnd")
	t.Setenv("LNW_LND_TLS_CERT_PATH", "tls.cert")
	t.Setenv("LNW_LND_MACAROON_PATH", "admin.macaroon")
	t.Setenv("LNW_LND_NETWORK", "testnet")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LND.Network != "testnet" {
		t.Fatalf("lnd network = %q", cfg.LND.Network)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "ln.yaml")
	yaml := "server:\n  port: 9000\nreconcile:\n  poll_interval: 5s\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LNW_LOG_LEVEL", "warn")
	t.Setenv("LNW_DATABASE_DRIVER", "postgres")
	t.Setenv("LNW_DATABASE_DSN", "host=db user=ln dbname=ln sslmode=disable")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Reconcile.PollInterval != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" || cfg.Database.Driver != "postgres" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LNW_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LNW_SERVER_PORT") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := map[string]func(c *Config){
		"driver":      func(c *Config) { c.Database.Driver = "mysql" },
		"backend":     func(c *Config) { c.Lightning.Backend = "eclair" },
		"lnd":         func(c *Config) { c.Lightning.Backend = "lnd" },
		"network":     func(c *Config) { c.Fake.Network = "litecoin" },
		"interval":    func(c *Config) { c.Reconcile.PollInterval = 0 },
		"batch":       func(c *Config) { c.Reconcile.MaxBatch = 1 },
		"port":        func(c *Config) { c.Server.Port = 0 },
		"max invoice": func(c *Config) { c.Lightning.MaxInvoiceSat = 21_000_000*100_000_000 + 1 },
		"lnd network": func(c *Config) {
			c.Lightning.Backend = "lnd"
			c.LND.Host, c.LND.TLSCertPath, c.LND.MacaroonPath = "localhost:10009", "tls.cert", "admin.macaroon"
			c.LND.Network = "litecoin"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
