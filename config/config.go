package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LNW"

type Config struct {
	Server struct {
		Port    int    `mapstructure:"port"`
		GinMode string `mapstructure:"gin_mode"`
	} `mapstructure:"server"`
	Database struct {
		Driver       string `mapstructure:"driver"` // postgres | sqlite
		DSN          string `mapstructure:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`
	Lightning struct {
		Backend        string        `mapstructure:"backend"` // lnd | fake
		InvoiceExpiry  time.Duration `mapstructure:"invoice_expiry"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		MaxInvoiceSat  int64         `mapstructure:"max_invoice_sat"` // 0 means the node limit
	} `mapstructure:"lightning"`
	LND struct {
		Host         string `mapstructure:"host"`
		TLSCertPath  string `mapstructure:"tls_cert_path"`
		MacaroonPath string `mapstructure:"macaroon_path"`
		Network      string `mapstructure:"network"`
	} `mapstructure:"lnd"`
	Fake struct {
		Mnemonic string `mapstructure:"mnemonic"`
		Network  string `mapstructure:"network"`
	} `mapstructure:"fake"`
	Reconcile struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		BatchSize    int           `mapstructure:"batch_size"`
		MinBatch     int           `mapstructure:"min_batch"`
		MaxBatch     int           `mapstructure:"max_batch"`
		MinRetry     time.Duration `mapstructure:"min_retry"`
		MaxRetry     time.Duration `mapstructure:"max_retry"`
	} `mapstructure:"reconcile"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:ln_wallet.db?_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("lightning.backend", "fake")
	v.SetDefault("lightning.invoice_expiry", time.Hour)
	v.SetDefault("lightning.request_timeout", 10*time.Second)
	v.SetDefault("lightning.max_invoice_sat", 0)
	v.SetDefault("lnd.host", "localhost:10009")
	v.SetDefault("lnd.tls_cert_path", "")
	v.SetDefault("lnd.macaroon_path", "")
	v.SetDefault("lnd.network", "mainnet")
	v.SetDefault("fake.mnemonic", "")
	v.SetDefault("fake.network", "regtest")
	v.SetDefault("reconcile.poll_interval", 30*time.Second)
	v.SetDefault("reconcile.batch_size", 50)
	v.SetDefault("reconcile.min_batch", 10)
	v.SetDefault("reconcile.max_batch", 500)
	v.SetDefault("reconcile.min_retry", 500*time.Millisecond)
	v.SetDefault("reconcile.max_retry", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, then an optional yaml file, then a .env file and
// LNW_* environment variables. An empty path looks for ./config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	switch c.Lightning.Backend {
	case "lnd":
		if c.LND.Host == "" || c.LND.TLSCertPath == "" || c.LND.MacaroonPath == "" {
			return errors.New("config: lnd backend needs host, tls_cert_path and macaroon_path")
		}
		if !knownNetwork(c.LND.Network) {
			return fmt.Errorf("config: unknown network %q", c.LND.Network)
		}
	case "fake":
		if !knownNetwork(c.Fake.Network) {
			return fmt.Errorf("config: unknown network %q", c.Fake.Network)
		}
	default:
		return fmt.Errorf("config: unknown lightning backend %q", c.Lightning.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Lightning.InvoiceExpiry <= 0 || c.Lightning.RequestTimeout <= 0 {
		return errors.New("config: lightning durations must be positive")
	}
	if c.Lightning.MaxInvoiceSat < 0 || c.Lightning.MaxInvoiceSat > int64(btcutil.MaxSatoshi) {
		return fmt.Errorf("config: lightning.max_invoice_sat must be between 0 and %d", int64(btcutil.MaxSatoshi))
	}
	if c.Reconcile.PollInterval <= 0 || c.Reconcile.MinRetry <= 0 || c.Reconcile.MaxRetry < c.Reconcile.MinRetry {
		return errors.New("config: reconcile intervals must be positive")
	}
	if c.Reconcile.MinBatch <= 0 || c.Reconcile.MaxBatch < c.Reconcile.MinBatch {
		return errors.New("config: reconcile batch bounds are invalid")
	}
	return nil
}

func knownNetwork(name string) bool {
	switch name {
	case "mainnet", "testnet", "signet", "regtest", "simnet":
		return true
	}
	return false
}
