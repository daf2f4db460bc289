package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/config"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/extension/lnticket"
	"github.com/ln_wallet/extension/tpos"
	"github.com/ln_wallet/extension/usermanager"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"github.com/ln_wallet/router"
	"github.com/ln_wallet/service"
	"github.com/ln_wallet/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("exit", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	backend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	metrics := service.NewMetrics(prometheus.DefaultRegisterer)
	paymentRepo := repository.NewPaymentRepository(db)
	wallets := service.NewWalletService(db, logger)
	recon := service.NewReconciler(db, metrics, logger)
	invoices := service.NewInvoiceService(wallets, paymentRepo, backend, service.InvoiceOptions{
		Expiry:       cfg.Lightning.InvoiceExpiry,
		Timeout:      cfg.Lightning.RequestTimeout,
		MaxAmountSat: cfg.Lightning.MaxInvoiceSat,
	}, metrics, logger)
	payments := service.NewPaymentService(paymentRepo, backend, recon, cfg.Lightning.RequestTimeout, metrics, logger)
	scanner := service.NewScanner(paymentRepo, backend, recon, service.ScannerOptions{
		Interval:    cfg.Reconcile.PollInterval,
		Timeout:     cfg.Lightning.RequestTimeout,
		InitialStep: cfg.Reconcile.BatchSize,
		MinStep:     cfg.Reconcile.MinBatch,
		MaxStep:     cfg.Reconcile.MaxBatch,
	}, metrics, logger)
	listener := service.NewListener(backend, recon, scanner, service.ListenerOptions{
		MinRetry: cfg.Reconcile.MinRetry,
		MaxRetry: cfg.Reconcile.MaxRetry,
	}, logger)

	auth := handler.NewAuth(wallets)
	deps := extension.Deps{
		Auth:     auth,
		Wallets:  wallets,
		Invoices: invoices,
		Payments: payments,
		Logger:   logger,
	}
	exts := []extension.Extension{
		tpos.New(db, deps),
		lnticket.New(db, deps),
		usermanager.New(deps),
	}
	if err := migrate(db, exts); err != nil {
		return err
	}

	gin.SetMode(cfg.Server.GinMode)
	r := router.SetupRouter(router.Handlers{
		Wallet: handler.NewWalletHandler(wallets, invoices, payments, logger),
		Health: handler.NewHealthHandler(db),
		Auth:   auth,
	}, logger, prometheus.DefaultGatherer, exts...)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return scanner.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.Database.DSN), gcfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Database.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	return db, nil
}

func migrate(db *gorm.DB, exts []extension.Extension) error {
	if err := model.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate core: %w", err)
	}
	if models := extension.Models(exts...); len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return fmt.Errorf("migrate extensions: %w", err)
		}
	}
	return nil
}

func openBackend(cfg *config.Config, logger *zap.Logger) (lightning.Backend, error) {
	switch cfg.Lightning.Backend {
	case "lnd":
		net, err := lightning.NetParams(cfg.LND.Network)
		if err != nil {
			return nil, err
		}
		return lightning.NewLndBackend(lightning.LndConfig{
			Host:         cfg.LND.Host,
			TLSCertPath:  cfg.LND.TLSCertPath,
			MacaroonPath: cfg.LND.MacaroonPath,
			Network:      net,
		}, logger)
	case "fake":
		net, err := lightning.NetParams(cfg.Fake.Network)
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-process fake lightning node", zap.String("network", net.Name))
		return lightning.NewFakeBackend(cfg.Fake.Mnemonic, net)
	}
	return nil, fmt.Errorf("unknown lightning backend %q", cfg.Lightning.Backend)
}
