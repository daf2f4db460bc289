// Package routertest assembles the full HTTP stack over an in-memory
// database and the fake Lightning node.
package routertest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"github.com/ln_wallet/repository/repotest"
	"github.com/ln_wallet/router"
	"github.com/ln_wallet/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Builder constructs an extension over the shared database.
type Builder func(db *gorm.DB, deps extension.Deps) extension.Extension

type Env struct {
	DB       *gorm.DB
	Backend  *lightning.FakeBackend
	Wallets  *service.WalletService
	Payments *service.PaymentService
	Deps     extension.Deps
	Router   *gin.Engine
}

func New(t *testing.T, builders ...Builder) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := repotest.Open(t)
	backend, err := lightning.NewFakeBackend("", nil)
	if err != nil {
		t.Fatalf("fake backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	paymentRepo := repository.NewPaymentRepository(db)
	wallets := service.NewWalletService(db, logger)
	recon := service.NewReconciler(db, metrics, logger)
	invoices := service.NewInvoiceService(wallets, paymentRepo, backend,
		service.InvoiceOptions{Expiry: time.Hour, Timeout: time.Second}, metrics, logger)
	payments := service.NewPaymentService(paymentRepo, backend, recon, time.Second, metrics, logger)
	auth := handler.NewAuth(wallets)

	deps := extension.Deps{
		Auth:     auth,
		Wallets:  wallets,
		Invoices: invoices,
		Payments: payments,
		Logger:   logger,
	}
	exts := make([]extension.Extension, 0, len(builders))
	for _, b := range builders {
		exts = append(exts, b(db, deps))
	}
	if models := extension.Models(exts...); len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate extensions: %v", err)
		}
	}

	r := router.SetupRouter(router.Handlers{
		Wallet: handler.NewWalletHandler(wallets, invoices, payments, logger),
		Health: handler.NewHealthHandler(db),
		Auth:   auth,
	}, logger, reg, exts...)

	return &Env{
		DB:       db,
		Backend:  backend,
		Wallets:  wallets,
		Payments: payments,
		Deps:     deps,
		Router:   r,
	}
}

// Do performs a request with an optional API key and JSON body.
func (e *Env) Do(method, path, key string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(handler.HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// Account creates a user with one wallet and enables caps for it.
func (e *Env) Account(t *testing.T, caps ...model.Capability) *model.Wallet {
	t.Helper()
	ctx := context.Background()
	_, w, err := e.Wallets.CreateAccount(ctx, service.CreateAccountParams{UserName: "test"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	for _, c := range caps {
		if err := e.Wallets.SetCapability(ctx, w.UserID, c, true); err != nil {
			t.Fatalf("enable %s: %v", c, err)
		}
	}
	return w
}

// Balance reads the wallet balance straight from the ledger.
func (e *Env) Balance(t *testing.T, walletID string) int64 {
	t.Helper()
	var w model.Wallet
	if err := e.DB.Unscoped().Where("id = ?", walletID).First(&w).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return w.BalanceSat
}

// Decode unmarshals the response body, failing on a status mismatch.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, status int, v any) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, status, rec.Body.String())
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

// ExpectStatus fails unless the response carries status.
func ExpectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, status, rec.Body.String())
	}
}

