package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
)

const maxMemoLength = 639

type InvoiceOptions struct {
	Expiry  time.Duration
	Timeout time.Duration
	// MaxAmountSat caps a single invoice. Zero or anything above the node
	// limit means lightning.MaxInvoiceSat.
	MaxAmountSat int64
}

type InvoiceService struct {
	wallets  *WalletService
	payments *repository.PaymentRepository
	backend  lightning.Backend
	opts     InvoiceOptions
	metrics  *Metrics
	logger   *zap.Logger
}

func NewInvoiceService(wallets *WalletService, payments *repository.PaymentRepository, backend lightning.Backend,
	opts InvoiceOptions, metrics *Metrics, logger *zap.Logger) *InvoiceService {
	if opts.Expiry <= 0 {
		opts.Expiry = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAmountSat <= 0 || opts.MaxAmountSat > lightning.MaxInvoiceSat {
		opts.MaxAmountSat = lightning.MaxInvoiceSat
	}
	return &InvoiceService{
		wallets:  wallets,
		payments: payments,
		backend:  backend,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

type CreateInvoiceParams struct {
	WalletID  string
	AmountSat int64
	Memo      string
	Extra     model.Extra
	Expiry    time.Duration
}

type CreatedInvoice struct {
	PaymentHash    string    `json:"payment_hash"`
	PaymentRequest string    `json:"payment_request"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CreateInvoice asks the node for an invoice and records it as pending
// against the wallet. Nothing is persisted when the node is unreachable.
func (s *InvoiceService) CreateInvoice(ctx context.Context, p CreateInvoiceParams) (*CreatedInvoice, error) {
	if p.AmountSat <= 0 || p.AmountSat > s.opts.MaxAmountSat {
		return nil, ErrInvalidAmount
	}
	memo := strings.TrimSpace(p.Memo)
	if len(memo) > maxMemoLength {
		return nil, InvalidInput("memo too long")
	}
	if _, err := s.wallets.GetWallet(ctx, p.WalletID); err != nil {
		return nil, err
	}
	expiry := p.Expiry
	if expiry <= 0 {
		expiry = s.opts.Expiry
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	inv, err := s.backend.CreateInvoice(cctx, lightning.InvoiceRequest{
		AmountSat: p.AmountSat,
		Memo:      memo,
		Expiry:    expiry,
	})
	if err != nil {
		s.metrics.UpstreamFailures.WithLabelValues("create_invoice").Inc()
		s.logger.Warn("create invoice failed", zap.String("wallet_id", p.WalletID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	payment := &model.Payment{
		PaymentHash:    inv.PaymentHash,
		WalletID:       p.WalletID,
		AmountSat:      p.AmountSat,
		Memo:           memo,
		Extra:          p.Extra,
		PaymentRequest: inv.PaymentRequest,
		Status:         model.PaymentPending,
		ExpiresAt:      inv.ExpiresAt,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist invoice: %w", err)
	}
	s.metrics.InvoicesCreated.Inc()
	s.logger.Info("invoice created",
		zap.String("payment_hash", inv.PaymentHash),
		zap.String("wallet_id", p.WalletID),
		zap.Int64("amount_sat", p.AmountSat))

	return &CreatedInvoice{
		PaymentHash:    inv.PaymentHash,
		PaymentRequest: inv.PaymentRequest,
		ExpiresAt:      inv.ExpiresAt,
	}, nil
}

// ListPayments pages through a wallet's payments, newest first.
func (s *InvoiceService) ListPayments(ctx context.Context, walletID string, page, size int) ([]*model.Payment, int64, error) {
	return s.payments.ListByWallet(ctx, walletID, page, size)
}
