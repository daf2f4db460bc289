package service

import (
	"context"
	"errors"
	"time"

	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// StatusUnknown is reported when the node could not be asked about a
// pending invoice.
const StatusUnknown = "unknown"

type PaymentStatus struct {
	PaymentHash string     `json:"payment_hash"`
	Paid        bool       `json:"paid"`
	Status      string     `json:"status"`
	AmountSat   int64      `json:"amount"`
	FeeSat      int64      `json:"fee"`
	Preimage    string     `json:"preimage,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

func statusOf(p *model.Payment) *PaymentStatus {
	return &PaymentStatus{
		PaymentHash: p.PaymentHash,
		Paid:        p.Status == model.PaymentPaid,
		Status:      string(p.Status),
		AmountSat:   p.AmountSat,
		FeeSat:      p.FeeSat,
		Preimage:    p.Preimage,
		SettledAt:   p.SettledAt,
	}
}

type PaymentService struct {
	payments   *repository.PaymentRepository
	backend    lightning.Backend
	reconciler *Reconciler
	timeout    time.Duration
	group      singleflight.Group
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewPaymentService(payments *repository.PaymentRepository, backend lightning.Backend, reconciler *Reconciler,
	timeout time.Duration, metrics *Metrics, logger *zap.Logger) *PaymentService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PaymentService{
		payments:   payments,
		backend:    backend,
		reconciler: reconciler,
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// GetPaymentStatus reports whether the invoice is paid. Terminal rows are
// answered from the ledger. For pending rows the node is asked once per
// hash at a time; a settled answer goes through the reconciler before it
// is reported, so paid=true always has its credit behind it.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, hash string) (*PaymentStatus, error) {
	p, err := s.payments.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if p.Status.Terminal() {
		return statusOf(p), nil
	}

	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.refresh(ctx, p)
	})
	if err != nil {
		s.logger.Debug("payment status unknown", zap.String("payment_hash", hash), zap.Error(err))
		st := statusOf(p)
		st.Status = StatusUnknown
		return st, nil
	}
	return v.(*PaymentStatus), nil
}

func (s *PaymentService) refresh(ctx context.Context, p *model.Payment) (*PaymentStatus, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	inv, err := s.backend.LookupInvoice(lctx, p.PaymentHash)
	switch {
	case errors.Is(err, lightning.ErrInvoiceNotFound):
		if p.Expired(s.now()) {
			return s.expire(lctx, p)
		}
		return statusOf(p), nil
	case err != nil:
		s.metrics.UpstreamFailures.WithLabelValues("lookup_invoice").Inc()
		return nil, err
	}

	switch inv.State {
	case lightning.StateSettled:
		if _, err := s.reconciler.Apply(lctx, inv.Settlement("status")); err != nil {
			return nil, err
		}
		return s.reload(lctx, p.PaymentHash)
	case lightning.StateCanceled:
		return s.expire(lctx, p)
	}
	return statusOf(p), nil
}

func (s *PaymentService) expire(ctx context.Context, p *model.Payment) (*PaymentStatus, error) {
	if _, err := s.reconciler.Expire(ctx, p.PaymentHash); err != nil {
		return nil, err
	}
	return s.reload(ctx, p.PaymentHash)
}

func (s *PaymentService) reload(ctx context.Context, hash string) (*PaymentStatus, error) {
	p, err := s.payments.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return statusOf(p), nil
}

// IsPaid is the boolean view of GetPaymentStatus. A node that cannot be
// reached reads as not paid.
func (s *PaymentService) IsPaid(ctx context.Context, hash string) (bool, error) {
	st, err := s.GetPaymentStatus(ctx, hash)
	if err != nil {
		return false, err
	}
	return st.Paid, nil
}
