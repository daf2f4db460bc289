package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler is the only writer of paid status and wallet balances.
// Each settlement is applied inside one transaction: lock the payment,
// journal the event, flip pending to paid, credit the wallet.
type Reconciler struct {
	db          *gorm.DB
	payments    *repository.PaymentRepository
	settlements *repository.SettlementRepository
	wallets     *repository.WalletRepository
	metrics     *Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewReconciler(db *gorm.DB, metrics *Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:          db,
		payments:    repository.NewPaymentRepository(db),
		settlements: repository.NewSettlementRepository(db),
		wallets:     repository.NewWalletRepository(db),
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Apply credits the wallet behind s exactly once. It reports whether this
// call performed the credit; a settlement that was already applied is
// absorbed and returns (false, nil). A settlement smaller than the invoice
// moves it to error without a credit.
func (r *Reconciler) Apply(ctx context.Context, s lightning.Settlement) (bool, error) {
	if s.PaymentHash == "" {
		return false, InvalidInput("settlement without payment hash")
	}
	settledAt := s.SettledAt
	if settledAt.IsZero() {
		settledAt = r.now()
	}

	var credited, underpaid *model.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := r.payments.WithTx(tx)
		p, err := payments.LockByHash(ctx, s.PaymentHash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if !p.Status.CanTransition(model.PaymentPaid) {
			return ErrAlreadyPaid
		}

		inserted, err := r.settlements.WithTx(tx).Record(ctx, &model.SettlementEvent{
			PaymentHash: s.PaymentHash,
			AmountSat:   s.AmountSat,
			FeeSat:      s.FeeSat,
			Preimage:    s.Preimage,
			Source:      s.Source,
			SettledAt:   settledAt,
		})
		if err != nil {
			return fmt.Errorf("journal settlement: %w", err)
		}
		if !inserted {
			return ErrDuplicateSettlement
		}

		if s.AmountSat < p.AmountSat {
			n, err := payments.MarkStatus(ctx, p.PaymentHash, model.PaymentError)
			if err != nil {
				return fmt.Errorf("mark underpaid: %w", err)
			}
			if n == 0 {
				return ErrAlreadyPaid
			}
			underpaid = p
			return nil
		}

		n, err := payments.MarkPaid(ctx, p.PaymentHash, s.FeeSat, s.Preimage, settledAt)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if n == 0 {
			return ErrAlreadyPaid
		}

		// the invoice amount is credited, not what the payer sent
		n, err = r.wallets.WithTx(tx).Credit(ctx, p.WalletID, p.AmountSat)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("credit wallet %s: %w", p.WalletID, ErrWalletNotFound)
		}
		p.Status = model.PaymentPaid
		credited = p
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			r.metrics.SettlementsAbsorbed.Inc()
			r.logger.Debug("settlement absorbed",
				zap.String("payment_hash", s.PaymentHash),
				zap.String("source", s.Source),
				zap.Error(err))
			return false, nil
		}
		return false, err
	}
	if underpaid != nil {
		r.metrics.SettlementsRejected.Inc()
		r.logger.Error("settlement below invoice amount",
			zap.String("payment_hash", underpaid.PaymentHash),
			zap.String("wallet_id", underpaid.WalletID),
			zap.Int64("invoice_sat", underpaid.AmountSat),
			zap.Int64("settled_sat", s.AmountSat),
			zap.String("source", s.Source))
		return false, nil
	}

	r.metrics.SettlementsCredited.Inc()
	r.logger.Info("payment settled",
		zap.String("payment_hash", credited.PaymentHash),
		zap.String("wallet_id", credited.WalletID),
		zap.Int64("amount_sat", credited.AmountSat),
		zap.String("source", s.Source))
	return true, nil
}

// Expire moves a pending payment to expired. It reports false when the
// payment had already left pending.
func (r *Reconciler) Expire(ctx context.Context, paymentHash string) (bool, error) {
	n, err := r.payments.MarkStatus(ctx, paymentHash, model.PaymentExpired)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	r.metrics.InvoicesExpired.Inc()
	r.logger.Info("payment expired", zap.String("payment_hash", paymentHash))
	return true, nil
}
