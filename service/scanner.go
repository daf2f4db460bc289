package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ln_wallet/lightning"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
)

type ScannerOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	InitialStep int
	MinStep     int
	MaxStep     int
}

const (
	successThreshold = 5
	failureThreshold = 1
)

// Scanner walks pending invoices and asks the node about each one. It is
// the recovery path for settlements the stream did not deliver.
type Scanner struct {
	payments *repository.PaymentRepository
	backend  lightning.Backend
	recon    *Reconciler
	opts     ScannerOptions
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time

	running      sync.Mutex
	mu           sync.Mutex
	step         int
	successCount int
	failureCount int
}

func NewScanner(payments *repository.PaymentRepository, backend lightning.Backend, recon *Reconciler,
	opts ScannerOptions, metrics *Metrics, logger *zap.Logger) *Scanner {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MinStep <= 0 {
		opts.MinStep = 10
	}
	if opts.MaxStep < opts.MinStep {
		opts.MaxStep = 500
	}
	if opts.InitialStep < opts.MinStep || opts.InitialStep > opts.MaxStep {
		opts.InitialStep = opts.MinStep
	}
	metrics.ScanBatchSize.Set(float64(opts.InitialStep))
	return &Scanner{
		payments: payments,
		backend:  backend,
		recon:    recon,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		step:     opts.InitialStep,
	}
}

// Step returns the current batch size.
func (s *Scanner) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Scanner) adjustStepOnSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successCount++
	s.failureCount = 0
	if s.successCount >= successThreshold {
		newStep := int(float64(s.step) * 1.5)
		if newStep > s.opts.MaxStep {
			newStep = s.opts.MaxStep
		}
		if newStep > s.step {
			s.logger.Debug("increase scan step", zap.Int("from", s.step), zap.Int("to", newStep))
			s.step = newStep
			s.metrics.ScanBatchSize.Set(float64(newStep))
		}
		s.successCount = 0
	}
}

func (s *Scanner) adjustStepOnFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	s.successCount = 0
	if s.failureCount >= failureThreshold {
		newStep := int(float64(s.step) * 0.5)
		if newStep < s.opts.MinStep {
			newStep = s.opts.MinStep
		}
		if newStep < s.step {
			s.logger.Debug("decrease scan step", zap.Int("from", s.step), zap.Int("to", newStep))
			s.step = newStep
			s.metrics.ScanBatchSize.Set(float64(newStep))
		}
		s.failureCount = 0
	}
}

// ScanOnce makes one pass over all pending invoices. A pass already in
// progress makes this call a no-op. Invoices the node fails on are skipped
// and left pending; the pass stops early only when a whole batch fails,
// which means the node is unreachable.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		return nil
	}
	defer s.running.Unlock()

	var (
		cursor  repository.PendingCursor
		failed  int
		lastErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := s.Step()
		batch, err := s.payments.ListPending(ctx, cursor, step)
		if err != nil {
			return fmt.Errorf("list pending: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var batchFailed int
		for _, p := range batch {
			if err := s.check(ctx, p); err != nil {
				batchFailed++
				lastErr = err
				s.logger.Warn("check pending invoice", zap.String("payment_hash", p.PaymentHash), zap.Error(err))
			}
		}
		failed += batchFailed
		if batchFailed > 0 {
			s.adjustStepOnFailure()
		} else {
			s.adjustStepOnSuccess()
		}
		if batchFailed == len(batch) {
			return fmt.Errorf("scan batch: all %d failed: %w", len(batch), lastErr)
		}

		last := batch[len(batch)-1]
		cursor = repository.PendingCursor{CreatedAt: last.CreatedAt, PaymentHash: last.PaymentHash}
		if len(batch) < step {
			break
		}
	}
	if failed > 0 {
		return fmt.Errorf("scan: %d invoices failed: %w", failed, lastErr)
	}
	return nil
}

func (s *Scanner) check(ctx context.Context, p *model.Payment) error {
	lctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	inv, err := s.backend.LookupInvoice(lctx, p.PaymentHash)
	if err != nil {
		if errors.Is(err, lightning.ErrInvoiceNotFound) {
			if p.Expired(s.now()) {
				_, err := s.recon.Expire(ctx, p.PaymentHash)
				return err
			}
			return nil
		}
		s.metrics.UpstreamFailures.WithLabelValues("lookup_invoice").Inc()
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	switch inv.State {
	case lightning.StateSettled:
		_, err := s.recon.Apply(ctx, inv.Settlement("scan"))
		return err
	case lightning.StateCanceled:
		_, err := s.recon.Expire(ctx, p.PaymentHash)
		return err
	}
	return nil
}

// Run scans on every tick until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.ScanOnce(ctx); err != nil {
				s.logger.Warn("scan pending invoices", zap.Error(err))
			}
		}
	}
}
