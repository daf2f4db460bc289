package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ln_wallet/lightning"
	"go.uber.org/zap"
)

// SettlementApplier applies a settlement to the ledger.
type SettlementApplier interface {
	Apply(ctx context.Context, s lightning.Settlement) (bool, error)
}

// CatchUp reconciles invoices whose settlement may have been missed.
type CatchUp interface {
	ScanOnce(ctx context.Context) error
}

type ListenerOptions struct {
	MinRetry time.Duration
	MaxRetry time.Duration
	// ApplyTries bounds retries of a single settlement on storage errors.
	ApplyTries uint
}

// Listener consumes the node's settlement stream. After every (re)connect
// it runs a catch-up pass so that settlements made while disconnected are
// credited too.
type Listener struct {
	backend lightning.Backend
	applier SettlementApplier
	catchUp CatchUp
	opts    ListenerOptions
	logger  *zap.Logger
}

func NewListener(backend lightning.Backend, applier SettlementApplier, catchUp CatchUp, opts ListenerOptions, logger *zap.Logger) *Listener {
	if opts.MinRetry <= 0 {
		opts.MinRetry = 500 * time.Millisecond
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 30 * time.Second
	}
	if opts.ApplyTries == 0 {
		opts.ApplyTries = 5
	}
	return &Listener{
		backend: backend,
		applier: applier,
		catchUp: catchUp,
		opts:    opts,
		logger:  logger,
	}
}

func (l *Listener) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.opts.MinRetry
	bo.MaxInterval = l.opts.MaxRetry
	return bo
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	bo := l.newBackOff()
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, errs, err := l.backend.SubscribeSettlements(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			l.logger.Warn("subscribe settlements failed", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}
		bo.Reset()
		l.logger.Info("listening for settlements")

		if l.catchUp != nil {
			if err := l.catchUp.ScanOnce(ctx); err != nil {
				l.logger.Warn("catch-up scan failed", zap.Error(err))
			}
		}

	streamLoop:
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-errs:
				if !ok {
					break streamLoop
				}
				l.logger.Warn("settlement stream broken", zap.Error(err))
				break streamLoop
			case s, ok := <-updates:
				if !ok {
					break streamLoop
				}
				l.handle(ctx, s)
			}
		}

		wait := bo.NextBackOff()
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

func (l *Listener) handle(ctx context.Context, s lightning.Settlement) {
	if s.Source == "" {
		s.Source = "stream"
	}
	_, err := backoff.Retry(ctx, func() (bool, error) {
		credited, err := l.applier.Apply(ctx, s)
		if err != nil && (IsNotFound(err) || IsInvalid(err)) {
			return false, backoff.Permanent(err)
		}
		return credited, err
	}, backoff.WithBackOff(l.newBackOff()), backoff.WithMaxTries(l.opts.ApplyTries))
	if err == nil {
		return
	}
	if IsNotFound(err) {
		// invoices issued outside this ledger share the node
		l.logger.Debug("settlement for unknown invoice", zap.String("payment_hash", s.PaymentHash))
		return
	}
	// left pending; the next catch-up pass picks it up
	l.logger.Error("apply settlement failed", zap.String("payment_hash", s.PaymentHash), zap.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
