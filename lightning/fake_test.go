package lightning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b, err := NewFakeBackend(testMnemonic, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("new fake backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestFakeBackendInvoiceDecodes(t *testing.T) {
	b := newTestBackend(t)
	inv, err := b.CreateInvoice(context.Background(), InvoiceRequest{AmountSat: 1000, Memo: "coffee", Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	decoded, err := zpay32.Decode(inv.PaymentRequest, b.Network())
	if err != nil {
		t.Fatalf("decode %q: %v", inv.PaymentRequest, err)
	}
	if decoded.PaymentHash == nil {
		t.Fatal("decoded invoice has no payment hash")
	}
	if got := lntypes.Hash(*decoded.PaymentHash).String(); got != inv.PaymentHash {
		t.Fatalf("payment hash = %s, want %s", got, inv.PaymentHash)
	}
	if decoded.MilliSat == nil || *decoded.MilliSat != lnwire.MilliSatoshi(1000*1000) {
		t.Fatalf("amount = %v, want 1000000 msat", decoded.MilliSat)
	}
	if decoded.Description == nil || *decoded.Description != "coffee" {
		t.Fatalf("description = %v", decoded.Description)
	}
	if !decoded.Destination.IsEqual(b.NodePubKey()) {
		t.Fatal("invoice not signed by the node key")
	}
}

func TestFakeBackendDeterministicKey(t *testing.T) {
	a := newTestBackend(t)
	b := newTestBackend(t)
	if !a.NodePubKey().IsEqual(b.NodePubKey()) {
		t.Fatal("same mnemonic produced different node keys")
	}
	if _, err := NewFakeBackend("not a mnemonic", nil); err == nil {
		t.Fatal("expected invalid mnemonic error")
	}
}

func TestFakeBackendPayStreams(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, _, err := b.SubscribeSettlements(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	inv, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 21, Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := b.Pay(inv.PaymentHash); err != nil {
		t.Fatalf("pay: %v", err)
	}

	select {
	case s := <-updates:
		if s.PaymentHash != inv.PaymentHash || s.AmountSat != 21 {
			t.Fatalf("settlement = %+v", s)
		}
		if s.Preimage == "" {
			t.Fatal("settlement without preimage")
		}
	case <-time.After(time.Second):
		t.Fatal("no settlement streamed")
	}

	st, err := b.LookupInvoice(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != StateSettled {
		t.Fatalf("state = %s, want SETTLED", st.State)
	}
	if err := b.Pay(inv.PaymentHash); err == nil {
		t.Fatal("paying a settled invoice twice succeeded")
	}
}

func TestFakeBackendOffline(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, errs, err := b.SubscribeSettlements(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	inv, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 5, Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	b.SetOffline(true)
	select {
	case err := <-errs:
		if !errors.Is(err, ErrNodeOffline) {
			t.Fatalf("stream error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not broken")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}
	if _, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 5, Expiry: time.Hour}); !errors.Is(err, ErrNodeOffline) {
		t.Fatalf("create while offline = %v", err)
	}
	if _, err := b.LookupInvoice(ctx, inv.PaymentHash); !errors.Is(err, ErrNodeOffline) {
		t.Fatalf("lookup while offline = %v", err)
	}

	// settles on the node side while we cannot see it
	if err := b.Pay(inv.PaymentHash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	b.SetOffline(false)
	st, err := b.LookupInvoice(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != StateSettled {
		t.Fatalf("state = %s", st.State)
	}
}

func TestFakeBackendExpiryAndCancel(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	now := time.Now()
	b.now = func() time.Time { return now }

	inv, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 5, Expiry: time.Minute})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	now = now.Add(2 * time.Minute)
	st, err := b.LookupInvoice(ctx, inv.PaymentHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != StateCanceled {
		t.Fatalf("state = %s, want CANCELED", st.State)
	}

	other, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 5, Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := b.Cancel(other.PaymentHash); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := b.Pay(other.PaymentHash); err == nil {
		t.Fatal("paying a canceled invoice succeeded")
	}
	if _, err := b.LookupInvoice(ctx, "00"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("lookup unknown = %v", err)
	}
}

func TestFakeBackendRejectsOversizedAmount(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.CreateInvoice(context.Background(), InvoiceRequest{AmountSat: MaxInvoiceSat + 1, Expiry: time.Hour})
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("err = %v", err)
	}
}

func TestFakeBackendLatencyHonoursContext(t *testing.T) {
	b := newTestBackend(t)
	inv, err := b.CreateInvoice(context.Background(), InvoiceRequest{AmountSat: 10, Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	b.SetLatency(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := b.LookupInvoice(ctx, inv.PaymentHash); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("lookup err = %v", err)
	}
	if _, err := b.CreateInvoice(ctx, InvoiceRequest{AmountSat: 10, Expiry: time.Hour}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("create err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("calls blocked for %v", elapsed)
	}

	b.SetLatency(0)
	if _, err := b.LookupInvoice(context.Background(), inv.PaymentHash); err != nil {
		t.Fatalf("lookup without latency: %v", err)
	}
}

func TestFakeBackendPartialPayment(t *testing.T) {
	b := newTestBackend(t)
	inv, err := b.CreateInvoice(context.Background(), InvoiceRequest{AmountSat: 100, Expiry: time.Hour})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := b.PayAmount(inv.PaymentHash, 40); err != nil {
		t.Fatalf("pay: %v", err)
	}
	st, err := b.LookupInvoice(context.Background(), inv.PaymentHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if st.State != StateSettled || st.AmountPaidSat != 40 {
		t.Fatalf("status = %+v", st)
	}
}
