package lightning

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/tyler-smith/go-bip39"
)

const fakeSource = "fake"

// node key path, m/1017'/0'/0' as lnd uses for its identity family
var fakeKeyPath = []uint32{
	hdkeychain.HardenedKeyStart + 1017,
	hdkeychain.HardenedKeyStart + 0,
	hdkeychain.HardenedKeyStart + 0,
}

type fakeInvoice struct {
	status    InvoiceStatus
	amountSat int64
	preimage  lntypes.Preimage
	expiresAt time.Time
}

type fakeSub struct {
	updates chan Settlement
	errs    chan error
	done    chan struct{}
}

// FakeBackend is an in-process node. It signs real bolt11 invoices with a
// key derived from a BIP-39 mnemonic and settles them when Pay is called.
type FakeBackend struct {
	mu       sync.Mutex
	key      *btcec.PrivateKey
	net      *chaincfg.Params
	invoices map[string]*fakeInvoice
	subs     map[int]*fakeSub
	nextSub  int
	offline  bool
	latency  time.Duration
	now      func() time.Time
}

var _ Backend = (*FakeBackend)(nil)

// NewFakeBackend derives the node key from mnemonic. An empty mnemonic
// generates a fresh one.
func NewFakeBackend(mnemonic string, net *chaincfg.Params) (*FakeBackend, error) {
	if mnemonic == "" {
		entropy, err := bip39.NewEntropy(128)
		if err != nil {
			return nil, fmt.Errorf("generate entropy: %w", err)
		}
		if mnemonic, err = bip39.NewMnemonic(entropy); err != nil {
			return nil, fmt.Errorf("generate mnemonic: %w", err)
		}
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	if net == nil {
		net = &chaincfg.RegressionNetParams
	}

	key, err := deriveNodeKey(bip39.NewSeed(mnemonic, ""), net)
	if err != nil {
		return nil, err
	}
	return &FakeBackend{
		key:      key,
		net:      net,
		invoices: make(map[string]*fakeInvoice),
		subs:     make(map[int]*fakeSub),
		now:      time.Now,
	}, nil
}

func deriveNodeKey(seed []byte, net *chaincfg.Params) (*btcec.PrivateKey, error) {
	k, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range fakeKeyPath {
		if k, err = k.Derive(idx); err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
	}
	return k.ECPrivKey()
}

// NodePubKey is the compressed public key invoices are signed with.
func (b *FakeBackend) NodePubKey() *btcec.PublicKey {
	return b.key.PubKey()
}

// Network returns the chain params invoices are encoded for.
func (b *FakeBackend) Network() *chaincfg.Params {
	return b.net
}

func (b *FakeBackend) Close() error {
	b.disconnectAll(ErrNodeOffline)
	return nil
}

func (b *FakeBackend) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if err := CheckAmount(req.AmountSat); err != nil {
		return nil, err
	}
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return nil, ErrNodeOffline
	}

	var preimage lntypes.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return nil, err
	}
	var paymentAddr [32]byte
	if _, err := rand.Read(paymentAddr[:]); err != nil {
		return nil, err
	}
	hash := preimage.Hash()
	now := b.now()

	inv, err := zpay32.NewInvoice(b.net, hash, now,
		zpay32.Amount(lnwire.NewMSatFromSatoshis(btcutil.Amount(req.AmountSat))),
		zpay32.Description(req.Memo),
		zpay32.Expiry(req.Expiry),
		zpay32.PaymentAddr(paymentAddr),
	)
	if err != nil {
		return nil, fmt.Errorf("build invoice: %w", err)
	}
	bolt11, err := inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(b.key, chainhash.HashB(msg), true), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign invoice: %w", err)
	}

	b.invoices[hash.String()] = &fakeInvoice{
		status:    InvoiceStatus{PaymentHash: hash.String(), State: StateOpen},
		amountSat: req.AmountSat,
		preimage:  preimage,
		expiresAt: now.Add(req.Expiry),
	}
	return &Invoice{
		PaymentHash:    hash.String(),
		PaymentRequest: bolt11,
		ExpiresAt:      now.Add(req.Expiry),
	}, nil
}

func (b *FakeBackend) LookupInvoice(ctx context.Context, paymentHash string) (*InvoiceStatus, error) {
	if err := b.delay(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return nil, ErrNodeOffline
	}
	inv, ok := b.invoices[paymentHash]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	if inv.status.State == StateOpen && b.now().After(inv.expiresAt) {
		inv.status.State = StateCanceled
	}
	st := inv.status
	return &st, nil
}

func (b *FakeBackend) SubscribeSettlements(ctx context.Context) (<-chan Settlement, <-chan error, error) {
	b.mu.Lock()
	if b.offline {
		b.mu.Unlock()
		return nil, nil, ErrNodeOffline
	}
	id := b.nextSub
	b.nextSub++
	sub := &fakeSub{
		updates: make(chan Settlement, 16),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.done)
			}
			b.mu.Unlock()
		case <-sub.done:
		}
	}()
	return sub.updates, sub.errs, nil
}

// Pay settles the invoice as if a payer had routed the full amount. While
// the node is offline the settlement is recorded but not streamed.
func (b *FakeBackend) Pay(paymentHash string) error {
	return b.PayAmount(paymentHash, 0)
}

// PayAmount settles the invoice with amountSat received. Zero means the
// invoice amount.
func (b *FakeBackend) PayAmount(paymentHash string, amountSat int64) error {
	b.mu.Lock()
	inv, ok := b.invoices[paymentHash]
	if !ok {
		b.mu.Unlock()
		return ErrInvoiceNotFound
	}
	if amountSat <= 0 {
		amountSat = inv.amountSat
	}
	if inv.status.State != StateOpen {
		b.mu.Unlock()
		return fmt.Errorf("lightning: invoice is %s", inv.status.State)
	}
	inv.status.State = StateSettled
	inv.status.AmountPaidSat = amountSat
	inv.status.Preimage = inv.preimage.String()
	inv.status.SettledAt = b.now()
	settlement := inv.status.Settlement(fakeSource)

	var subs []*fakeSub
	if !b.offline {
		for _, s := range b.subs {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.updates <- settlement:
		case <-s.done:
		}
	}
	return nil
}

// Redeliver streams an already settled invoice again, as a node does after
// a reconnect.
func (b *FakeBackend) Redeliver(paymentHash string) error {
	b.mu.Lock()
	inv, ok := b.invoices[paymentHash]
	if !ok || inv.status.State != StateSettled {
		b.mu.Unlock()
		return ErrInvoiceNotFound
	}
	settlement := inv.status.Settlement(fakeSource)
	subs := make([]*fakeSub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.updates <- settlement:
		case <-s.done:
		}
	}
	return nil
}

// Cancel marks an open invoice canceled.
func (b *FakeBackend) Cancel(paymentHash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invoices[paymentHash]
	if !ok {
		return ErrInvoiceNotFound
	}
	if inv.status.State == StateOpen {
		inv.status.State = StateCanceled
	}
	return nil
}

// SetOffline toggles reachability. Going offline breaks every open
// subscription.
func (b *FakeBackend) SetOffline(offline bool) {
	b.mu.Lock()
	b.offline = offline
	b.mu.Unlock()
	if offline {
		b.disconnectAll(ErrNodeOffline)
	}
}

// SetLatency makes every invoice call wait d before answering, or until
// the caller's context ends.
func (b *FakeBackend) SetLatency(d time.Duration) {
	b.mu.Lock()
	b.latency = d
	b.mu.Unlock()
}

func (b *FakeBackend) delay(ctx context.Context) error {
	b.mu.Lock()
	d := b.latency
	b.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Subscribers reports the number of open settlement streams.
func (b *FakeBackend) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *FakeBackend) disconnectAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		delete(b.subs, id)
		s.errs <- err
		close(s.done)
	}
}

// NetParams maps a network name to its chain parameters.
func NetParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest", "":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	}
	return nil, fmt.Errorf("lightning: unknown network %q", name)
}
