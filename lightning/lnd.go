package lightning

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/macaroons"
	"github.com/lightningnetwork/lnd/zpay32"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"gopkg.in/macaroon.v2"
)

const lndSource = "lnd"

// LndConfig holds connection configuration.
type LndConfig struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
	// Network the node's invoices must be encoded for. Nil means regtest.
	Network *chaincfg.Params
}

// LndBackend implements Backend against an lnd node over gRPC.
type LndBackend struct {
	client lnrpc.LightningClient
	conn   *grpc.ClientConn
	net    *chaincfg.Params
	logger *zap.Logger

	// highest settle index seen, so a resubscribe replays what was missed
	settleIndex atomic.Uint64
}

var _ Backend = (*LndBackend)(nil)

func NewLndBackend(cfg LndConfig, logger *zap.Logger) (*LndBackend, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load tls cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("unmarshal macaroon: %w", err)
	}
	macCreds, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCreds),
	)
	if err != nil {
		return nil, fmt.Errorf("dial lnd: %w", err)
	}

	net := cfg.Network
	if net == nil {
		net = &chaincfg.RegressionNetParams
	}
	return &LndBackend{
		client: lnrpc.NewLightningClient(conn),
		conn:   conn,
		net:    net,
		logger: logger.Named("lnd"),
	}, nil
}

func (b *LndBackend) Close() error {
	return b.conn.Close()
}

func (b *LndBackend) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if err := CheckAmount(req.AmountSat); err != nil {
		return nil, err
	}
	resp, err := b.client.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:   req.Memo,
		Value:  req.AmountSat,
		Expiry: int64(req.Expiry / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("add invoice: %w", err)
	}
	hash := hex.EncodeToString(resp.RHash)
	expiresAt, err := checkPaymentRequest(resp.PaymentRequest, b.net, hash, req.AmountSat)
	if err != nil {
		return nil, err
	}
	return &Invoice{
		PaymentHash:    hash,
		PaymentRequest: resp.PaymentRequest,
		ExpiresAt:      expiresAt,
	}, nil
}

// checkPaymentRequest decodes the bolt11 the node returned and makes sure
// it charges what was asked, for the expected hash and network. It returns
// the invoice's expiry time.
func checkPaymentRequest(pr string, net *chaincfg.Params, hash string, amountSat int64) (time.Time, error) {
	inv, err := zpay32.Decode(pr, net)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode payment request: %w", err)
	}
	if inv.PaymentHash == nil || lntypes.Hash(*inv.PaymentHash).String() != hash {
		return time.Time{}, fmt.Errorf("payment request does not match hash %s", hash)
	}
	want := lnwire.NewMSatFromSatoshis(btcutil.Amount(amountSat))
	if inv.MilliSat == nil {
		return time.Time{}, fmt.Errorf("payment request has no amount: %w", ErrAmountOutOfRange)
	}
	if *inv.MilliSat != want {
		return time.Time{}, fmt.Errorf("payment request asks %v, want %v: %w", *inv.MilliSat, want, ErrAmountOutOfRange)
	}
	return inv.Timestamp.Add(inv.Expiry()), nil
}

func (b *LndBackend) LookupInvoice(ctx context.Context, paymentHash string) (*InvoiceStatus, error) {
	hash, err := lntypes.MakeHashFromStr(paymentHash)
	if err != nil {
		return nil, fmt.Errorf("invalid payment hash: %w", err)
	}
	inv, err := b.client.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hash[:]})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}
	return lndStatus(inv), nil
}

func (b *LndBackend) SubscribeSettlements(ctx context.Context) (<-chan Settlement, <-chan error, error) {
	stream, err := b.client.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{
		SettleIndex: b.settleIndex.Load(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe invoices: %w", err)
	}

	updates := make(chan Settlement)
	errs := make(chan error, 1)

	go func() {
		for {
			inv, err := stream.Recv()
			if err != nil {
				b.logger.Debug("invoice stream closed", zap.Error(err))
				errs <- err
				return
			}
			if inv.State != lnrpc.Invoice_SETTLED {
				continue
			}
			if inv.SettleIndex > b.settleIndex.Load() {
				b.settleIndex.Store(inv.SettleIndex)
			}
			select {
			case updates <- lndStatus(inv).Settlement(lndSource):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return updates, errs, nil
}

func lndStatus(inv *lnrpc.Invoice) *InvoiceStatus {
	st := &InvoiceStatus{
		PaymentHash:   hex.EncodeToString(inv.RHash),
		AmountPaidSat: inv.AmtPaidSat,
		Preimage:      hex.EncodeToString(inv.RPreimage),
	}
	switch inv.State {
	case lnrpc.Invoice_OPEN:
		st.State = StateOpen
	case lnrpc.Invoice_SETTLED:
		st.State = StateSettled
	case lnrpc.Invoice_CANCELED:
		st.State = StateCanceled
	case lnrpc.Invoice_ACCEPTED:
		st.State = StateAccepted
	}
	if inv.SettleDate > 0 {
		st.SettledAt = time.Unix(inv.SettleDate, 0)
	}
	return st
}

func isNotFound(err error) bool {
	if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
		return true
	}
	return strings.Contains(err.Error(), "unable to locate invoice")
}
