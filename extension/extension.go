// Package extension defines how feature modules plug into the router.
package extension

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/ln_wallet/handler"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/service"
	"go.uber.org/zap"
)

// Extension is a feature module built on the ledger core. The router is
// handed an explicit list of them; each is mounted under /<Name()>.
type Extension interface {
	Name() string
	// Models lists the gorm models to migrate at startup.
	Models() []any
	RegisterRoutes(rg *gin.RouterGroup)
}

// Invoicer issues invoices and lists a wallet's payments.
type Invoicer interface {
	CreateInvoice(ctx context.Context, p service.CreateInvoiceParams) (*service.CreatedInvoice, error)
	ListPayments(ctx context.Context, walletID string, page, size int) ([]*model.Payment, int64, error)
}

// StatusChecker answers whether an invoice has been paid.
type StatusChecker interface {
	GetPaymentStatus(ctx context.Context, hash string) (*service.PaymentStatus, error)
	IsPaid(ctx context.Context, hash string) (bool, error)
}

// Deps is what the core hands to every extension. Extensions never touch
// balances; they only create invoices and read their status.
type Deps struct {
	Auth     *handler.Auth
	Wallets  *service.WalletService
	Invoices Invoicer
	Payments StatusChecker
	Logger   *zap.Logger
}

// Models collects the models of every extension.
func Models(exts ...Extension) []any {
	var out []any
	for _, e := range exts {
		out = append(out, e.Models()...)
	}
	return out
}

// WalletScope returns the caller's wallet id, or every wallet id of the
// caller's user when all is set.
func WalletScope(c *gin.Context, wallets *service.WalletService, all bool) ([]string, error) {
	caller := handler.CurrentWallet(c)
	if !all {
		return []string{caller.ID}, nil
	}
	list, err := wallets.ListUserWallets(c, caller.UserID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
	}
	return ids, nil
}
