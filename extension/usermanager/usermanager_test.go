package usermanager

import (
	"context"
	"net/http"
	"testing"

	"github.com/ln_wallet/extension"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/router/routertest"
	"gorm.io/gorm"
)

func newEnv(t *testing.T) *routertest.Env {
	return routertest.New(t, func(_ *gorm.DB, deps extension.Deps) extension.Extension {
		return New(deps)
	})
}

type createdUser struct {
	ID      string `json:"id"`
	AdminID string `json:"admin_id"`
	Wallets []struct {
		ID       string `json:"id"`
		AdminKey string `json:"adminkey"`
		InKey    string `json:"inkey"`
	} `json:"wallets"`
}

func createUser(t *testing.T, env *routertest.Env, key string) createdUser {
	t.Helper()
	var u createdUser
	routertest.Decode(t, env.Do(http.MethodPost, "/usermanager/api/v1/users", key,
		map[string]any{"user_name": "sub", "wallet_name": "main"}), http.StatusCreated, &u)
	return u
}

func TestManagedUserLifecycle(t *testing.T) {
	env := newEnv(t)
	admin := env.Account(t, model.CapabilityUserManager)

	u := createUser(t, env, admin.InvoiceKey)
	if u.AdminID != admin.UserID || len(u.Wallets) != 1 || u.Wallets[0].InKey == "" {
		t.Fatalf("created = %+v", u)
	}

	var users []model.User
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/users", admin.InvoiceKey, nil), http.StatusOK, &users)
	if len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("users = %+v", users)
	}

	var got struct {
		ID      string         `json:"id"`
		Wallets []model.Wallet `json:"wallets"`
	}
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/users/"+u.ID, admin.InvoiceKey, nil), http.StatusOK, &got)
	if got.ID != u.ID || len(got.Wallets) != 1 {
		t.Fatalf("user = %+v", got)
	}

	var w struct {
		ID string `json:"id"`
	}
	routertest.Decode(t, env.Do(http.MethodPost, "/usermanager/api/v1/wallets", admin.InvoiceKey,
		map[string]any{"user_id": u.ID, "wallet_name": "savings"}), http.StatusCreated, &w)

	var wallets []model.Wallet
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/wallets", admin.InvoiceKey, nil), http.StatusOK, &wallets)
	if len(wallets) != 2 {
		t.Fatalf("wallets = %d", len(wallets))
	}
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/users/"+u.ID+"/wallets", admin.InvoiceKey, nil), http.StatusOK, &wallets)
	if len(wallets) != 2 {
		t.Fatalf("user wallets = %d", len(wallets))
	}

	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/wallets/"+w.ID, admin.InvoiceKey, nil), http.StatusNoContent)
	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/wallets/"+w.ID, admin.InvoiceKey, nil), http.StatusNotFound)

	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/users/"+u.ID, admin.InvoiceKey, nil), http.StatusNoContent)
	routertest.ExpectStatus(t, env.Do(http.MethodGet, "/usermanager/api/v1/users/"+u.ID, admin.InvoiceKey, nil), http.StatusNotFound)
}

func TestManagedWalletTransactions(t *testing.T) {
	env := newEnv(t)
	admin := env.Account(t, model.CapabilityUserManager)
	u := createUser(t, env, admin.InvoiceKey)
	walletID := u.Wallets[0].ID

	var inv struct {
		PaymentHash string `json:"payment_hash"`
	}
	routertest.Decode(t, env.Do(http.MethodPost, "/api/v1/payments", u.Wallets[0].InKey, map[string]any{"amount": 42}), http.StatusCreated, &inv)
	if err := env.Backend.Pay(inv.PaymentHash); err != nil {
		t.Fatalf("pay: %v", err)
	}
	st, err := env.Payments.GetPaymentStatus(context.Background(), inv.PaymentHash)
	if err != nil || !st.Paid {
		t.Fatalf("status = %+v, %v", st, err)
	}

	var tx struct {
		Total   int64           `json:"total"`
		Records []model.Payment `json:"records"`
	}
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/wallets/"+walletID, admin.InvoiceKey, nil), http.StatusOK, &tx)
	if tx.Total != 1 || tx.Records[0].Status != model.PaymentPaid {
		t.Fatalf("transactions = %+v", tx)
	}
	if got := env.Balance(t, walletID); got != 42 {
		t.Fatalf("balance = %d", got)
	}
}

func TestManagedOwnership(t *testing.T) {
	env := newEnv(t)
	admin := env.Account(t, model.CapabilityUserManager)
	stranger := env.Account(t, model.CapabilityUserManager)
	u := createUser(t, env, admin.InvoiceKey)

	routertest.ExpectStatus(t, env.Do(http.MethodGet, "/usermanager/api/v1/users/"+u.ID, stranger.InvoiceKey, nil), http.StatusForbidden)
	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/users/"+u.ID, stranger.InvoiceKey, nil), http.StatusForbidden)
	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/users/missing", stranger.InvoiceKey, nil), http.StatusNotFound)
	routertest.ExpectStatus(t, env.Do(http.MethodGet, "/usermanager/api/v1/wallets/"+u.Wallets[0].ID, stranger.InvoiceKey, nil), http.StatusForbidden)
	routertest.ExpectStatus(t, env.Do(http.MethodDelete, "/usermanager/api/v1/wallets/missing", stranger.InvoiceKey, nil), http.StatusNotFound)
	routertest.ExpectStatus(t, env.Do(http.MethodPost, "/usermanager/api/v1/wallets", stranger.InvoiceKey,
		map[string]any{"user_id": u.ID, "wallet_name": "x"}), http.StatusForbidden)

	var users []model.User
	routertest.Decode(t, env.Do(http.MethodGet, "/usermanager/api/v1/users", stranger.InvoiceKey, nil), http.StatusOK, &users)
	if len(users) != 0 {
		t.Fatalf("stranger sees users: %+v", users)
	}
}

func TestActivateExtension(t *testing.T) {
	env := newEnv(t)
	admin := env.Account(t, model.CapabilityUserManager)
	u := createUser(t, env, admin.InvoiceKey)

	path := "/usermanager/api/v1/extensions?extension=tpos&userid=" + u.ID + "&active=true"
	routertest.ExpectStatus(t, env.Do(http.MethodPost, path, admin.InvoiceKey, nil), http.StatusOK)
	ok, err := env.Wallets.HasCapability(context.Background(), u.ID, model.CapabilityTPoS)
	if err != nil || !ok {
		t.Fatalf("tpos enabled = %v, %v", ok, err)
	}

	path = "/usermanager/api/v1/extensions?extension=tpos&userid=" + u.ID + "&active=false"
	routertest.ExpectStatus(t, env.Do(http.MethodPost, path, admin.InvoiceKey, nil), http.StatusOK)
	ok, _ = env.Wallets.HasCapability(context.Background(), u.ID, model.CapabilityTPoS)
	if ok {
		t.Fatal("tpos still enabled")
	}

	routertest.ExpectStatus(t, env.Do(http.MethodPost,
		"/usermanager/api/v1/extensions?extension=bogus&userid="+u.ID+"&active=true", admin.InvoiceKey, nil), http.StatusBadRequest)
	routertest.ExpectStatus(t, env.Do(http.MethodPost,
		"/usermanager/api/v1/extensions?extension=tpos&userid=missing&active=true", admin.InvoiceKey, nil), http.StatusNotFound)
}

func TestRequiresCapability(t *testing.T) {
	env := newEnv(t)
	w := env.Account(t)
	routertest.ExpectStatus(t, env.Do(http.MethodGet, "/usermanager/api/v1/users", w.InvoiceKey, nil), http.StatusForbidden)
}
