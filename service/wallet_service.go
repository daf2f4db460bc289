package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ln_wallet/model"
	"github.com/ln_wallet/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WalletService struct {
	db          *gorm.DB
	userRepo    *repository.UserRepository
	walletRepo  *repository.WalletRepository
	capRepo     *repository.CapabilityRepository
	logger      *zap.Logger
	defaultName string
}

func NewWalletService(db *gorm.DB, logger *zap.Logger) *WalletService {
	return &WalletService{
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		capRepo:     repository.NewCapabilityRepository(db),
		logger:      logger,
		defaultName: "default",
	}
}

type CreateAccountParams struct {
	UserName   string
	Email      string
	AdminID    string
	WalletName string
}

// UserView is a user together with its wallets and enabled extensions.
type UserView struct {
	User         *model.User        `json:"user"`
	Wallets      []*model.Wallet    `json:"wallets"`
	WalletIDs    []string           `json:"wallet_ids"`
	Capabilities []model.Capability `json:"capabilities"`
}

func newKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newWallet(userID, name string) *model.Wallet {
	return &model.Wallet{
		ID:         newKey(),
		UserID:     userID,
		Name:       name,
		AdminKey:   newKey(),
		InvoiceKey: newKey(),
	}
}

// CreateAccount creates a user and its first wallet atomically.
func (s *WalletService) CreateAccount(ctx context.Context, p CreateAccountParams) (*model.User, *model.Wallet, error) {
	name := strings.TrimSpace(p.UserName)
	walletName := strings.TrimSpace(p.WalletName)
	if walletName == "" {
		walletName = s.defaultName
	}
	user := &model.User{ID: newKey(), Name: name, Email: strings.TrimSpace(p.Email), AdminID: p.AdminID}
	wallet := newWallet(user.ID, walletName)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := s.walletRepo.WithTx(tx).Create(ctx, wallet); err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("wallet_id", wallet.ID))
	return user, wallet, nil
}

func (s *WalletService) CreateWallet(ctx context.Context, userID, name string) (*model.Wallet, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, InvalidInput("wallet name is required")
	}
	w := newWallet(userID, name)
	if err := s.walletRepo.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WalletService) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	w, err := s.walletRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// GetWalletByKey resolves an API key to its wallet and the tier it grants.
func (s *WalletService) GetWalletByKey(ctx context.Context, key string) (*model.Wallet, model.KeyType, error) {
	if key == "" {
		return nil, 0, ErrWalletNotFound
	}
	w, err := s.walletRepo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrWalletNotFound
		}
		return nil, 0, err
	}
	if w.AdminKey == key {
		return w, model.KeyAdmin, nil
	}
	return w, model.KeyInvoice, nil
}

func (s *WalletService) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetUserView returns the user with wallet ids and enabled capabilities.
func (s *WalletService) GetUserView(ctx context.Context, id string) (*UserView, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	wallets, err := s.walletRepo.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	caps, err := s.capRepo.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		ids = append(ids, w.ID)
	}
	return &UserView{User: u, Wallets: wallets, WalletIDs: ids, Capabilities: caps}, nil
}

func (s *WalletService) ListUsersByAdmin(ctx context.Context, adminID string) ([]*model.User, error) {
	return s.userRepo.ListByAdmin(ctx, adminID)
}

func (s *WalletService) ListUserWallets(ctx context.Context, userID string) ([]*model.Wallet, error) {
	return s.walletRepo.ListByUser(ctx, userID)
}

func (s *WalletService) ListWalletsOfUsers(ctx context.Context, userIDs []string) ([]*model.Wallet, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return s.walletRepo.ListByUsers(ctx, userIDs)
}

// DeleteWallet soft-deletes the wallet. Its payments stay on the books and
// a late settlement still credits it.
func (s *WalletService) DeleteWallet(ctx context.Context, id string) error {
	if _, err := s.GetWallet(ctx, id); err != nil {
		return err
	}
	return s.walletRepo.SoftDelete(ctx, id)
}

// DeleteUser removes the user, its capabilities and soft-deletes its wallets.
func (s *WalletService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := s.walletRepo.WithTx(tx)
		list, err := wallets.ListByUser(ctx, id)
		if err != nil {
			return err
		}
		for _, w := range list {
			if err := wallets.SoftDelete(ctx, w.ID); err != nil {
				return err
			}
		}
		caps := s.capRepo.WithTx(tx)
		enabled, err := caps.ListByUser(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range enabled {
			if err := caps.Disable(ctx, id, c); err != nil {
				return err
			}
		}
		return s.userRepo.WithTx(tx).Delete(ctx, id)
	})
}

// SetCapability switches an extension on or off for a user.
func (s *WalletService) SetCapability(ctx context.Context, userID string, c model.Capability, active bool) error {
	if !c.Valid() {
		return ErrInvalidCapability
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if active {
		return s.capRepo.Enable(ctx, userID, c)
	}
	return s.capRepo.Disable(ctx, userID, c)
}

// HasCapability reports whether the user enabled the extension.
func (s *WalletService) HasCapability(ctx context.Context, userID string, c model.Capability) (bool, error) {
	caps, err := s.capRepo.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, have := range caps {
		if have == c {
			return true, nil
		}
	}
	return false, nil
}
