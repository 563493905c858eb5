package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Accounts maintains the PromptPay receiving accounts. Invariant: at most one
// row is active at any time, enforced by deactivating every row before
// activating one, inside a single transaction.
type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts { return &Accounts{db: db} }

func (a *Accounts) List(ctx context.Context) ([]PromptPayAccount, error) {
	var out []PromptPayAccount
	err := a.db.WithContext(ctx).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (a *Accounts) Create(ctx context.Context, name, phone string) (PromptPayAccount, error) {
	now := time.Now()
	acc := PromptPayAccount{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		IsActive:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.db.WithContext(ctx).Create(&acc).Error; err != nil {
		return PromptPayAccount{}, err
	}
	return acc, nil
}

func (a *Accounts) Activate(ctx context.Context, id string) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc PromptPayAccount
		if err := tx.WithContext(ctx).First(&acc, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		now := time.Now()
		if err := tx.WithContext(ctx).Model(&PromptPayAccount{}).
			Where("is_active = ?", true).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&PromptPayAccount{}).
			Where("id = ?", id).
			Updates(map[string]any{"is_active": true, "updated_at": now}).Error
	})
}

func (a *Accounts) Deactivate(ctx context.Context, id string) error {
	res := a.db.WithContext(ctx).Model(&PromptPayAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (a *Accounts) Active(ctx context.Context) (PromptPayAccount, error) {
	return activeAccount(ctx, a.db)
}

// ActiveTx reads the active account inside the caller's transaction so accept
// cannot observe a half-finished activation.
func (a *Accounts) ActiveTx(ctx context.Context, tx *gorm.DB) (PromptPayAccount, error) {
	return activeAccount(ctx, tx)
}

func activeAccount(ctx context.Context, db *gorm.DB) (PromptPayAccount, error) {
	var acc PromptPayAccount
	err := db.WithContext(ctx).First(&acc, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PromptPayAccount{}, ErrNoActiveAccount
	}
	return acc, err
}
