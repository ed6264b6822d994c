package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Storage is the local relational store read and written by the payment flow.
type Storage interface {
	// CheckoutLink returns the link with the given token when it expires after now.
	CheckoutLink(ctx context.Context, token string, now time.Time) (*CheckoutLink, error)
	Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Plan(ctx context.Context, id uuid.UUID) (*Plan, error)
	// AttachGatewaySubscription stores the gateway subscription id and activates the
	// local subscription.
	AttachGatewaySubscription(ctx context.Context, id uuid.UUID, gatewayID int64) error
	MarkPendingPayment(ctx context.Context, id uuid.UUID, gatewayID int64) error
	CreateTransaction(ctx context.Context, tx *Transaction) error
}

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(db *gorm.DB) GormStorage {
	return GormStorage{db: db}
}

func (s GormStorage) CheckoutLink(ctx context.Context, token string, now time.Time) (*CheckoutLink, error) {
	link := &CheckoutLink{}
	if err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s GormStorage) Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub := &Subscription{}
	if err := s.db.WithContext(ctx).First(sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s GormStorage) Plan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	plan := &Plan{}
	if err := s.db.WithContext(ctx).First(plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (s GormStorage) AttachGatewaySubscription(ctx context.Context, id uuid.UUID, gatewayID int64) error {
	return s.updateSubscription(ctx, id, map[string]any{
		"vindi_subscription_id": gatewayID,
		"status":                SubscriptionStatusActive,
	})
}

func (s GormStorage) MarkPendingPayment(ctx context.Context, id uuid.UUID, gatewayID int64) error {
	return s.updateSubscription(ctx, id, map[string]any{
		"vindi_subscription_id": gatewayID,
		"status":                SubscriptionStatusPendingPayment,
	})
}

func (s GormStorage) updateSubscription(ctx context.Context, id uuid.UUID, values map[string]any) error {
	result := s.db.WithContext(ctx).Model(&Subscription{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s GormStorage) CreateTransaction(ctx context.Context, tx *Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}
