package idempotency

import (
	"context"
	"errors"

	"github.com/luikyv/franchise-checkout/internal/timeutil"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) Service {
	return Service{db: db}
}

// Response returns the record stored for id while it can still be replayed.
func (s Service) Response(ctx context.Context, id string) (*Record, error) {
	rec := &Record{}
	if err := s.db.WithContext(ctx).
		Where("id = ? AND created_at > ?", id, timeutil.Now().Add(-ttl)).
		First(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s Service) Create(ctx context.Context, rec *Record) error {
	return s.db.WithContext(ctx).Create(rec).Error
}
