package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luikyv/franchise-checkout/cmd/cmdutil"
	"github.com/luikyv/franchise-checkout/internal/checkout"
	"github.com/luikyv/franchise-checkout/internal/timeutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Identifiers known by the local mock gateway.
const (
	seedVindiCustomerID = 1001
	seedVindiPlanID     = 2001
	seedVindiProductID  = 3001
)

// seedDatabase creates a plan, a subscription and two checkout links for local runs:
// one valid for a year and one already expired.
func seedDatabase(ctx context.Context, db *gorm.DB) error {
	plan := &checkout.Plan{
		ID:             uuid.MustParse("6f1c2a9e-4a55-4c1f-9d0c-2b8f3e7a1c01"),
		Name:           "Franquia Mensal",
		Price:          99.90,
		VindiPlanID:    cmdutil.PointerOf[int64](seedVindiPlanID),
		VindiProductID: cmdutil.PointerOf[int64](seedVindiProductID),
	}
	if err := upsert(ctx, db, plan); err != nil {
		return fmt.Errorf("failed to seed plan: %w", err)
	}

	sub := &checkout.Subscription{
		ID:               uuid.MustParse("0b6e8f7d-2c3a-4f51-8e9b-7a6d5c4b3a21"),
		PlanID:           plan.ID,
		CustomerName:     "Maria Souza",
		CustomerEmail:    "maria.souza@example.com",
		CustomerDocument: "76109277673",
		Installments:     3,
		Status:           checkout.SubscriptionStatusPending,
		Metadata: checkout.Metadata{
			VindiCustomerID: seedVindiCustomerID,
			VindiPlanID:     seedVindiPlanID,
			VindiProductID:  seedVindiProductID,
			PlanPrice:       checkout.Amount(plan.Price),
		},
	}
	if err := upsert(ctx, db, sub); err != nil {
		return fmt.Errorf("failed to seed subscription: %w", err)
	}

	now := timeutil.Now()
	links := []*checkout.CheckoutLink{
		{
			ID:             uuid.MustParse("9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c61"),
			Token:          "local-checkout-token",
			SubscriptionID: sub.ID,
			ExpiresAt:      now.AddDate(1, 0, 0),
		},
		{
			ID:             uuid.MustParse("9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c62"),
			Token:          "local-expired-token",
			SubscriptionID: sub.ID,
			ExpiresAt:      now.Add(-time.Hour),
		},
	}
	for _, link := range links {
		if err := upsert(ctx, db, link); err != nil {
			return fmt.Errorf("failed to seed checkout link %s: %w", link.Token, err)
		}
	}

	return nil
}

func upsert(ctx context.Context, db *gorm.DB, value any) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}
