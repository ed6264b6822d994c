package checkout_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luikyv/franchise-checkout/internal/checkout"
	"github.com/luikyv/franchise-checkout/internal/jwtutil"
	"github.com/luikyv/franchise-checkout/internal/lock"
	"github.com/luikyv/franchise-checkout/internal/pix"
	"github.com/luikyv/franchise-checkout/internal/vindi"
	"github.com/luikyv/franchise-checkout/internal/vindi/vinditest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStorage is a minimal Storage used to run the service against the mock gateway.
type memoryStorage struct {
	link         checkout.CheckoutLink
	subscription checkout.Subscription
	plan         checkout.Plan
	transactions []checkout.Transaction
}

func (s *memoryStorage) CheckoutLink(_ context.Context, token string, now time.Time) (*checkout.CheckoutLink, error) {
	if token != s.link.Token || !s.link.ExpiresAt.After(now) {
		return nil, checkout.ErrNotFound
	}
	return &s.link, nil
}

func (s *memoryStorage) Subscription(context.Context, uuid.UUID) (*checkout.Subscription, error) {
	sub := s.subscription
	return &sub, nil
}

func (s *memoryStorage) Plan(context.Context, uuid.UUID) (*checkout.Plan, error) {
	plan := s.plan
	return &plan, nil
}

func (s *memoryStorage) AttachGatewaySubscription(_ context.Context, _ uuid.UUID, gatewayID int64) error {
	s.subscription.VindiSubscriptionID = &gatewayID
	s.subscription.Status = checkout.SubscriptionStatusActive
	return nil
}

func (s *memoryStorage) MarkPendingPayment(_ context.Context, _ uuid.UUID, gatewayID int64) error {
	s.subscription.VindiSubscriptionID = &gatewayID
	s.subscription.Status = checkout.SubscriptionStatusPendingPayment
	return nil
}

func (s *memoryStorage) CreateTransaction(_ context.Context, tx *checkout.Transaction) error {
	tx.ID = uuid.New()
	s.transactions = append(s.transactions, *tx)
	return nil
}

func TestService_PIXAgainstMockGateway(t *testing.T) {
	// Given.
	gw := vinditest.NewServer("mock-key")
	gw.AddCustomer(vindi.Customer{ID: 11, Name: "Maria Souza", Email: "maria@example.com"})
	server := httptest.NewServer(gw.Handler())
	t.Cleanup(server.Close)
	client := vindi.NewClient(vindi.Config{APIKey: "mock-key", BaseURL: server.URL + "/api/v1"})

	planID := uuid.New()
	storage := &memoryStorage{
		link: checkout.CheckoutLink{ID: uuid.New(), Token: "e2e-token", SubscriptionID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)},
		subscription: checkout.Subscription{
			ID:           uuid.New(),
			PlanID:       planID,
			Installments: 1,
			Status:       checkout.SubscriptionStatusPending,
			Metadata:     checkout.Metadata{VindiCustomerID: 11, VindiPlanID: 22, VindiProductID: 33},
		},
		plan: checkout.Plan{ID: planID, Name: "Franquia Mensal", Price: 149.5},
	}
	service := checkout.NewService(storage, client, lock.NopLocker{}, "pagarme").WithPolicy(pix.Policy{MaxAttempts: 3})

	// When.
	resp, err := service.Process(context.Background(), checkout.Request{Token: "e2e-token", PaymentMethod: checkout.PaymentMethodPIX}, jwtutil.Identity{})

	// Then.
	require.NoError(t, err)
	assert.Empty(t, resp.Warning)
	require.NotNil(t, resp.PIX)
	code, err := pix.ParseBRCode(resp.PIX.PixCopiaCola)
	require.NoError(t, err)
	assert.Equal(t, "149.50", code.Amount)

	customer, _ := gw.Customer(11)
	assert.Equal(t, "01302000", customer.Address.Zipcode)

	require.Len(t, storage.transactions, 1)
	assert.Equal(t, resp.BillID, storage.transactions[0].VindiBillID)
	assert.Equal(t, checkout.SubscriptionStatusPendingPayment, storage.subscription.Status)
}
