package checkout

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = vindi.PaymentMethodCreditCard
	PaymentMethodPIX        PaymentMethod = vindi.PaymentMethodPIX
)

// CheckoutLink can be used any number of times until it expires.
type CheckoutLink struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Token          string    `gorm:"uniqueIndex"`
	SubscriptionID uuid.UUID
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

func (CheckoutLink) TableName() string {
	return "subscription_checkout_links"
}

type SubscriptionStatus string

const (
	SubscriptionStatusPending        SubscriptionStatus = "pending"
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusActive         SubscriptionStatus = "active"
)

type Subscription struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID              uuid.UUID `gorm:"column:plano_id"`
	CustomerName        string
	CustomerEmail       string
	CustomerDocument    string
	Installments        int
	Status              SubscriptionStatus
	VindiSubscriptionID *int64
	Metadata            Metadata `gorm:"serializer:json"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Metadata holds the gateway identifiers established when the checkout link was created.
type Metadata struct {
	VindiCustomerID GatewayID `json:"vindi_customer_id,omitempty"`
	VindiPlanID     GatewayID `json:"vindi_plan_id,omitempty"`
	VindiProductID  GatewayID `json:"vindi_product_id,omitempty"`
	PlanPrice       Amount    `json:"plan_price,omitempty"`
}

type Plan struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string    `gorm:"column:nome"`
	Price          float64   `gorm:"column:preco"`
	VindiPlanID    *int64
	VindiProductID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Plan) TableName() string {
	return "planos"
}

// Transaction is the audit record of a payment attempt. It is never updated.
type Transaction struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID      uuid.UUID
	PlanID              uuid.UUID `gorm:"column:plano_id"`
	CheckoutLinkID      uuid.UUID
	UserID              *string
	Amount              float64
	PaymentMethod       PaymentMethod
	Installments        int
	Status              string
	VindiBillID         int64
	VindiChargeID       *int64
	VindiSubscriptionID int64
	GatewayResponse     vindi.Bill `gorm:"type:jsonb;serializer:json"`
	CreatedAt           time.Time
}

func (Transaction) TableName() string {
	return "transactions"
}

// GatewayID is a gateway identifier that may have been stored either as a JSON number
// or as a string.
type GatewayID int64

func (id *GatewayID) UnmarshalJSON(data []byte) error {
	v, err := parseLooseNumber(data)
	if err != nil {
		return err
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*id = GatewayID(parsed)
	return nil
}

// Amount is a price that may have been stored either as a JSON number or as a string.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	v, err := parseLooseNumber(data)
	if err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil {
		return err
	}
	*a = Amount(parsed)
	return nil
}

func parseLooseNumber(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "0", nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "0", nil
		}
		return s, nil
	}
	return string(data), nil
}
