package vindi

import "encoding/json"

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

const (
	sandboxBaseURL    = "https://sandbox-app.vindi.com.br/api/v1"
	productionBaseURL = "https://app.vindi.com.br/api/v1"
)

const (
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodPIX        = "pix"
)

type BillStatus string

const (
	BillStatusPending  BillStatus = "pending"
	BillStatusPaid     BillStatus = "paid"
	BillStatusCanceled BillStatus = "canceled"
	BillStatusReview   BillStatus = "review"
)

type ChargeStatus string

const (
	ChargeStatusPending    ChargeStatus = "pending"
	ChargeStatusPaid       ChargeStatus = "paid"
	ChargeStatusProcessing ChargeStatus = "processing"
	ChargeStatusRejected   ChargeStatus = "rejected"
)

type Address struct {
	Street            string `json:"street,omitempty"`
	Number            string `json:"number,omitempty"`
	AdditionalDetails string `json:"additional_details,omitempty"`
	Zipcode           string `json:"zipcode,omitempty"`
	Neighborhood      string `json:"neighborhood,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	Country           string `json:"country,omitempty"`
}

type Customer struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	RegistryCode string  `json:"registry_code"`
	Code         string  `json:"code,omitempty"`
	Status       string  `json:"status,omitempty"`
	Address      Address `json:"address"`
}

type CustomerUpdate struct {
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	RegistryCode string   `json:"registry_code,omitempty"`
	Address      *Address `json:"address,omitempty"`
}

type Subscription struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	Installments int    `json:"installments"`
	Plan         *struct {
		ID int64 `json:"id"`
	} `json:"plan,omitempty"`
	Customer *struct {
		ID int64 `json:"id"`
	} `json:"customer,omitempty"`
}

type SubscriptionRequest struct {
	PlanID            int64  `json:"plan_id"`
	CustomerID        int64  `json:"customer_id"`
	PaymentMethodCode string `json:"payment_method_code"`
	Installments      int    `json:"installments,omitempty"`
}

type PaymentProfile struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	HolderName         string `json:"holder_name"`
	CardNumberLastFour string `json:"card_number_last_four"`
}

type PaymentProfileRequest struct {
	HolderName        string `json:"holder_name"`
	CardExpiration    string `json:"card_expiration"`
	CardNumber        string `json:"card_number"`
	CardCVV           string `json:"card_cvv"`
	CustomerID        int64  `json:"customer_id"`
	PaymentMethodCode string `json:"payment_method_code"`
}

// ResponseFields holds the loosely typed gateway_response_fields. Key names vary by
// gateway connector, so no key is assumed to be present.
type ResponseFields map[string]any

// String returns the value of key when it is a non-empty string.
func (f ResponseFields) String(key string) string {
	v, ok := f[key].(string)
	if !ok {
		return ""
	}
	return v
}

type Transaction struct {
	ID                    int64          `json:"id"`
	TransactionType       string         `json:"transaction_type"`
	Status                string         `json:"status"`
	Amount                json.Number    `json:"amount"`
	GatewayMessage        string         `json:"gateway_message"`
	GatewayTransactionID  string         `json:"gateway_transaction_id"`
	GatewayResponseFields ResponseFields `json:"gateway_response_fields"`
}

type Charge struct {
	ID              int64        `json:"id"`
	Status          ChargeStatus `json:"status"`
	Amount          json.Number  `json:"amount"`
	DueAt           string       `json:"due_at"`
	PrintURL        string       `json:"print_url"`
	LastTransaction *Transaction `json:"last_transaction,omitempty"`
	PaymentMethod   *struct {
		Code string `json:"code"`
	} `json:"payment_method,omitempty"`
}

type Bill struct {
	ID           int64       `json:"id"`
	Code         string      `json:"code,omitempty"`
	Amount       json.Number `json:"amount"`
	Installments int         `json:"installments"`
	Status       BillStatus  `json:"status"`
	DueAt        string      `json:"due_at,omitempty"`
	URL          string      `json:"url,omitempty"`
	Charges      []Charge    `json:"charges"`
	Subscription *struct {
		ID int64 `json:"id"`
	} `json:"subscription,omitempty"`
}

// FirstCharge returns the first charge of the bill, if any.
func (b Bill) FirstCharge() (Charge, bool) {
	if len(b.Charges) == 0 {
		return Charge{}, false
	}
	return b.Charges[0], true
}

type BillItem struct {
	ProductID int64   `json:"product_id"`
	Amount    float64 `json:"amount"`
}

type ProfileRef struct {
	ID int64 `json:"id"`
}

type BillRequest struct {
	CustomerID        int64       `json:"customer_id"`
	PaymentMethodCode string      `json:"payment_method_code"`
	BillItems         []BillItem  `json:"bill_items"`
	PaymentProfile    *ProfileRef `json:"payment_profile,omitempty"`
	SubscriptionID    int64       `json:"subscription_id,omitempty"`
	Installments      int         `json:"installments,omitempty"`
	Charge            bool        `json:"charge"`
}

type BillUpdate struct {
	PaymentProfile *ProfileRef `json:"payment_profile,omitempty"`
	Charge         bool        `json:"charge"`
}

type PaymentMethod struct {
	ID         int64          `json:"id"`
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	PublicName string         `json:"public_name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Gateway    any            `json:"gateway,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Connector returns the downstream processor configured for the method. The field is
// reported either as a plain string, as an object with a code or inside the settings.
func (m PaymentMethod) Connector() string {
	switch g := m.Gateway.(type) {
	case string:
		return g
	case map[string]any:
		if code, ok := g["code"].(string); ok {
			return code
		}
		if name, ok := g["name"].(string); ok {
			return name
		}
	}
	if g, ok := m.Settings["gateway"].(string); ok {
		return g
	}
	return ""
}

func (m PaymentMethod) IsActive() bool {
	return m.Status == "active"
}
