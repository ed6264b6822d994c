package vindi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Customer(ctx context.Context, id int64) (Customer, error) {
	var resp struct {
		Customer Customer `json:"customer"`
	}
	if err := c.do(ctx, "get customer", http.MethodGet, "/customers/"+itoa(id), nil, &resp); err != nil {
		return Customer{}, err
	}
	return resp.Customer, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id int64, update CustomerUpdate) (Customer, error) {
	var resp struct {
		Customer Customer `json:"customer"`
	}
	if err := c.do(ctx, "update customer", http.MethodPut, "/customers/"+itoa(id), update, &resp); err != nil {
		return Customer{}, err
	}
	return resp.Customer, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error) {
	var resp struct {
		Subscription Subscription `json:"subscription"`
	}
	if err := c.do(ctx, "create subscription", http.MethodPost, "/subscriptions", req, &resp); err != nil {
		return Subscription{}, err
	}
	if resp.Subscription.ID == 0 {
		return Subscription{}, &Error{Op: "create subscription", Status: http.StatusOK, Message: "subscription id missing in response"}
	}
	return resp.Subscription, nil
}

func (c *Client) CreatePaymentProfile(ctx context.Context, req PaymentProfileRequest) (PaymentProfile, error) {
	var resp struct {
		PaymentProfile PaymentProfile `json:"payment_profile"`
	}
	if err := c.do(ctx, "create payment profile", http.MethodPost, "/payment_profiles", req, &resp); err != nil {
		return PaymentProfile{}, err
	}
	return resp.PaymentProfile, nil
}

// PendingBills lists the bills still pending for the subscription, newest first.
func (c *Client) PendingBills(ctx context.Context, subscriptionID int64) ([]Bill, error) {
	query := url.Values{}
	query.Set("query", fmt.Sprintf("subscription_id:%d status:%s", subscriptionID, BillStatusPending))
	query.Set("sort_by", "created_at")
	query.Set("sort_order", "desc")

	var resp struct {
		Bills []Bill `json:"bills"`
	}
	if err := c.do(ctx, "search bills", http.MethodGet, "/bills?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	// The search endpoint is lenient with the query syntax, so filter again.
	var bills []Bill
	for _, b := range resp.Bills {
		if b.Status != BillStatusPending {
			continue
		}
		if b.Subscription != nil && b.Subscription.ID != subscriptionID {
			continue
		}
		bills = append(bills, b)
	}
	return bills, nil
}

func (c *Client) Bill(ctx context.Context, id int64) (Bill, error) {
	var resp struct {
		Bill Bill `json:"bill"`
	}
	if err := c.do(ctx, "get bill", http.MethodGet, "/bills/"+itoa(id), nil, &resp); err != nil {
		return Bill{}, err
	}
	return resp.Bill, nil
}

func (c *Client) CreateBill(ctx context.Context, req BillRequest) (Bill, error) {
	var resp struct {
		Bill Bill `json:"bill"`
	}
	if err := c.do(ctx, "create bill", http.MethodPost, "/bills", req, &resp); err != nil {
		return Bill{}, err
	}
	if resp.Bill.ID == 0 {
		return Bill{}, &Error{Op: "create bill", Status: http.StatusOK, Message: "bill id missing in response"}
	}
	return resp.Bill, nil
}

func (c *Client) UpdateBill(ctx context.Context, id int64, update BillUpdate) (Bill, error) {
	var resp struct {
		Bill Bill `json:"bill"`
	}
	if err := c.do(ctx, "update bill", http.MethodPut, "/bills/"+itoa(id), update, &resp); err != nil {
		return Bill{}, err
	}
	return resp.Bill, nil
}

func (c *Client) Charge(ctx context.Context, id int64) (Charge, error) {
	var resp struct {
		Charge Charge `json:"charge"`
	}
	if err := c.do(ctx, "get charge", http.MethodGet, "/charges/"+itoa(id), nil, &resp); err != nil {
		return Charge{}, err
	}
	return resp.Charge, nil
}

func (c *Client) ChargeTransactions(ctx context.Context, id int64) ([]Transaction, error) {
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, "list charge transactions", http.MethodGet, "/charges/"+itoa(id)+"/transactions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// ProcessCharge asks the gateway to attempt the charge immediately.
func (c *Client) ProcessCharge(ctx context.Context, id int64) (Charge, error) {
	var resp struct {
		Charge Charge `json:"charge"`
	}
	if err := c.do(ctx, "process charge", http.MethodPost, "/charges/"+itoa(id)+"/charge", struct{}{}, &resp); err != nil {
		return Charge{}, err
	}
	return resp.Charge, nil
}

func (c *Client) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var resp struct {
		PaymentMethods []PaymentMethod `json:"payment_methods"`
	}
	if err := c.do(ctx, "list payment methods", http.MethodGet, "/payment_methods", nil, &resp); err != nil {
		return nil, err
	}
	return resp.PaymentMethods, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
