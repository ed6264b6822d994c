package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luikyv/franchise-checkout/internal/lock"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

type fakeStorage struct {
	mu            sync.Mutex
	links         map[string]CheckoutLink
	subscriptions map[uuid.UUID]Subscription
	plans         map[uuid.UUID]Plan
	transactions  []Transaction
}

func (s *fakeStorage) CheckoutLink(_ context.Context, token string, now time.Time) (*CheckoutLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[token]
	if !ok || !link.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (s *fakeStorage) Subscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *fakeStorage) Plan(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &plan, nil
}

func (s *fakeStorage) AttachGatewaySubscription(_ context.Context, id uuid.UUID, gatewayID int64) error {
	return s.update(id, gatewayID, SubscriptionStatusActive)
}

func (s *fakeStorage) MarkPendingPayment(_ context.Context, id uuid.UUID, gatewayID int64) error {
	return s.update(id, gatewayID, SubscriptionStatusPendingPayment)
}

func (s *fakeStorage) update(id uuid.UUID, gatewayID int64, status SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return ErrNotFound
	}
	sub.VindiSubscriptionID = &gatewayID
	sub.Status = status
	s.subscriptions[id] = sub
	return nil
}

func (s *fakeStorage) CreateTransaction(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = uuid.New()
	s.transactions = append(s.transactions, *tx)
	return nil
}

// fakeGateway keeps the gateway state in memory. Pending bills created through it are
// returned by later searches, like the real gateway does.
type fakeGateway struct {
	mu sync.Mutex

	customer          vindi.Customer
	customerErr       error
	updateCustomerErr error
	customerUpdates   []vindi.CustomerUpdate

	nextID        int64
	subscriptions []vindi.SubscriptionRequest
	profiles      []vindi.PaymentProfileRequest
	profileErr    error

	bills        map[int64]vindi.Bill
	billRequests []vindi.BillRequest
	billUpdates  []vindi.BillUpdate
	billFetches  int
	// pixAfter makes the PIX fields show up on the n-th bill fetch. Zero means never.
	pixAfter  int
	pixFields vindi.ResponseFields
	// chargeFields are returned by the charge transaction listing.
	chargeFields vindi.ResponseFields

	processed  []int64
	processErr error
	methods    []vindi.PaymentMethod

	calls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID: 100,
		bills:  map[int64]vindi.Bill{},
		methods: []vindi.PaymentMethod{
			{Code: "pix", Name: "PIX", Status: "active", Gateway: "pagarme"},
		},
	}
}

func (g *fakeGateway) record(call string) {
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) id() int64 {
	g.nextID++
	return g.nextID
}

func (g *fakeGateway) Customer(_ context.Context, id int64) (vindi.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("customer")
	if g.customerErr != nil {
		return vindi.Customer{}, g.customerErr
	}
	c := g.customer
	c.ID = id
	return c, nil
}

func (g *fakeGateway) UpdateCustomer(_ context.Context, id int64, update vindi.CustomerUpdate) (vindi.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update_customer")
	if g.updateCustomerErr != nil {
		return vindi.Customer{}, g.updateCustomerErr
	}
	g.customerUpdates = append(g.customerUpdates, update)
	return vindi.Customer{ID: id, Address: *update.Address}, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, req vindi.SubscriptionRequest) (vindi.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_subscription")
	g.subscriptions = append(g.subscriptions, req)
	return vindi.Subscription{ID: g.id(), Status: "active"}, nil
}

func (g *fakeGateway) CreatePaymentProfile(_ context.Context, req vindi.PaymentProfileRequest) (vindi.PaymentProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_payment_profile")
	if g.profileErr != nil {
		return vindi.PaymentProfile{}, g.profileErr
	}
	g.profiles = append(g.profiles, req)
	return vindi.PaymentProfile{ID: g.id(), Status: "active"}, nil
}

func (g *fakeGateway) PendingBills(_ context.Context, subscriptionID int64) ([]vindi.Bill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("pending_bills")
	var bills []vindi.Bill
	for _, b := range g.bills {
		if b.Status == vindi.BillStatusPending && b.Subscription != nil && b.Subscription.ID == subscriptionID {
			bills = append(bills, b)
		}
	}
	return bills, nil
}

func (g *fakeGateway) Bill(_ context.Context, id int64) (vindi.Bill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("bill")
	g.billFetches++
	b, ok := g.bills[id]
	if !ok {
		return vindi.Bill{}, &vindi.Error{Op: "get bill", Status: 404, Message: "not found"}
	}
	if g.pixAfter > 0 && g.billFetches >= g.pixAfter {
		b = withTransactionFields(b, g.pixFields)
		g.bills[id] = b
	}
	return b, nil
}

func (g *fakeGateway) CreateBill(_ context.Context, req vindi.BillRequest) (vindi.Bill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("create_bill")
	g.billRequests = append(g.billRequests, req)

	billID := g.id()
	bill := vindi.Bill{
		ID:           billID,
		Amount:       "99.90",
		Installments: req.Installments,
		Status:       vindi.BillStatusPending,
		Charges: []vindi.Charge{{
			ID:              g.id(),
			Status:          vindi.ChargeStatusPending,
			LastTransaction: &vindi.Transaction{ID: g.id(), GatewayResponseFields: vindi.ResponseFields{}},
		}},
		Subscription: &struct {
			ID int64 `json:"id"`
		}{ID: req.SubscriptionID},
	}
	g.bills[billID] = bill
	return bill, nil
}

func (g *fakeGateway) UpdateBill(_ context.Context, id int64, update vindi.BillUpdate) (vindi.Bill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("update_bill")
	g.billUpdates = append(g.billUpdates, update)
	return g.bills[id], nil
}

func (g *fakeGateway) Charge(_ context.Context, id int64) (vindi.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("charge")
	for _, b := range g.bills {
		for _, c := range b.Charges {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return vindi.Charge{}, &vindi.Error{Op: "get charge", Status: 404, Message: "not found"}
}

func (g *fakeGateway) ChargeTransactions(_ context.Context, id int64) ([]vindi.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("charge_transactions")
	if g.chargeFields == nil {
		return nil, nil
	}
	return []vindi.Transaction{{ID: id + 1000, GatewayResponseFields: g.chargeFields}}, nil
}

func (g *fakeGateway) ProcessCharge(_ context.Context, id int64) (vindi.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("process_charge")
	if g.processErr != nil {
		return vindi.Charge{}, g.processErr
	}
	g.processed = append(g.processed, id)
	for billID, b := range g.bills {
		if c, ok := b.FirstCharge(); ok && c.ID == id {
			b.Status = vindi.BillStatusPaid
			b.Charges = []vindi.Charge{{ID: c.ID, Status: vindi.ChargeStatusPaid, LastTransaction: c.LastTransaction}}
			g.bills[billID] = b
			return b.Charges[0], nil
		}
	}
	return vindi.Charge{ID: id, Status: vindi.ChargeStatusPaid}, nil
}

func (g *fakeGateway) PaymentMethods(context.Context) ([]vindi.PaymentMethod, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("payment_methods")
	return g.methods, nil
}

func (g *fakeGateway) Environment() vindi.Environment {
	return vindi.EnvironmentSandbox
}

func (g *fakeGateway) AssetURL(path string) string {
	return "https://sandbox-app.vindi.com.br/" + path
}

func (g *fakeGateway) Fetch(context.Context, string) ([]byte, error) {
	return nil, &vindi.Error{Op: "fetch", Status: 404, Message: "not found"}
}

func (g *fakeGateway) called(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func withTransactionFields(b vindi.Bill, fields vindi.ResponseFields) vindi.Bill {
	if len(b.Charges) == 0 {
		return b
	}
	charges := make([]vindi.Charge, len(b.Charges))
	copy(charges, b.Charges)
	tx := vindi.Transaction{GatewayResponseFields: fields}
	if charges[0].LastTransaction != nil {
		tx.ID = charges[0].LastTransaction.ID
	}
	charges[0].LastTransaction = &tx
	b.Charges = charges
	return b
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	keys   []string
	denied bool
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied || l.held[key] {
		return nil, lock.ErrLocked
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}
