// Package vinditest provides an in-memory fake of the payment gateway API.
//
// PIX data is attached to a bill only after it was fetched a few times, the way the
// real gateway fills it asynchronously.
package vinditest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/luikyv/franchise-checkout/internal/pix"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

// RejectedCardNumber is refused when registering a payment profile.
const RejectedCardNumber = "4000000000000002"

var billQueryRx = regexp.MustCompile(`subscription_id:(\d+)`)

type Server struct {
	// PIXAfterFetches is the number of bill fetches after which the PIX data shows up.
	PIXAfterFetches int
	PIXKey          string

	apiKey string

	mu            sync.Mutex
	nextID        int64
	customers     map[int64]vindi.Customer
	subscriptions map[int64]vindi.Subscription
	profiles      map[int64]vindi.PaymentProfile
	bills         map[int64]*billEntry
	methods       []vindi.PaymentMethod
}

type billEntry struct {
	bill          vindi.Bill
	paymentMethod string
	fetches       int
}

func NewServer(apiKey string) *Server {
	return &Server{
		PIXAfterFetches: 2,
		PIXKey:          "contato@franquia.com.br",
		apiKey:          apiKey,
		nextID:          1000,
		customers:       map[int64]vindi.Customer{},
		subscriptions:   map[int64]vindi.Subscription{},
		profiles:        map[int64]vindi.PaymentProfile{},
		bills:           map[int64]*billEntry{},
		methods: []vindi.PaymentMethod{
			{ID: 1, Code: vindi.PaymentMethodCreditCard, Name: "Cartão de crédito", Status: "active", Gateway: "pagarme"},
			{ID: 2, Code: vindi.PaymentMethodPIX, Name: "PIX", Status: "active", Gateway: map[string]any{"code": "pagarme"}},
		},
	}
}

func (s *Server) AddCustomer(c vindi.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Server) SetPaymentMethods(methods []vindi.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = methods
}

// Customer returns the stored customer.
func (s *Server) Customer(id int64) (vindi.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	return c, ok
}

// Counts returns how many subscriptions and bills were created.
func (s *Server) Counts() (subscriptions, bills int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions), len(s.bills)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/customers/{id}", s.getCustomer)
	mux.HandleFunc("PUT /api/v1/customers/{id}", s.updateCustomer)
	mux.HandleFunc("POST /api/v1/subscriptions", s.createSubscription)
	mux.HandleFunc("POST /api/v1/payment_profiles", s.createPaymentProfile)
	mux.HandleFunc("GET /api/v1/bills", s.searchBills)
	mux.HandleFunc("POST /api/v1/bills", s.createBill)
	mux.HandleFunc("GET /api/v1/bills/{id}", s.getBill)
	mux.HandleFunc("PUT /api/v1/bills/{id}", s.updateBill)
	mux.HandleFunc("GET /api/v1/charges/{id}", s.getCharge)
	mux.HandleFunc("GET /api/v1/charges/{id}/transactions", s.chargeTransactions)
	mux.HandleFunc("POST /api/v1/charges/{id}/charge", s.processCharge)
	mux.HandleFunc("GET /api/v1/payment_methods", s.paymentMethods)
	mux.HandleFunc("GET /pix/{id}/original", s.pixOriginal)
	return s.authenticated(mux)
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != s.apiKey {
			writeErrors(w, http.StatusUnauthorized, "", "chave da API inválida")
			return
		}
		slog.DebugContext(r.Context(), "mock gateway request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[pathID(r)]
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": c})
}

func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var update vindi.CustomerUpdate
	if !decode(w, r, &update) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[pathID(r)]
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	if update.Address != nil {
		if len(update.Address.Zipcode) != 8 {
			writeErrors(w, http.StatusUnprocessableEntity, "zipcode", "inválido")
			return
		}
		c.Address = *update.Address
	}
	if update.Name != "" {
		c.Name = update.Name
	}
	if update.Email != "" {
		c.Email = update.Email
	}
	s.customers[c.ID] = c
	writeJSON(w, http.StatusOK, map[string]any{"customer": c})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req vindi.SubscriptionRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[req.CustomerID]; !ok {
		writeErrors(w, http.StatusUnprocessableEntity, "customer_id", "não encontrado")
		return
	}
	sub := vindi.Subscription{ID: s.id(), Status: "active", Installments: req.Installments}
	s.subscriptions[sub.ID] = sub
	writeJSON(w, http.StatusCreated, map[string]any{"subscription": sub})
}

func (s *Server) createPaymentProfile(w http.ResponseWriter, r *http.Request) {
	var req vindi.PaymentProfileRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CardNumber == RejectedCardNumber {
		writeErrors(w, http.StatusUnprocessableEntity, "card_number", "não foi possível validar o cartão")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	profile := vindi.PaymentProfile{
		ID:                 s.id(),
		Status:             "active",
		HolderName:         req.HolderName,
		CardNumberLastFour: req.CardNumber[max(0, len(req.CardNumber)-4):],
	}
	s.profiles[profile.ID] = profile
	writeJSON(w, http.StatusCreated, map[string]any{"payment_profile": profile})
}

func (s *Server) searchBills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	var subscriptionID int64
	if m := billQueryRx.FindStringSubmatch(query); m != nil {
		subscriptionID, _ = strconv.ParseInt(m[1], 10, 64)
	}
	onlyPending := strings.Contains(query, "status:pending")

	s.mu.Lock()
	defer s.mu.Unlock()
	bills := []vindi.Bill{}
	for _, e := range s.bills {
		if subscriptionID != 0 && (e.bill.Subscription == nil || e.bill.Subscription.ID != subscriptionID) {
			continue
		}
		if onlyPending && e.bill.Status != vindi.BillStatusPending {
			continue
		}
		bills = append(bills, e.bill)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (s *Server) createBill(w http.ResponseWriter, r *http.Request) {
	var req vindi.BillRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.BillItems) == 0 || req.BillItems[0].Amount <= 0 {
		writeErrors(w, http.StatusUnprocessableEntity, "bill_items", "valor inválido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, item := range req.BillItems {
		total += item.Amount
	}
	amount := json.Number(strconv.FormatFloat(total, 'f', 2, 64))

	bill := vindi.Bill{
		ID:           s.id(),
		Amount:       amount,
		Installments: max(req.Installments, 1),
		Status:       vindi.BillStatusPending,
	}
	charge := vindi.Charge{
		ID:     s.id(),
		Status: vindi.ChargeStatusPending,
		Amount: amount,
		DueAt:  "2026-12-31T23:59:59.000-03:00",
		LastTransaction: &vindi.Transaction{
			ID:                    s.id(),
			TransactionType:       "charge",
			Status:                "waiting",
			Amount:                amount,
			GatewayResponseFields: vindi.ResponseFields{},
		},
	}
	bill.Charges = []vindi.Charge{charge}
	if req.SubscriptionID != 0 {
		bill.Subscription = &struct {
			ID int64 `json:"id"`
		}{ID: req.SubscriptionID}
	}

	s.bills[bill.ID] = &billEntry{bill: bill, paymentMethod: req.PaymentMethodCode}
	writeJSON(w, http.StatusCreated, map[string]any{"bill": bill})
}

func (s *Server) getBill(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bills[pathID(r)]
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}

	e.fetches++
	if e.paymentMethod != vindi.PaymentMethodCreditCard && e.fetches >= s.PIXAfterFetches {
		s.attachPIX(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": e.bill})
}

func (s *Server) updateBill(w http.ResponseWriter, r *http.Request) {
	var update vindi.BillUpdate
	if !decode(w, r, &update) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bills[pathID(r)]
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	if update.PaymentProfile != nil {
		if _, ok := s.profiles[update.PaymentProfile.ID]; !ok {
			writeErrors(w, http.StatusUnprocessableEntity, "payment_profile", "não encontrado")
			return
		}
		e.paymentMethod = vindi.PaymentMethodCreditCard
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": e.bill})
}

func (s *Server) getCharge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, charge, ok := s.charge(pathID(r))
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charge": charge})
}

func (s *Server) chargeTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, charge, ok := s.charge(pathID(r))
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	txs := []vindi.Transaction{}
	if charge.LastTransaction != nil {
		txs = append(txs, *charge.LastTransaction)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) processCharge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, charge, ok := s.charge(pathID(r))
	if !ok {
		writeErrors(w, http.StatusNotFound, "id", "não encontrado")
		return
	}
	if e.paymentMethod != vindi.PaymentMethodCreditCard {
		writeErrors(w, http.StatusUnprocessableEntity, "payment_method", "cobrança não pode ser processada")
		return
	}

	charge.Status = vindi.ChargeStatusPaid
	e.bill.Status = vindi.BillStatusPaid
	e.bill.Charges = []vindi.Charge{charge}
	writeJSON(w, http.StatusOK, map[string]any{"charge": charge})
}

func (s *Server) paymentMethods(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": s.methods})
}

func (s *Server) pixOriginal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.bills[pathID(r)]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, s.brCode(e.bill))
}

// attachPIX fills the gateway response fields of the first charge. Only the relative
// original path is set so that callers have to dereference it.
func (s *Server) attachPIX(e *billEntry) {
	if len(e.bill.Charges) == 0 {
		return
	}
	charge := e.bill.Charges[0]
	tx := vindi.Transaction{}
	if charge.LastTransaction != nil {
		tx = *charge.LastTransaction
	}
	if tx.GatewayResponseFields.String("qrcode_original_path") != "" {
		return
	}
	tx.GatewayResponseFields = vindi.ResponseFields{
		"qrcode_original_path": fmt.Sprintf("pix/%d/original", e.bill.ID),
		"qrcode_base64":        svgBase64,
		"expires_at":           charge.DueAt,
	}
	charge.LastTransaction = &tx
	charge.PrintURL = fmt.Sprintf("https://sandbox-app.vindi.com.br/customer/bills/%d", e.bill.ID)
	e.bill.Charges = []vindi.Charge{charge}
}

func (s *Server) brCode(bill vindi.Bill) string {
	return pix.BRCode{
		Key:           s.PIXKey,
		Amount:        bill.Amount.String(),
		TransactionID: "BILL" + strconv.FormatInt(bill.ID, 10),
	}.Encode("FRANQUIA CHECKOUT", "SAO PAULO")
}

func (s *Server) charge(id int64) (*billEntry, vindi.Charge, bool) {
	for _, e := range s.bills {
		for _, c := range e.bill.Charges {
			if c.ID == id {
				return e, c, true
			}
		}
	}
	return nil, vindi.Charge{}, false
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

// A tiny SVG QR placeholder, base64 encoded.
const svgBase64 = "PHN2ZyB4bWxucz0iaHR0cDovL3d3dy53My5vcmcvMjAwMC9zdmciIHdpZHRoPSIxMCIgaGVpZ2h0PSIxMCI+PHJlY3Qgd2lkdGg9IjEwIiBoZWlnaHQ9IjEwIi8+PC9zdmc+"

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrors(w, http.StatusBadRequest, "body", "malformado")
		return false
	}
	return true
}

func writeErrors(w http.ResponseWriter, status int, parameter, message string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]string{{"id": "invalid_parameter", "parameter": parameter, "message": message}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
