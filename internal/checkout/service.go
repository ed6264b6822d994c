package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/luikyv/franchise-checkout/internal/address"
	"github.com/luikyv/franchise-checkout/internal/api"
	"github.com/luikyv/franchise-checkout/internal/errorutil"
	"github.com/luikyv/franchise-checkout/internal/jwtutil"
	"github.com/luikyv/franchise-checkout/internal/lock"
	"github.com/luikyv/franchise-checkout/internal/pix"
	"github.com/luikyv/franchise-checkout/internal/timeutil"
	"github.com/luikyv/franchise-checkout/internal/vindi"
)

// lockTTL covers the longest PIX poll plus the gateway round trips around it.
const lockTTL = 3 * time.Minute

// Gateway is the subset of the payment gateway API used by the payment flow.
type Gateway interface {
	Customer(ctx context.Context, id int64) (vindi.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, update vindi.CustomerUpdate) (vindi.Customer, error)
	CreateSubscription(ctx context.Context, req vindi.SubscriptionRequest) (vindi.Subscription, error)
	CreatePaymentProfile(ctx context.Context, req vindi.PaymentProfileRequest) (vindi.PaymentProfile, error)
	PendingBills(ctx context.Context, subscriptionID int64) ([]vindi.Bill, error)
	Bill(ctx context.Context, id int64) (vindi.Bill, error)
	CreateBill(ctx context.Context, req vindi.BillRequest) (vindi.Bill, error)
	UpdateBill(ctx context.Context, id int64, update vindi.BillUpdate) (vindi.Bill, error)
	Charge(ctx context.Context, id int64) (vindi.Charge, error)
	ChargeTransactions(ctx context.Context, id int64) ([]vindi.Transaction, error)
	ProcessCharge(ctx context.Context, id int64) (vindi.Charge, error)
	PaymentMethods(ctx context.Context) ([]vindi.PaymentMethod, error)
	Environment() vindi.Environment
	pix.Resolver
}

type Service struct {
	storage      Storage
	gateway      Gateway
	locker       lock.Locker
	pixConnector string
	policy       pix.Policy
	sleep        func(context.Context, time.Duration) error
	now          func() time.Time
}

func NewService(storage Storage, gateway Gateway, locker lock.Locker, pixConnector string) Service {
	if locker == nil {
		locker = lock.NopLocker{}
	}
	return Service{
		storage:      storage,
		gateway:      gateway,
		locker:       locker,
		pixConnector: pixConnector,
		policy:       pix.DefaultPolicy,
		sleep:        sleep,
		now:          timeutil.Now,
	}
}

// WithPolicy returns a copy of the service polling for PIX data with p.
func (s Service) WithPolicy(p pix.Policy) Service {
	s.policy = p
	return s
}

// state is the value threaded through the payment steps. Every step receives a copy
// and returns the next one.
type state struct {
	req          Request
	userID       string
	link         CheckoutLink
	subscription Subscription
	plan         Plan

	customerID int64
	planID     int64

	gatewaySubscriptionID int64
	paymentProfileID      int64
	paymentMethodCode     string

	bill         vindi.Bill
	pix          pix.Data
	pollAttempts int
}

type step func(context.Context, state) (state, error)

// Process runs the payment flow for the subscription behind the checkout link in req.
// Nothing is written locally unless every gateway step succeeded.
func (s Service) Process(ctx context.Context, req Request, identity jwtutil.Identity) (Response, error) {
	st, err := s.load(ctx, state{req: req, userID: identity.Subject})
	if err != nil {
		return Response{}, err
	}
	ctx = context.WithValue(ctx, api.CtxKeySubscriptionID, st.subscription.ID.String())

	unlock, err := s.locker.Lock(ctx, lockKey(st.subscription.ID), lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return Response{}, ErrPaymentInProgress
		}
		return Response{}, err
	}
	defer unlock()

	for _, next := range []step{
		s.ensureSubscription,
		s.ensureAddress,
		s.createPaymentProfile,
		s.resolveBill,
		s.chargePendingCard,
		s.pollPIX,
		s.persist,
	} {
		st, err = next(ctx, st)
		if err != nil {
			return Response{}, err
		}
	}

	return st.response(s.gateway.Environment()), nil
}

func lockKey(subscriptionID uuid.UUID) string {
	return "checkout:subscription:" + subscriptionID.String()
}

// load resolves the checkout link, the subscription and the plan, and makes sure the
// gateway references needed by the next steps exist. No gateway call is made here.
func (s Service) load(ctx context.Context, st state) (state, error) {
	link, err := s.storage.CheckoutLink(ctx, st.req.Token, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return st, ErrInvalidLink
		}
		return st, err
	}
	st.link = *link

	sub, err := s.storage.Subscription(ctx, link.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return st, ErrSubscriptionMissing
		}
		return st, err
	}
	st.subscription = *sub

	plan, err := s.storage.Plan(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return st, ErrPlanMissing
		}
		return st, err
	}
	st.plan = *plan

	st.customerID = int64(sub.Metadata.VindiCustomerID)
	st.planID = int64(sub.Metadata.VindiPlanID)
	if st.planID == 0 && plan.VindiPlanID != nil {
		st.planID = *plan.VindiPlanID
	}
	if st.customerID == 0 || st.planID == 0 {
		return st, ErrGatewayRefsMissing
	}

	slog.InfoContext(ctx, "checkout link resolved", "subscription_id", sub.ID, "payment_method", st.req.PaymentMethod)
	return st, nil
}

// ensureSubscription reuses the gateway subscription when one was already created,
// otherwise creates it and records its id locally.
func (s Service) ensureSubscription(ctx context.Context, st state) (state, error) {
	if id := st.subscription.VindiSubscriptionID; id != nil && *id != 0 {
		slog.InfoContext(ctx, "reusing gateway subscription", "vindi_subscription_id", *id)
		st.gatewaySubscriptionID = *id
		return st, nil
	}

	st, err := s.resolvePaymentMethodCode(ctx, st)
	if err != nil {
		return st, err
	}

	created, err := s.gateway.CreateSubscription(ctx, vindi.SubscriptionRequest{
		PlanID:            st.planID,
		CustomerID:        st.customerID,
		PaymentMethodCode: st.paymentMethodCode,
		Installments:      st.installments(),
	})
	if err != nil {
		return st, gatewayError(ErrSubscriptionCreate, err)
	}
	slog.InfoContext(ctx, "gateway subscription created", "vindi_subscription_id", created.ID)

	if err := s.storage.AttachGatewaySubscription(ctx, st.subscription.ID, created.ID); err != nil {
		return st, errorutil.Format("could not store the gateway subscription %d: %w", created.ID, err)
	}
	st.gatewaySubscriptionID = created.ID
	st.subscription.VindiSubscriptionID = &created.ID
	st.subscription.Status = SubscriptionStatusActive
	return st, nil
}

// ensureAddress makes sure the gateway customer holds a complete address before a PIX
// bill is created, since PIX connectors reject incomplete ones.
func (s Service) ensureAddress(ctx context.Context, st state) (state, error) {
	if st.req.PaymentMethod != PaymentMethodPIX {
		return st, nil
	}

	var caller address.Address
	if st.req.CustomerData != nil {
		caller = st.req.CustomerData.Address.toAddress()
	}

	var current address.Address
	customer, err := s.gateway.Customer(ctx, st.customerID)
	if err != nil {
		slog.WarnContext(ctx, "could not fetch the gateway customer, continuing without its address", "error", err)
	} else {
		current = fromVindiAddress(customer.Address)
	}

	addr, usedFallback := address.Resolve(caller, current)
	if usedFallback {
		slog.WarnContext(ctx, "no complete address available, sending the fallback address", "vindi_customer_id", st.customerID)
	}

	if _, err := s.gateway.UpdateCustomer(ctx, st.customerID, vindi.CustomerUpdate{
		Address: toVindiAddress(addr),
	}); err != nil {
		return st, gatewayError(ErrPIXAddress, err)
	}
	slog.InfoContext(ctx, "gateway customer address updated", "fallback", usedFallback)
	return st, nil
}

// createPaymentProfile registers the card sent by the payer. Without card data the
// gateway falls back to the customer's current profile.
func (s Service) createPaymentProfile(ctx context.Context, st state) (state, error) {
	if st.req.PaymentMethod != PaymentMethodCreditCard || st.req.CardData == nil {
		return st, nil
	}

	card := *st.req.CardData
	profile, err := s.gateway.CreatePaymentProfile(ctx, vindi.PaymentProfileRequest{
		HolderName:        card.HolderName,
		CardExpiration:    card.Expiration(),
		CardNumber:        card.Number,
		CardCVV:           card.CVV,
		CustomerID:        st.customerID,
		PaymentMethodCode: vindi.PaymentMethodCreditCard,
	})
	if err != nil {
		return st, gatewayError(ErrPaymentProfile, err)
	}
	slog.InfoContext(ctx, "payment profile created", "payment_profile_id", profile.ID)
	st.paymentProfileID = profile.ID
	return st, nil
}

// resolveBill reuses the newest pending bill of the gateway subscription, or creates
// a new one when there is none. A subscription never gets a second pending bill here.
func (s Service) resolveBill(ctx context.Context, st state) (state, error) {
	pending, err := s.gateway.PendingBills(ctx, st.gatewaySubscriptionID)
	if err != nil {
		return st, gatewayError(ErrBillSearch, err)
	}

	if len(pending) > 0 {
		return s.reuseBill(ctx, st, pending[0])
	}

	amount := st.amount()
	if amount <= 0 {
		return st, ErrInvalidAmount
	}
	productID := st.productID()
	if productID == 0 {
		return st, ErrProductMissing
	}

	st, err = s.resolvePaymentMethodCode(ctx, st)
	if err != nil {
		return st, err
	}

	req := vindi.BillRequest{
		CustomerID:        st.customerID,
		PaymentMethodCode: st.paymentMethodCode,
		BillItems:         []vindi.BillItem{{ProductID: productID, Amount: amount}},
		SubscriptionID:    st.gatewaySubscriptionID,
		Installments:      st.installments(),
		Charge:            true,
	}
	if st.paymentProfileID != 0 {
		req.PaymentProfile = &vindi.ProfileRef{ID: st.paymentProfileID}
	}

	bill, err := s.gateway.CreateBill(ctx, req)
	if err != nil {
		return st, gatewayError(ErrBillCreate, err)
	}
	slog.InfoContext(context.WithValue(ctx, api.CtxKeyBillID, bill.ID), "bill created", "status", bill.Status)
	st.bill = bill
	return st, nil
}

func (s Service) reuseBill(ctx context.Context, st state, bill vindi.Bill) (state, error) {
	ctx = context.WithValue(ctx, api.CtxKeyBillID, bill.ID)
	slog.InfoContext(ctx, "reusing pending bill")

	if st.req.PaymentMethod == PaymentMethodCreditCard && st.paymentProfileID != 0 {
		updated, err := s.gateway.UpdateBill(ctx, bill.ID, vindi.BillUpdate{
			PaymentProfile: &vindi.ProfileRef{ID: st.paymentProfileID},
			Charge:         true,
		})
		if err != nil {
			return st, gatewayError(ErrBillUpdate, err)
		}
		st.bill = updated
		return st, nil
	}

	// Search results may omit charge details.
	full, err := s.gateway.Bill(ctx, bill.ID)
	if err != nil {
		slog.WarnContext(ctx, "could not refetch the pending bill, using the search result", "error", err)
		st.bill = bill
		return st, nil
	}
	st.bill = full
	return st, nil
}

// chargePendingCard makes a single attempt to process a card charge that is still
// pending. Failures are logged and the bill is returned as is.
func (s Service) chargePendingCard(ctx context.Context, st state) (state, error) {
	if st.req.PaymentMethod != PaymentMethodCreditCard || st.bill.Status != vindi.BillStatusPending {
		return st, nil
	}
	charge, ok := st.bill.FirstCharge()
	if !ok {
		return st, nil
	}

	ctx = context.WithValue(ctx, api.CtxKeyBillID, st.bill.ID)
	if _, err := s.gateway.ProcessCharge(ctx, charge.ID); err != nil {
		slog.WarnContext(ctx, "could not process the pending charge", "charge_id", charge.ID, "error", err)
		return st, nil
	}

	bill, err := s.gateway.Bill(ctx, st.bill.ID)
	if err != nil {
		slog.WarnContext(ctx, "could not refetch the bill after processing the charge", "error", err)
		return st, nil
	}
	slog.InfoContext(ctx, "pending charge processed", "status", bill.Status)
	st.bill = bill
	return st, nil
}

// pollPIX extracts the PIX data of the bill, refetching the bill until the data
// shows up or the poll policy gives up. Running out of attempts is not an error.
func (s Service) pollPIX(ctx context.Context, st state) (state, error) {
	if st.req.PaymentMethod != PaymentMethodPIX {
		return st, nil
	}

	ctx = context.WithValue(ctx, api.CtxKeyBillID, st.bill.ID)
	st.pix = pix.Extract(ctx, st.bill, s.gateway)
	for {
		delay, ok := s.policy.Next(st.pollAttempts, st.pix.Found())
		if !ok {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			slog.WarnContext(ctx, "pix polling interrupted", "attempts", st.pollAttempts, "error", err)
			break
		}
		st.pollAttempts++
		st.bill = s.refreshBill(ctx, st.bill)
		st.pix = pix.Extract(ctx, st.bill, s.gateway)
		slog.DebugContext(ctx, "pix poll attempt", "attempt", st.pollAttempts, "found", st.pix.Found())
	}

	if st.pix.Found() {
		slog.InfoContext(ctx, "pix data found", "attempts", st.pollAttempts)
	} else {
		slog.WarnContext(ctx, "pix data not found after polling", "attempts", st.pollAttempts)
	}
	return st, nil
}

// refreshBill refetches the bill together with its charges and their transactions.
// Fields already known are kept and the new ones are added. Fetch failures leave the
// current values in place.
func (s Service) refreshBill(ctx context.Context, current vindi.Bill) vindi.Bill {
	fields := pix.Fields(current)
	base := current

	fresh, err := s.gateway.Bill(ctx, current.ID)
	if err != nil {
		slog.WarnContext(ctx, "could not refetch the bill", "error", err)
	} else {
		base = fresh
		fields = pix.MergeFields(fields, pix.Fields(fresh))
	}

	for _, c := range base.Charges {
		charge, err := s.gateway.Charge(ctx, c.ID)
		if err != nil {
			slog.WarnContext(ctx, "could not fetch the charge", "charge_id", c.ID, "error", err)
		} else if charge.LastTransaction != nil {
			fields = pix.MergeFields(fields, charge.LastTransaction.GatewayResponseFields)
		}

		txs, err := s.gateway.ChargeTransactions(ctx, c.ID)
		if err != nil {
			slog.WarnContext(ctx, "could not fetch the charge transactions", "charge_id", c.ID, "error", err)
			continue
		}
		for _, tx := range txs {
			fields = pix.MergeFields(fields, tx.GatewayResponseFields)
		}
	}

	return pix.WithFields(base, fields)
}

// persist records the attempt locally. It only runs after every gateway step succeeded.
func (s Service) persist(ctx context.Context, st state) (state, error) {
	ctx = context.WithValue(ctx, api.CtxKeyBillID, st.bill.ID)
	if err := s.storage.MarkPendingPayment(ctx, st.subscription.ID, st.gatewaySubscriptionID); err != nil {
		return st, errorutil.Format("could not update the subscription: %w", err)
	}
	st.subscription.Status = SubscriptionStatusPendingPayment

	amount := st.amount()
	if v, err := st.bill.Amount.Float64(); err == nil && v > 0 {
		amount = v
	}

	tx := &Transaction{
		SubscriptionID:      st.subscription.ID,
		PlanID:              st.plan.ID,
		CheckoutLinkID:      st.link.ID,
		Amount:              amount,
		PaymentMethod:       st.req.PaymentMethod,
		Installments:        st.installments(),
		Status:              string(st.bill.Status),
		VindiBillID:         st.bill.ID,
		VindiSubscriptionID: st.gatewaySubscriptionID,
		GatewayResponse:     st.bill,
	}
	if st.userID != "" {
		tx.UserID = &st.userID
	}
	if charge, ok := st.bill.FirstCharge(); ok {
		tx.VindiChargeID = &charge.ID
	}

	if err := s.storage.CreateTransaction(ctx, tx); err != nil {
		return st, errorutil.Format("could not store the transaction: %w", err)
	}
	slog.InfoContext(ctx, "transaction recorded", "transaction_id", tx.ID, "status", tx.Status)
	return st, nil
}

// resolvePaymentMethodCode picks the gateway payment method code once per request.
func (s Service) resolvePaymentMethodCode(ctx context.Context, st state) (state, error) {
	if st.paymentMethodCode != "" {
		return st, nil
	}
	if st.req.PaymentMethod != PaymentMethodPIX {
		st.paymentMethodCode = vindi.PaymentMethodCreditCard
		return st, nil
	}

	methods, err := s.gateway.PaymentMethods(ctx)
	if err != nil {
		return st, gatewayError(ErrPaymentMethods, err)
	}
	method, ok := pickPIXMethod(methods, s.pixConnector)
	if !ok {
		return st, ErrPIXNotConfigured
	}
	slog.InfoContext(ctx, "pix payment method selected", "code", method.Code, "connector", method.Connector())
	st.paymentMethodCode = method.Code
	return st, nil
}

// pickPIXMethod prefers an active method routed through the configured connector,
// then any active method, then any method mentioning pix at all.
func pickPIXMethod(methods []vindi.PaymentMethod, connector string) (vindi.PaymentMethod, bool) {
	var candidates []vindi.PaymentMethod
	for _, m := range methods {
		if strings.Contains(strings.ToLower(m.Code), "pix") || strings.Contains(strings.ToLower(m.Name), "pix") {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return vindi.PaymentMethod{}, false
	}

	if connector != "" {
		for _, m := range candidates {
			if m.IsActive() && strings.Contains(strings.ToLower(m.Connector()), strings.ToLower(connector)) {
				return m, true
			}
		}
	}
	for _, m := range candidates {
		if m.IsActive() {
			return m, true
		}
	}
	return candidates[0], true
}

func (st state) installments() int {
	if st.req.PaymentMethod == PaymentMethodPIX || st.subscription.Installments < 1 {
		return 1
	}
	return st.subscription.Installments
}

// amount is the plan price. The cached metadata price is only used when the plan
// has no price at all; a negative price is returned as is and rejected later.
func (st state) amount() float64 {
	if st.plan.Price != 0 {
		return st.plan.Price
	}
	return float64(st.subscription.Metadata.PlanPrice)
}

func (st state) productID() int64 {
	if id := int64(st.subscription.Metadata.VindiProductID); id != 0 {
		return id
	}
	if st.plan.VindiProductID != nil {
		return *st.plan.VindiProductID
	}
	return 0
}

// gatewayError wraps a step error with the vendor message when the gateway sent one.
func gatewayError(stepErr error, err error) error {
	var vErr *vindi.Error
	if errors.As(err, &vErr) && vErr.Message != "" {
		return errorutil.Format("%w: %s", stepErr, vErr.Message)
	}
	return errorutil.Format("%w: %w", stepErr, err)
}

func fromVindiAddress(a vindi.Address) address.Address {
	return address.Address{
		Street:       a.Street,
		Number:       a.Number,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		Zipcode:      a.Zipcode,
		Country:      a.Country,
	}
}

func toVindiAddress(a address.Address) *vindi.Address {
	return &vindi.Address{
		Street:       a.Street,
		Number:       a.Number,
		Zipcode:      a.Zipcode,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		Country:      a.Country,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
