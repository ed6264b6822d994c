package api

type ContextKey string

const (
	CtxKeyRequestID      ContextKey = "request_id"
	CtxKeySubscriptionID ContextKey = "subscription_id"
	CtxKeyBillID         ContextKey = "bill_id"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)
