package idempotency

import (
	"time"

	"github.com/luikyv/franchise-checkout/internal/errorutil"
)

// ttl bounds how long a stored response can be replayed.
const ttl = 24 * time.Hour

var ErrNotFound = errorutil.New("idempotency record not found")

type Record struct {
	ID         string
	Request    string
	Response   string
	StatusCode int
	CreatedAt  time.Time
}

func (Record) TableName() string {
	return "idempotency_records"
}
