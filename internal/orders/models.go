package orders

import (
	"time"

	"gorm.io/gorm"
)

// Spec describes a new order before it has an identity. The engine resolves
// the LIMIT/MARKET split from the wire payload before building one.
type Spec struct {
	AccountID string
	Ticker    string
	Side      string
	OrderType string
	Price     int64 // set iff LIMIT
	Quantity  int64
}

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
