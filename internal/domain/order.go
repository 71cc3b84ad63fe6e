package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderProcessed = "processed"
	OrderShipped   = "shipped"
)

// Order is created exactly once per successful billing attempt and is
// immutable afterwards except for Status.
type Order struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"subscription_id"`
	ProductID      int64           `json:"product_id"`
	CenterID       int64           `json:"center_id"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}
