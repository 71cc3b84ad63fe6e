package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Billing cycles supported by plans.
const (
	CycleMonthly   = "monthly"
	CycleQuarterly = "quarterly"
	CycleAnnually  = "annually"
)

// Plan is immutable reference data describing a subscription tier.
type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	BillingCycle string          `json:"billing_cycle"`
	Price        decimal.Decimal `json:"price"`
	ProductID    int64           `json:"product_id"`
	CreatedAt    time.Time       `json:"created_at"`
}
