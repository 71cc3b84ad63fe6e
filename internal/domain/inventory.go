package domain

import "time"

// InventoryLevel is the stock of one product at one fulfillment center.
// The (ProductID, CenterID) pair is unique and Quantity is never negative
// at any observable point; it is mutated only through the reservation
// engine's decrement and restock operations.
type InventoryLevel struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	CenterID  int64     `json:"center_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}
