package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnershipRecord asserts that OwnerID holds TicketID as of Timestamp.
// Records are append-only; the latest one per ticket names the current owner.
type OwnershipRecord struct {
	TicketID  string    `json:"ticketId"`
	OwnerID   string    `json:"ownerId"`
	Timestamp time.Time `json:"timestamp"`
}

type Transaction struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticketId"`
	SellerID  string          `json:"sellerId"`
	BuyerID   string          `json:"buyerId"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
