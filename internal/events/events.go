package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicTicketListed    = "marketplace.ticket_listed"
	TopicTicketPurchased = "marketplace.ticket_purchased"
)

type TicketListed struct {
	TicketID         string          `json:"ticketId"`
	Title            string          `json:"title"`
	SellerID         string          `json:"sellerId"`
	Price            decimal.Decimal `json:"price"`
	IsResale         bool            `json:"isResale"`
	OriginalTicketID string          `json:"originalTicketId,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

type TicketPurchased struct {
	TransactionID string          `json:"transactionId"`
	TicketID      string          `json:"ticketId"`
	Title         string          `json:"title"`
	SellerID      string          `json:"sellerId"`
	BuyerID       string          `json:"buyerId"`
	Price         decimal.Decimal `json:"price"`
	// ClosedTicketIDs lists every ticket the purchase made unavailable.
	ClosedTicketIDs []string  `json:"closedTicketIds"`
	Timestamp       time.Time `json:"timestamp"`
}
