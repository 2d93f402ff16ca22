package models

import (
	"github.com/shopspring/decimal"
)

type TicketType string

const (
	TicketTypeEvent   TicketType = "event"
	TicketTypeConcert TicketType = "concert"
	TicketTypeMovie   TicketType = "movie"
	TicketTypeTrain   TicketType = "train"
	TicketTypeBus     TicketType = "bus"
)

func (t TicketType) String() string {
	return string(t)
}

func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeEvent, TicketTypeConcert, TicketTypeMovie, TicketTypeTrain, TicketTypeBus:
		return true
	}
	return false
}

type Ticket struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Date             string          `json:"date"` // local timestamp, e.g. 2025-07-15T18:00:00
	Location         string          `json:"location"`
	Type             TicketType      `json:"type"`
	Image            string          `json:"image"`
	SellerID         string          `json:"sellerId"`
	SellerName       string          `json:"sellerName"`
	Available        bool            `json:"available"`
	IsResale         bool            `json:"isResale,omitempty"`
	OriginalTicketID string          `json:"originalTicketId,omitempty"` // set only when IsResale
}

// TicketInput carries the listing fields a seller controls.
type TicketInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Date        string          `json:"date"`
	Location    string          `json:"location"`
	Type        TicketType      `json:"type"`
	Image       string          `json:"image"`
}

// SampleTicketImages are the listing images offered to sellers.
var SampleTicketImages = []string{
	"https://images.pexels.com/photos/2747449/pexels-photo-2747449.jpeg",
	"https://images.pexels.com/photos/953457/pexels-photo-953457.jpeg",
	"https://images.pexels.com/photos/1540406/pexels-photo-1540406.jpeg",
	"https://images.pexels.com/photos/7991579/pexels-photo-7991579.jpeg",
	"https://images.pexels.com/photos/7234262/pexels-photo-7234262.jpeg",
	"https://images.pexels.com/photos/2422588/pexels-photo-2422588.jpeg",
}
