package models

import (
	"github.com/shopspring/decimal"
)

// TicketFilter narrows the available tickets. Zero fields do not filter.
type TicketFilter struct {
	Type     TicketType
	Query    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

func (f TicketFilter) IsZero() bool {
	return f.Type == "" && f.Query == "" && f.MinPrice == nil && f.MaxPrice == nil
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

const (
	SortFieldDate  = "date"
	SortFieldPrice = "price"
)

// LogQuery drives the admin transaction and ownership logs.
type LogQuery struct {
	Search    string
	SortField string // SortFieldDate or SortFieldPrice; empty sorts newest first
	Direction SortDirection
}

type Stats struct {
	TotalTickets     int             `json:"totalTickets"`
	AvailableTickets int             `json:"availableTickets"`
	Transactions     int             `json:"transactions"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	OwnershipRecords int             `json:"ownershipRecords"`
}
