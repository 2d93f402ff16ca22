package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/internal/storage"
	"ticket-marketplace/models"
)

// DefaultTickets is the catalog written when none is stored yet.
func DefaultTickets() []models.Ticket {
	return []models.Ticket{
		{
			ID:          "1",
			Title:       "Summer Music Festival",
			Description: "Annual music festival featuring top artists from around the world.",
			Price:       decimal.NewFromInt(150),
			Date:        "2025-07-15T18:00:00",
			Location:    "Central Park, New York",
			Type:        models.TicketTypeConcert,
			Image:       models.SampleTicketImages[0],
			SellerID:    "2",
			SellerName:  "Regular User",
			Available:   true,
		},
	}
}

// snapshot is the full marketplace state as persisted under the three
// marketplace keys.
type snapshot struct {
	Tickets      []models.Ticket
	Transactions []models.Transaction
	Ownerships   []models.OwnershipRecord
}

func (s *snapshot) ticketIndex(id string) int {
	for i, t := range s.Tickets {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *snapshot) ticketByID() map[string]models.Ticket {
	byID := make(map[string]models.Ticket, len(s.Tickets))
	for _, t := range s.Tickets {
		byID[t.ID] = t
	}
	return byID
}

// load reads all three collections. Missing collections are replaced by their
// defaults and the whole snapshot is written back.
func (st *Store) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}

	hasTickets, err := st.ns.LoadJSON(ctx, storage.KeyTickets, &snap.Tickets)
	if err != nil {
		return nil, err
	}
	hasTransactions, err := st.ns.LoadJSON(ctx, storage.KeyTransactions, &snap.Transactions)
	if err != nil {
		return nil, err
	}
	hasOwnerships, err := st.ns.LoadJSON(ctx, storage.KeyOwnerships, &snap.Ownerships)
	if err != nil {
		return nil, err
	}

	if hasTickets && hasTransactions && hasOwnerships {
		return snap, nil
	}

	// seed ownerships follow the default catalog even when tickets were stored
	defaults := DefaultTickets()
	if !hasTickets {
		snap.Tickets = defaults
	}
	if !hasTransactions {
		snap.Transactions = []models.Transaction{}
	}
	if !hasOwnerships {
		now := st.now()
		snap.Ownerships = make([]models.OwnershipRecord, 0, len(defaults))
		for _, t := range defaults {
			snap.Ownerships = append(snap.Ownerships, models.OwnershipRecord{
				TicketID:  t.ID,
				OwnerID:   t.SellerID,
				Timestamp: now,
			})
		}
	}

	if err := st.save(ctx, snap); err != nil {
		return nil, fmt.Errorf("seed marketplace: %w", err)
	}
	st.logger.Info("seeded marketplace",
		zap.Bool("tickets", !hasTickets),
		zap.Bool("transactions", !hasTransactions),
		zap.Bool("ownerships", !hasOwnerships))
	return snap, nil
}

// save writes the three collections in one atomic backend write.
func (st *Store) save(ctx context.Context, snap *snapshot) error {
	return st.ns.SaveJSONMany(ctx, map[string]any{
		storage.KeyTickets:      snap.Tickets,
		storage.KeyTransactions: snap.Transactions,
		storage.KeyOwnerships:   snap.Ownerships,
	})
}

// currentOwner scans the records for ticketID and returns the owner of the
// latest one. Equal timestamps resolve to the record appended last.
func currentOwner(records []models.OwnershipRecord, ticketID string) string {
	var (
		owner  string
		latest time.Time
		found  bool
	)
	for _, r := range records {
		if r.TicketID != ticketID {
			continue
		}
		if !found || !r.Timestamp.Before(latest) {
			owner, latest, found = r.OwnerID, r.Timestamp, true
		}
	}
	return owner
}

// ownerIndex maps each ticket to its latest ownership record. Built once per
// snapshot for views that resolve many owners.
type ownerIndex map[string]models.OwnershipRecord

func buildOwnerIndex(records []models.OwnershipRecord) ownerIndex {
	idx := make(ownerIndex, len(records))
	for _, r := range records {
		if prev, ok := idx[r.TicketID]; ok && r.Timestamp.Before(prev.Timestamp) {
			continue
		}
		idx[r.TicketID] = r
	}
	return idx
}

// latestRecords maps each ticket to the position of its current ownership
// record, with the same tie rule as currentOwner.
func latestRecords(records []models.OwnershipRecord) map[string]int {
	latest := make(map[string]int, len(records))
	for i, r := range records {
		if prev, ok := latest[r.TicketID]; ok && r.Timestamp.Before(records[prev].Timestamp) {
			continue
		}
		latest[r.TicketID] = i
	}
	return latest
}

func (idx ownerIndex) owner(ticketID string) string {
	return idx[ticketID].OwnerID
}
