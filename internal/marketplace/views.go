package marketplace

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// Listings splits the available catalog the way the home page shows it.
type Listings struct {
	New    []models.Ticket `json:"new"`
	Resale []models.Ticket `json:"resale"`
}

type TransactionEntry struct {
	models.Transaction
	TicketTitle string `json:"ticketTitle,omitempty"`
}

type OwnershipEntry struct {
	models.OwnershipRecord
	TicketTitle string `json:"ticketTitle,omitempty"`
	Current     bool   `json:"current"`
}

// Tickets returns the whole catalog in listing order.
func (st *Store) Tickets(ctx context.Context) ([]models.Ticket, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tickets, nil
}

// UserTickets returns the tickets actor currently owns and bought through a
// transaction. Listings the actor created without buying are excluded.
func (st *Store) UserTickets(ctx context.Context, actor *models.User) ([]models.Ticket, error) {
	if actor == nil {
		return []models.Ticket{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}
	return userTickets(snap, actor.ID), nil
}

func userTickets(snap *snapshot, userID string) []models.Ticket {
	owners := buildOwnerIndex(snap.Ownerships)

	bought := make(map[string]bool)
	for _, tx := range snap.Transactions {
		if tx.BuyerID == userID {
			bought[tx.TicketID] = true
		}
	}

	out := []models.Ticket{}
	for _, t := range snap.Tickets {
		if owners.owner(t.ID) == userID && bought[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

// UserResaleListings returns every resale listing actor created, sold or not.
func (st *Store) UserResaleListings(ctx context.Context, actor *models.User) ([]models.Ticket, error) {
	if actor == nil {
		return []models.Ticket{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	out := []models.Ticket{}
	for _, t := range snap.Tickets {
		if t.SellerID == actor.ID && t.IsResale {
			out = append(out, t)
		}
	}
	return out, nil
}

// ResaleCandidates returns the owned tickets actor may put up for resale.
func (st *Store) ResaleCandidates(ctx context.Context, actor *models.User) ([]models.Ticket, error) {
	if actor == nil {
		return []models.Ticket{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	out := []models.Ticket{}
	for _, t := range userTickets(snap, actor.ID) {
		if !t.IsResale {
			out = append(out, t)
		}
	}
	return out, nil
}

// OwnedTicket returns ticketID when actor is its current owner.
func (st *Store) OwnedTicket(ctx context.Context, actor *models.User, ticketID string) (models.Ticket, error) {
	if actor == nil {
		return models.Ticket{}, status.ErrNotAuthenticated
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return models.Ticket{}, err
	}

	idx := snap.ticketIndex(ticketID)
	if idx < 0 {
		return models.Ticket{}, status.ErrTicketNotFound
	}
	if currentOwner(snap.Ownerships, ticketID) != actor.ID {
		return models.Ticket{}, status.ErrNotOwner
	}
	return snap.Tickets[idx], nil
}

// UserTransactions returns the purchases made by actor.
func (st *Store) UserTransactions(ctx context.Context, actor *models.User) ([]models.Transaction, error) {
	if actor == nil {
		return []models.Transaction{}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	out := []models.Transaction{}
	for _, tx := range snap.Transactions {
		if tx.BuyerID == actor.ID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (st *Store) Browse(ctx context.Context) (Listings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return Listings{}, err
	}

	listings := Listings{New: []models.Ticket{}, Resale: []models.Ticket{}}
	for _, t := range snap.Tickets {
		if !t.Available {
			continue
		}
		if t.IsResale {
			listings.Resale = append(listings.Resale, t)
		} else {
			listings.New = append(listings.New, t)
		}
	}
	return listings, nil
}

// Search returns available tickets matching every set field of filter.
func (st *Store) Search(ctx context.Context, filter models.TicketFilter) ([]models.Ticket, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(filter.Query)
	out := []models.Ticket{}
	for _, t := range snap.Tickets {
		if matches(t, filter, query) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matches(t models.Ticket, filter models.TicketFilter, query string) bool {
	if filter.Type != "" && t.Type != filter.Type {
		return false
	}
	if query != "" &&
		!strings.Contains(strings.ToLower(t.Title), query) &&
		!strings.Contains(strings.ToLower(t.Description), query) &&
		!strings.Contains(strings.ToLower(t.Location), query) {
		return false
	}
	if filter.MinPrice != nil && t.Price.LessThan(*filter.MinPrice) {
		return false
	}
	if filter.MaxPrice != nil && t.Price.GreaterThan(*filter.MaxPrice) {
		return false
	}
	return t.Available
}

func (st *Store) Stats(ctx context.Context) (models.Stats, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	stats := models.Stats{
		TotalTickets:     len(snap.Tickets),
		Transactions:     len(snap.Transactions),
		TotalVolume:      decimal.Zero,
		OwnershipRecords: len(snap.Ownerships),
	}
	for _, t := range snap.Tickets {
		if t.Available {
			stats.AvailableTickets++
		}
	}
	for _, tx := range snap.Transactions {
		stats.TotalVolume = stats.TotalVolume.Add(tx.Price)
	}
	return stats, nil
}

// TransactionLog returns transactions matching q.Search against ticket,
// seller and buyer ids and the ticket title, sorted per q.
func (st *Store) TransactionLog(ctx context.Context, q models.LogQuery) ([]TransactionEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	titles := snap.ticketByID()
	search := strings.ToLower(q.Search)

	out := []TransactionEntry{}
	for _, tx := range snap.Transactions {
		title := titles[tx.TicketID].Title
		if search != "" && !containsAny(search, tx.TicketID, tx.SellerID, tx.BuyerID, title) {
			continue
		}
		out = append(out, TransactionEntry{Transaction: tx, TicketTitle: title})
	}

	asc := q.Direction == models.SortAsc
	switch q.SortField {
	case models.SortFieldPrice:
		sort.SliceStable(out, func(i, j int) bool {
			if asc {
				return out[i].Price.LessThan(out[j].Price)
			}
			return out[i].Price.GreaterThan(out[j].Price)
		})
	case models.SortFieldDate:
		byDate(out, asc, func(e TransactionEntry) time.Time { return e.Timestamp })
	default:
		byDate(out, false, func(e TransactionEntry) time.Time { return e.Timestamp })
	}
	return out, nil
}

// OwnershipLog returns ownership records matching q.Search against ticket and
// owner ids and the ticket title, flagging each ticket's current record.
// Without a sort field records come newest first; date sorts by q.Direction
// and any other field keeps ledger order.
func (st *Store) OwnershipLog(ctx context.Context, q models.LogQuery) ([]OwnershipEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return nil, err
	}

	titles := snap.ticketByID()
	search := strings.ToLower(q.Search)

	latest := latestRecords(snap.Ownerships)

	out := []OwnershipEntry{}
	for i, r := range snap.Ownerships {
		title := titles[r.TicketID].Title
		if search != "" && !containsAny(search, r.TicketID, r.OwnerID, title) {
			continue
		}
		out = append(out, OwnershipEntry{
			OwnershipRecord: r,
			TicketTitle:     title,
			Current:         latest[r.TicketID] == i,
		})
	}

	at := func(e OwnershipEntry) time.Time { return e.Timestamp }
	switch q.SortField {
	case "":
		byDate(out, false, at)
	case models.SortFieldDate:
		byDate(out, q.Direction == models.SortAsc, at)
	}
	return out, nil
}

// byDate sorts entries by timestamp. Entries sharing a timestamp keep ledger
// order ascending and reverse it descending, so the later append reads as the
// newer one the way currentOwner resolves ties.
func byDate[T any](entries []T, asc bool, at func(T) time.Time) {
	if !asc {
		slices.Reverse(entries)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if asc {
			return at(entries[i]).Before(at(entries[j]))
		}
		return at(entries[i]).After(at(entries[j]))
	})
}

func containsAny(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
