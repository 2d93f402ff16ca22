package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

// BalanceAdjuster applies signed balance changes to registered users.
type BalanceAdjuster interface {
	UpdateUserBalance(ctx context.Context, userID string, delta decimal.Decimal) error
}

// Metrics receives purchase and listing outcomes.
type Metrics interface {
	TrackPurchase(err error, price decimal.Decimal)
	TrackListing(resale bool)
	ObserveOperation(operation string, started time.Time)
}

type Options struct {
	NewID   utils.IDGenerator
	Now     func() time.Time
	Events  events.Publisher
	Metrics Metrics
}

// Store owns tickets, transactions and ownership history. State is reloaded
// from storage on every call and written back as one snapshot.
type Store struct {
	mu       sync.Mutex
	ns       *storage.Namespace
	balances BalanceAdjuster
	newID    utils.IDGenerator
	now      func() time.Time
	events   events.Publisher
	metrics  Metrics
	logger   *zap.Logger
}

func NewStore(ns *storage.Namespace, balances BalanceAdjuster, opts Options, logger *zap.Logger) *Store {
	if opts.NewID == nil {
		opts.NewID = utils.NewUUID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		ns:       ns,
		balances: balances,
		newID:    opts.NewID,
		now:      opts.Now,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   logger.Named("marketplace"),
	}
}

func (st *Store) GetCurrentOwner(ctx context.Context, ticketID string) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return "", err
	}
	return currentOwner(snap.Ownerships, ticketID), nil
}

func (st *Store) GetTicketByID(ctx context.Context, id string) (models.Ticket, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return models.Ticket{}, false, err
	}

	idx := snap.ticketIndex(id)
	if idx < 0 {
		return models.Ticket{}, false, nil
	}
	return snap.Tickets[idx], true, nil
}

// AddTicket lists a new ticket sold by actor. A non-empty existingTicketID
// makes it a resale listing of that ticket; the original is left untouched.
func (st *Store) AddTicket(ctx context.Context, actor *models.User, fields models.TicketInput, existingTicketID string) (string, error) {
	if actor == nil {
		return "", status.ErrNotAuthenticated
	}
	defer st.observe("add_ticket", time.Now())

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return "", err
	}

	now := st.now()
	ticket := models.Ticket{
		ID:          st.newID(),
		Title:       fields.Title,
		Description: fields.Description,
		Price:       fields.Price,
		Date:        fields.Date,
		Location:    fields.Location,
		Type:        fields.Type,
		Image:       fields.Image,
		SellerID:    actor.ID,
		SellerName:  actor.Name,
		Available:   true,
	}
	if existingTicketID != "" {
		ticket.IsResale = true
		ticket.OriginalTicketID = existingTicketID
	}

	snap.Tickets = append(snap.Tickets, ticket)
	snap.Ownerships = append(snap.Ownerships, models.OwnershipRecord{
		TicketID:  ticket.ID,
		OwnerID:   actor.ID,
		Timestamp: now,
	})

	if err := st.save(ctx, snap); err != nil {
		return "", fmt.Errorf("add ticket: %w", err)
	}

	st.logger.Info("ticket listed",
		zap.String("ticket_id", ticket.ID),
		zap.String("seller_id", actor.ID),
		zap.Bool("resale", ticket.IsResale),
		zap.String("original_ticket_id", ticket.OriginalTicketID))

	if st.metrics != nil {
		st.metrics.TrackListing(ticket.IsResale)
	}
	st.publish(ctx, events.TopicTicketListed, events.TicketListed{
		TicketID:         ticket.ID,
		Title:            ticket.Title,
		SellerID:         ticket.SellerID,
		Price:            ticket.Price,
		IsResale:         ticket.IsResale,
		OriginalTicketID: ticket.OriginalTicketID,
		Timestamp:        now,
	})

	return ticket.ID, nil
}

// PurchaseTicket transfers ticketID to actor. The ticket, transaction and
// ownership changes are committed together; the two balance adjustments that
// follow are separate writes. Both are always attempted, and a failure of
// either is reported as status.ErrSettlement without undoing the commit.
func (st *Store) PurchaseTicket(ctx context.Context, actor *models.User, ticketID string) (err error) {
	var price decimal.Decimal
	defer func(started time.Time) {
		if st.metrics != nil {
			st.metrics.TrackPurchase(err, price)
		}
		st.observe("purchase_ticket", started)
	}(time.Now())

	if actor == nil {
		return status.ErrNotAuthenticated
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap, err := st.load(ctx)
	if err != nil {
		return err
	}

	idx := snap.ticketIndex(ticketID)
	if idx < 0 {
		return status.ErrTicketNotFound
	}
	ticket := snap.Tickets[idx]
	if !ticket.Available {
		return status.ErrTicketUnavailable
	}
	if actor.Balance.LessThan(ticket.Price) {
		return status.ErrInsufficientBalance
	}
	sellerID := currentOwner(snap.Ownerships, ticketID)
	if sellerID == "" {
		return status.ErrOwnerUnknown
	}

	now := st.now()
	closed := []string{ticket.ID}
	snap.Tickets[idx].Available = false
	if ticket.IsResale && ticket.OriginalTicketID != "" {
		if orig := snap.ticketIndex(ticket.OriginalTicketID); orig >= 0 {
			snap.Tickets[orig].Available = false
			closed = append(closed, ticket.OriginalTicketID)
		}
	}

	tx := models.Transaction{
		ID:        st.newID(),
		TicketID:  ticketID,
		SellerID:  sellerID,
		BuyerID:   actor.ID,
		Price:     ticket.Price,
		Timestamp: now,
	}
	snap.Transactions = append(snap.Transactions, tx)
	snap.Ownerships = append(snap.Ownerships, models.OwnershipRecord{
		TicketID:  ticketID,
		OwnerID:   actor.ID,
		Timestamp: now,
	})

	if err := st.save(ctx, snap); err != nil {
		return fmt.Errorf("purchase ticket: %w", err)
	}
	price = ticket.Price

	st.logger.Info("ticket purchased",
		zap.String("transaction_id", tx.ID),
		zap.String("ticket_id", ticketID),
		zap.String("seller_id", sellerID),
		zap.String("buyer_id", actor.ID),
		zap.String("price", ticket.Price.String()))

	st.publish(ctx, events.TopicTicketPurchased, events.TicketPurchased{
		TransactionID:   tx.ID,
		TicketID:        ticketID,
		Title:           ticket.Title,
		SellerID:        sellerID,
		BuyerID:         actor.ID,
		Price:           ticket.Price,
		ClosedTicketIDs: closed,
		Timestamp:       now,
	})

	var unsettled []string
	if msg := st.settle(ctx, tx, "credit seller", sellerID, ticket.Price); msg != "" {
		unsettled = append(unsettled, msg)
	}
	if msg := st.settle(ctx, tx, "debit buyer", actor.ID, ticket.Price.Neg()); msg != "" {
		unsettled = append(unsettled, msg)
	}
	if len(unsettled) > 0 {
		return fmt.Errorf("%w: %s", status.ErrSettlement, strings.Join(unsettled, "; "))
	}

	return nil
}

// settle applies one post-commit balance adjustment and describes the failure,
// if any. A user missing from the roster has no balance to adjust and is
// skipped.
func (st *Store) settle(ctx context.Context, tx models.Transaction, step, userID string, delta decimal.Decimal) string {
	err := st.balances.UpdateUserBalance(ctx, userID, delta)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, status.ErrUserNotFound):
		st.logger.Warn(step+" skipped, user not registered",
			zap.String("transaction_id", tx.ID),
			zap.String("user_id", userID))
		return ""
	default:
		st.logger.Error(step+" after purchase",
			zap.String("transaction_id", tx.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		// the cause is flattened so the result never reads as a rejection
		return fmt.Sprintf("%s %s: %v", step, userID, err)
	}
}

// publish announces a committed change. Failures are logged only.
func (st *Store) publish(ctx context.Context, topic string, payload any) {
	if st.events == nil {
		return
	}
	if err := st.events.Publish(ctx, topic, payload); err != nil {
		st.logger.Warn("publish event", zap.String("topic", topic), zap.Error(err))
	}
}

func (st *Store) observe(operation string, started time.Time) {
	if st.metrics != nil {
		st.metrics.ObserveOperation(operation, started)
	}
}
