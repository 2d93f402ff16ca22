package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/marketplace"
	"ticket-marketplace/internal/pass"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

type TicketHandler struct {
	identity *identity.Store
	market   *marketplace.Store
	issuer   *pass.Issuer
	logger   *zap.Logger
}

func NewTicketHandler(identity *identity.Store, market *marketplace.Store, issuer *pass.Issuer, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{
		identity: identity,
		market:   market,
		issuer:   issuer,
		logger:   logger,
	}
}

// priceField accepts the price as a JSON number or as the raw form string.
type priceField string

func (p *priceField) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		*p = ""
		return nil
	}
	*p = priceField(strings.Trim(raw, `"`))
	return nil
}

type createTicketRequest struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Price            priceField        `json:"price"`
	Date             string            `json:"date"`
	Time             string            `json:"time"`
	Location         string            `json:"location"`
	Type             models.TicketType `json:"type"`
	Image            string            `json:"image"`
	ExistingTicketID string            `json:"existingTicketId"`
}

// ListTickets - Home page sections, or a filtered list when any filter is set
func (h *TicketHandler) ListTickets(e *core.RequestEvent) error {
	query := e.Request.URL.Query()

	filter := models.TicketFilter{
		Type:  models.TicketType(query.Get("type")),
		Query: strings.TrimSpace(query.Get("q")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return apis.NewBadRequestError("Invalid ticket type", nil)
	}
	var err error
	if filter.MinPrice, err = priceParam(query.Get("minPrice")); err != nil {
		return apis.NewBadRequestError("Please enter a valid price", err)
	}
	if filter.MaxPrice, err = priceParam(query.Get("maxPrice")); err != nil {
		return apis.NewBadRequestError("Please enter a valid price", err)
	}

	ctx := e.Request.Context()
	if filter.IsZero() {
		listings, err := h.market.Browse(ctx)
		if err != nil {
			h.logger.Error("browse tickets failed", zap.Error(err))
			return apis.NewInternalServerError("Failed to load tickets", err)
		}
		return e.JSON(http.StatusOK, listings)
	}

	tickets, err := h.market.Search(ctx, filter)
	if err != nil {
		h.logger.Error("search tickets failed", zap.Error(err))
		return apis.NewInternalServerError("Failed to load tickets", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

// GetTicket - Ticket details with its current owner
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")
	ctx := e.Request.Context()

	ticket, found, err := h.market.GetTicketByID(ctx, ticketID)
	if err != nil {
		h.logger.Error("load ticket failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return apis.NewInternalServerError("Failed to load ticket", err)
	}
	if !found {
		return apis.NewNotFoundError("Ticket not found", nil)
	}

	ownerID, err := h.market.GetCurrentOwner(ctx, ticketID)
	if err != nil {
		return apis.NewInternalServerError("Failed to load ticket", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket":  ticket,
		"ownerId": ownerID,
	})
}

// CreateTicket - List a new ticket, or resell an owned one via existingTicketId
func (h *TicketHandler) CreateTicket(e *core.RequestEvent) error {
	actor, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}

	var req createTicketRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if req.Title == "" || req.Description == "" || req.Price == "" || req.Date == "" || req.Time == "" || req.Location == "" {
		return apis.NewBadRequestError("Please fill in all fields", nil)
	}
	price, err := decimal.NewFromString(string(req.Price))
	if err != nil || !price.IsPositive() {
		return apis.NewBadRequestError("Please enter a valid price", nil)
	}
	if req.Type == "" {
		req.Type = models.TicketTypeEvent
	}
	if !req.Type.Valid() {
		return apis.NewBadRequestError("Invalid ticket type", nil)
	}
	if req.Image == "" {
		req.Image = models.SampleTicketImages[0]
	}

	ctx := e.Request.Context()
	if req.ExistingTicketID != "" {
		candidates, err := h.market.ResaleCandidates(ctx, actor)
		if err != nil {
			h.logger.Error("load resale candidates failed", zap.String("user_id", actor.ID), zap.Error(err))
			return apis.NewInternalServerError("Failed to create ticket. Please try again.", err)
		}
		if !containsTicket(candidates, req.ExistingTicketID) {
			return apis.NewBadRequestError("Please select a ticket to resell", nil)
		}
	}

	ticketID, err := h.market.AddTicket(ctx, actor, models.TicketInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       price,
		Date:        req.Date + "T" + req.Time,
		Location:    req.Location,
		Type:        req.Type,
		Image:       req.Image,
	}, req.ExistingTicketID)
	if err != nil {
		h.logger.Error("add ticket failed", zap.String("user_id", actor.ID), zap.Error(err))
		return apis.NewInternalServerError("Failed to create ticket. Please try again.", err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"message":  "Ticket listed",
		"ticketId": ticketID,
	})
}

// PurchaseTicket - Buy a ticket for the logged-in user
func (h *TicketHandler) PurchaseTicket(e *core.RequestEvent) error {
	actor, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}

	ticketID := e.Request.PathValue("ticketId")
	ctx := e.Request.Context()

	_, found, err := h.market.GetTicketByID(ctx, ticketID)
	if err != nil {
		return apis.NewInternalServerError("Failed to purchase ticket. Please try again.", err)
	}
	if !found {
		return apis.NewNotFoundError("Ticket not found", nil)
	}
	ownerID, err := h.market.GetCurrentOwner(ctx, ticketID)
	if err != nil {
		return apis.NewInternalServerError("Failed to purchase ticket. Please try again.", err)
	}
	if ownerID == actor.ID {
		return apis.NewBadRequestError("You already own this ticket", nil)
	}

	settled := true
	err = h.market.PurchaseTicket(ctx, actor, ticketID)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrInsufficientBalance):
		return apis.NewBadRequestError("You don't have enough balance to purchase this ticket", nil)
	case errors.Is(err, status.ErrSettlement):
		// the ticket changed hands; only the balances are off
		h.logger.Error("purchase settlement incomplete",
			zap.String("ticket_id", ticketID),
			zap.String("buyer_id", actor.ID),
			zap.Error(err))
		settled = false
	case status.IsRejected(err):
		return apis.NewBadRequestError("Failed to purchase ticket. Please try again.", nil)
	default:
		h.logger.Error("purchase failed", zap.String("ticket_id", ticketID), zap.String("buyer_id", actor.ID), zap.Error(err))
		return apis.NewInternalServerError("Failed to purchase ticket. Please try again.", err)
	}

	user, err := h.identity.Session(ctx)
	if err != nil {
		return apis.NewInternalServerError("Failed to load session", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Ticket purchased",
		"settled": settled,
		"user":    user,
	})
}

// GetPass - Downloadable pass for a ticket the user owns
func (h *TicketHandler) GetPass(e *core.RequestEvent) error {
	actor, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}

	ticketID := e.Request.PathValue("ticketId")
	ticket, err := h.market.OwnedTicket(e.Request.Context(), actor, ticketID)
	switch {
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrNotOwner):
		return apis.NewForbiddenError("Only the ticket owner can download the pass", nil)
	case err != nil:
		h.logger.Error("load owned ticket failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return apis.NewInternalServerError("Failed to generate pass", err)
	}

	return e.JSON(http.StatusOK, h.issuer.Issue(ticket, *actor))
}

// VerifyPass - Check a presented pass against the ticket's current owner
func (h *TicketHandler) VerifyPass(e *core.RequestEvent) error {
	ticketID := e.Request.PathValue("ticketId")
	query := e.Request.URL.Query()
	ownerID := query.Get("owner")
	code := query.Get("code")
	if ownerID == "" || code == "" {
		return apis.NewBadRequestError("owner and code are required", nil)
	}

	currentOwner, err := h.market.GetCurrentOwner(e.Request.Context(), ticketID)
	if err != nil {
		return apis.NewInternalServerError("Failed to verify pass", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticketId": ticketID,
		"valid":    currentOwner == ownerID && h.issuer.Verify(ticketID, ownerID, code),
	})
}

func priceParam(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func containsTicket(tickets []models.Ticket, id string) bool {
	for _, t := range tickets {
		if t.ID == id {
			return true
		}
	}
	return false
}
