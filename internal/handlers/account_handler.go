package handlers

import (
	"context"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/marketplace"
	"ticket-marketplace/models"
)

// AccountHandler serves the dashboard views of the logged-in user.
type AccountHandler struct {
	identity *identity.Store
	market   *marketplace.Store
	logger   *zap.Logger
}

func NewAccountHandler(identity *identity.Store, market *marketplace.Store, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		identity: identity,
		market:   market,
		logger:   logger,
	}
}

// GetTickets - Tickets the user bought and still owns
func (h *AccountHandler) GetTickets(e *core.RequestEvent) error {
	return h.ticketView(e, "tickets", h.market.UserTickets)
}

// GetResaleListings - Resale listings the user created
func (h *AccountHandler) GetResaleListings(e *core.RequestEvent) error {
	return h.ticketView(e, "resale listings", h.market.UserResaleListings)
}

// GetResaleCandidates - Owned tickets the user may relist
func (h *AccountHandler) GetResaleCandidates(e *core.RequestEvent) error {
	return h.ticketView(e, "resale candidates", h.market.ResaleCandidates)
}

// GetTransactions - Purchases made by the user
func (h *AccountHandler) GetTransactions(e *core.RequestEvent) error {
	actor, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}

	transactions, err := h.market.UserTransactions(e.Request.Context(), actor)
	if err != nil {
		h.logger.Error("load transactions failed", zap.String("user_id", actor.ID), zap.Error(err))
		return apis.NewInternalServerError("Failed to load transactions", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"user":         actor,
		"transactions": transactions,
	})
}

type ticketQuery func(ctx context.Context, actor *models.User) ([]models.Ticket, error)

func (h *AccountHandler) ticketView(e *core.RequestEvent, name string, view ticketQuery) error {
	actor, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}

	tickets, err := view(e.Request.Context(), actor)
	if err != nil {
		h.logger.Error("load "+name+" failed", zap.String("user_id", actor.ID), zap.Error(err))
		return apis.NewInternalServerError("Failed to load "+name, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}
