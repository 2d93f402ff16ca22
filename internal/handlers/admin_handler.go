package handlers

import (
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/marketplace"
	"ticket-marketplace/models"
)

type AdminHandler struct {
	identity *identity.Store
	market   *marketplace.Store
	logger   *zap.Logger
}

func NewAdminHandler(identity *identity.Store, market *marketplace.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		identity: identity,
		market:   market,
		logger:   logger,
	}
}

// GetStats - Marketplace totals for the admin dashboard
func (h *AdminHandler) GetStats(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	stats, err := h.market.Stats(e.Request.Context())
	if err != nil {
		h.logger.Error("load stats failed", zap.Error(err))
		return apis.NewInternalServerError("Failed to load stats", err)
	}
	return e.JSON(http.StatusOK, stats)
}

// GetTransactions - Searchable, sortable transaction log
func (h *AdminHandler) GetTransactions(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	entries, err := h.market.TransactionLog(e.Request.Context(), logQuery(e))
	if err != nil {
		h.logger.Error("load transaction log failed", zap.Error(err))
		return apis.NewInternalServerError("Failed to load transactions", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"transactions": entries})
}

// GetOwnerships - Searchable ownership history
func (h *AdminHandler) GetOwnerships(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	entries, err := h.market.OwnershipLog(e.Request.Context(), logQuery(e))
	if err != nil {
		h.logger.Error("load ownership log failed", zap.Error(err))
		return apis.NewInternalServerError("Failed to load ownerships", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ownerships": entries})
}

func (h *AdminHandler) requireAdmin(e *core.RequestEvent) error {
	user, err := currentUser(e, h.identity)
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return apis.NewForbiddenError("Admin access required", nil)
	}
	return nil
}

func logQuery(e *core.RequestEvent) models.LogQuery {
	query := e.Request.URL.Query()
	return models.LogQuery{
		Search:    strings.TrimSpace(query.Get("search")),
		SortField: query.Get("sort"),
		Direction: models.SortDirection(strings.ToLower(query.Get("direction"))),
	}
}
