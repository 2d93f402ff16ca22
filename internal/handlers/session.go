package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/models"
)

// currentUser resolves the logged-in user from the persisted session.
func currentUser(e *core.RequestEvent, users *identity.Store) (*models.User, error) {
	user, err := users.Session(e.Request.Context())
	if err != nil {
		return nil, apis.NewInternalServerError("Failed to load session", err)
	}
	if user == nil {
		return nil, apis.NewUnauthorizedError("Please log in to continue", nil)
	}
	return user, nil
}
