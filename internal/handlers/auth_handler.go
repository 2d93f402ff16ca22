package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/status"
)

const minPasswordLength = 8

type AuthMetrics interface {
	TrackAuth(operation string, err error)
}

type AuthHandler struct {
	identity *identity.Store
	metrics  AuthMetrics
	logger   *zap.Logger
}

func NewAuthHandler(identity *identity.Store, metrics AuthMetrics, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		metrics:  metrics,
		logger:   logger,
	}
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register - Create an account and log it in
func (h *AuthHandler) Register(e *core.RequestEvent) error {
	var req registerRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if req.Name == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return apis.NewBadRequestError("Please fill in all fields", nil)
	}
	if len(req.Password) < minPasswordLength {
		return apis.NewBadRequestError("Password must be at least 8 characters long", nil)
	}
	if req.Password != req.ConfirmPassword {
		return apis.NewBadRequestError("Passwords do not match", nil)
	}

	ctx := e.Request.Context()
	err := h.identity.Register(ctx, strings.TrimSpace(req.Name), req.Email, req.Password)
	h.track("register", err)
	if errors.Is(err, status.ErrEmailTaken) {
		return apis.NewBadRequestError("Registration failed. Email might already be in use.", nil)
	}
	if err != nil {
		h.logger.Error("register failed", zap.String("email", req.Email), zap.Error(err))
		return apis.NewInternalServerError("An error occurred. Please try again.", err)
	}

	user, err := h.identity.Session(ctx)
	if err != nil {
		return apis.NewInternalServerError("An error occurred. Please try again.", err)
	}
	return e.JSON(http.StatusCreated, map[string]any{"user": user})
}

// Login - Start a session for the matching roster entry
func (h *AuthHandler) Login(e *core.RequestEvent) error {
	var req loginRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Email == "" || req.Password == "" {
		return apis.NewBadRequestError("Please fill in all fields", nil)
	}

	user, err := h.identity.Login(e.Request.Context(), req.Email, req.Password)
	h.track("login", err)
	if errors.Is(err, status.ErrInvalidCredentials) {
		return apis.NewUnauthorizedError("Invalid email or password", nil)
	}
	if err != nil {
		h.logger.Error("login failed", zap.String("email", req.Email), zap.Error(err))
		return apis.NewInternalServerError("An error occurred. Please try again.", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"user": user})
}

// Logout - Clear the session
func (h *AuthHandler) Logout(e *core.RequestEvent) error {
	err := h.identity.Logout(e.Request.Context())
	h.track("logout", err)
	if err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		return apis.NewInternalServerError("An error occurred. Please try again.", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Logged out"})
}

// Session - Current user, or null when logged out
func (h *AuthHandler) Session(e *core.RequestEvent) error {
	user, err := h.identity.Session(e.Request.Context())
	if err != nil {
		h.logger.Error("load session failed", zap.Error(err))
		return apis.NewInternalServerError("Failed to load session", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"user":            user,
		"isAuthenticated": user != nil,
	})
}

func (h *AuthHandler) track(operation string, err error) {
	if h.metrics != nil {
		h.metrics.TrackAuth(operation, err)
	}
}
