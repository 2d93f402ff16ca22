package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/marketplace"
	"ticket-marketplace/internal/pass"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

type mockAuthMetrics struct {
	mock.Mock
}

func (m *mockAuthMetrics) TrackAuth(operation string, err error) {
	m.Called(operation, err)
}

type testServer struct {
	identity *identity.Store
	market   *marketplace.Store
	issuer   *pass.Issuer
	metrics  *mockAuthMetrics
	auth     *AuthHandler
	tickets  *TicketHandler
	account  *AccountHandler
	admin    *AdminHandler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	decimal.MarshalJSONWithoutQuotes = true

	ns := storage.NewNamespace(storage.NewMemoryStore(), "market:")
	ids := identity.NewStore(ns, identity.Config{NewID: utils.SequentialIDs("u")}, zap.NewNop())
	market := marketplace.NewStore(ns, ids, marketplace.Options{NewID: utils.SequentialIDs("t")}, zap.NewNop())
	issuer, err := pass.NewIssuer("test-secret")
	require.NoError(t, err)

	metrics := &mockAuthMetrics{}
	metrics.On("TrackAuth", mock.Anything, mock.Anything).Return()

	return &testServer{
		identity: ids,
		market:   market,
		issuer:   issuer,
		metrics:  metrics,
		auth:     NewAuthHandler(ids, metrics, zap.NewNop()),
		tickets:  NewTicketHandler(ids, market, issuer, zap.NewNop()),
		account:  NewAccountHandler(ids, market, zap.NewNop()),
		admin:    NewAdminHandler(ids, market, zap.NewNop()),
	}
}

func (s *testServer) login(t *testing.T, email string) {
	t.Helper()

	_, err := s.identity.Login(context.Background(), email, "password123")
	require.NoError(t, err)
}

func newRequestEvent(t *testing.T, method, target string, body any) (*core.RequestEvent, *httptest.ResponseRecorder) {
	t.Helper()

	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func withTicketID(e *core.RequestEvent, id string) *core.RequestEvent {
	e.Request.SetPathValue("ticketId", id)
	return e
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func assertAPIError(t *testing.T, err error, code int, message string) {
	t.Helper()

	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Status)
	assert.Contains(t, apiErr.Message, message)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    registerRequest
		message string
	}{
		{
			name:    "missing fields",
			body:    registerRequest{Name: "Jane", Email: "jane@example.com"},
			message: "Please fill in all fields",
		},
		{
			name:    "short password",
			body:    registerRequest{Name: "Jane", Email: "jane@example.com", Password: "short", ConfirmPassword: "short"},
			message: "Password must be at least 8 characters long",
		},
		{
			name:    "mismatched confirmation",
			body:    registerRequest{Name: "Jane", Email: "jane@example.com", Password: "secret123", ConfirmPassword: "secret124"},
			message: "Passwords do not match",
		},
		{
			name:    "email already registered",
			body:    registerRequest{Name: "Jane", Email: "user@example.com", Password: "secret123", ConfirmPassword: "secret123"},
			message: "Registration failed. Email might already be in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/auth/register", tt.body)

			err := s.auth.Register(e)
			assertAPIError(t, err, http.StatusBadRequest, tt.message)

			users, err := s.identity.Users(context.Background())
			require.NoError(t, err)
			assert.Len(t, users, 2)
		})
	}
}

func TestAuthHandler_Register(t *testing.T) {
	s := setupTestServer(t)
	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/register", registerRequest{
		Name:            "Jane",
		Email:           "jane@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	})

	require.NoError(t, s.auth.Register(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		User models.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "u1", resp.User.ID)
	assert.True(t, resp.User.Balance.Equal(decimal.NewFromInt(200)))
	assert.NotContains(t, rec.Body.String(), "secret123")

	s.metrics.AssertCalled(t, "TrackAuth", "register", nil)
}

func TestAuthHandler_Login(t *testing.T) {
	s := setupTestServer(t)

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "user@example.com", Password: "wrong-password"})
	assertAPIError(t, s.auth.Login(e), http.StatusUnauthorized, "Invalid email or password")
	s.metrics.AssertCalled(t, "TrackAuth", "login", status.ErrInvalidCredentials)

	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "user@example.com"})
	assertAPIError(t, s.auth.Login(e), http.StatusBadRequest, "Please fill in all fields")

	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, s.auth.Login(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		User models.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "2", resp.User.ID)
}

func TestAuthHandler_SessionAndLogout(t *testing.T) {
	s := setupTestServer(t)
	s.login(t, "admin@example.com")

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/auth/session", nil)
	require.NoError(t, s.auth.Session(e))

	var resp struct {
		User            *models.User `json:"user"`
		IsAuthenticated bool         `json:"isAuthenticated"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.User)
	assert.True(t, resp.User.IsAdmin)
	assert.True(t, resp.IsAuthenticated)

	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.NoError(t, s.auth.Logout(e))

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/auth/session", nil)
	require.NoError(t, s.auth.Session(e))
	resp.User = nil
	decodeBody(t, rec, &resp)
	assert.Nil(t, resp.User)
	assert.False(t, resp.IsAuthenticated)
}

func TestTicketHandler_ListTickets(t *testing.T) {
	s := setupTestServer(t)

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/tickets", nil)
	require.NoError(t, s.tickets.ListTickets(e))

	var listings marketplace.Listings
	decodeBody(t, rec, &listings)
	require.Len(t, listings.New, 1)
	assert.Equal(t, "Summer Music Festival", listings.New[0].Title)
	assert.Empty(t, listings.Resale)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/tickets?type=concert&maxPrice=150", nil)
	require.NoError(t, s.tickets.ListTickets(e))

	var found struct {
		Tickets []models.Ticket `json:"tickets"`
	}
	decodeBody(t, rec, &found)
	assert.Len(t, found.Tickets, 1)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/tickets?minPrice=151", nil)
	require.NoError(t, s.tickets.ListTickets(e))
	found.Tickets = nil
	decodeBody(t, rec, &found)
	assert.Empty(t, found.Tickets)

	e, _ = newRequestEvent(t, http.MethodGet, "/api/v1/tickets?minPrice=cheap", nil)
	assertAPIError(t, s.tickets.ListTickets(e), http.StatusBadRequest, "Please enter a valid price")

	e, _ = newRequestEvent(t, http.MethodGet, "/api/v1/tickets?type=flight", nil)
	assertAPIError(t, s.tickets.ListTickets(e), http.StatusBadRequest, "Invalid ticket type")
}

func TestTicketHandler_GetTicket(t *testing.T) {
	s := setupTestServer(t)

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1", nil)
	require.NoError(t, s.tickets.GetTicket(withTicketID(e, "1")))

	var resp struct {
		Ticket  models.Ticket `json:"ticket"`
		OwnerID string        `json:"ownerId"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "1", resp.Ticket.ID)
	assert.Equal(t, "2", resp.OwnerID)

	e, _ = newRequestEvent(t, http.MethodGet, "/api/v1/tickets/404", nil)
	assertAPIError(t, s.tickets.GetTicket(withTicketID(e, "404")), http.StatusNotFound, "Ticket not found")
}

func TestTicketHandler_CreateTicketValidation(t *testing.T) {
	valid := map[string]any{
		"title":       "Jazz Night",
		"description": "Front row",
		"price":       "45.50",
		"date":        "2025-09-01",
		"time":        "20:00",
		"location":    "Blue Note",
		"type":        "concert",
	}
	with := func(key string, value any) map[string]any {
		body := make(map[string]any, len(valid))
		for k, v := range valid {
			body[k] = v
		}
		body[key] = value
		return body
	}

	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing title", with("title", ""), "Please fill in all fields"},
		{"missing time", with("time", ""), "Please fill in all fields"},
		{"missing price", with("price", nil), "Please fill in all fields"},
		{"non numeric price", with("price", "free"), "Please enter a valid price"},
		{"zero price", with("price", 0), "Please enter a valid price"},
		{"negative price", with("price", "-5"), "Please enter a valid price"},
		{"unknown type", with("type", "flight"), "Invalid ticket type"},
		{"resale of unowned ticket", with("existingTicketId", "1"), "Please select a ticket to resell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			s.login(t, "admin@example.com")

			e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/tickets", tt.body)
			assertAPIError(t, s.tickets.CreateTicket(e), http.StatusBadRequest, tt.message)

			tickets, err := s.market.Tickets(context.Background())
			require.NoError(t, err)
			assert.Len(t, tickets, 1)
		})
	}
}

func TestTicketHandler_CreateTicket(t *testing.T) {
	s := setupTestServer(t)

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/tickets", map[string]any{"title": "x"})
	assertAPIError(t, s.tickets.CreateTicket(e), http.StatusUnauthorized, "")

	s.login(t, "admin@example.com")
	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/tickets", map[string]any{
		"title":       "Jazz Night",
		"description": "Front row",
		"price":       45.5,
		"date":        "2025-09-01",
		"time":        "20:00",
		"location":    "Blue Note",
	})
	require.NoError(t, s.tickets.CreateTicket(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		TicketID string `json:"ticketId"`
	}
	decodeBody(t, rec, &resp)

	ticket, found, err := s.market.GetTicketByID(context.Background(), resp.TicketID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2025-09-01T20:00", ticket.Date)
	assert.Equal(t, models.TicketTypeEvent, ticket.Type)
	assert.Equal(t, models.SampleTicketImages[0], ticket.Image)
	assert.True(t, ticket.Price.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, "1", ticket.SellerID)
}

func TestTicketHandler_PurchaseTicket(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	assertAPIError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")), http.StatusUnauthorized, "")

	s.login(t, "user@example.com")
	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	assertAPIError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")), http.StatusBadRequest, "You already own this ticket")

	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets/404/purchase", nil)
	assertAPIError(t, s.tickets.PurchaseTicket(withTicketID(e, "404")), http.StatusNotFound, "Ticket not found")

	s.login(t, "admin@example.com")
	e, rec := newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	require.NoError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")))

	var resp struct {
		Settled bool        `json:"settled"`
		User    models.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Settled)
	assert.True(t, resp.User.Balance.Equal(decimal.NewFromInt(850)))

	seller, _, err := s.identity.User(ctx, "2")
	require.NoError(t, err)
	assert.True(t, seller.Balance.Equal(decimal.NewFromInt(650)))

	// sold out for everyone else
	s.login(t, "user@example.com")
	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	assertAPIError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")), http.StatusBadRequest, "Failed to purchase ticket. Please try again")
}

func TestTicketHandler_PurchaseTicketInsufficientBalance(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.identity.Register(ctx, "Jane", "jane@example.com", "secret123"))
	require.NoError(t, s.identity.UpdateUserBalance(ctx, "u1", decimal.NewFromInt(-100)))

	e, _ := newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	assertAPIError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")), http.StatusBadRequest, "You don't have enough balance to purchase this ticket")

	ticket, _, err := s.market.GetTicketByID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ticket.Available)
}

func TestTicketHandler_Pass(t *testing.T) {
	s := setupTestServer(t)

	s.login(t, "admin@example.com")
	e, _ := newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1/pass", nil)
	assertAPIError(t, s.tickets.GetPass(withTicketID(e, "1")), http.StatusForbidden, "Only the ticket owner can download the pass")

	s.login(t, "user@example.com")
	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1/pass", nil)
	require.NoError(t, s.tickets.GetPass(withTicketID(e, "1")))

	var issued pass.Pass
	decodeBody(t, rec, &issued)
	assert.Equal(t, "Regular User", issued.Owner)
	assert.Equal(t, pass.QRCodeURL("1"), issued.QRCode)
	assert.True(t, s.issuer.Verify("1", "2", issued.VerificationCode))

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1/pass/verify?owner=2&code="+issued.VerificationCode, nil)
	require.NoError(t, s.tickets.VerifyPass(withTicketID(e, "1")))

	var verdict struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &verdict)
	assert.True(t, verdict.Valid)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1/pass/verify?owner=1&code="+issued.VerificationCode, nil)
	require.NoError(t, s.tickets.VerifyPass(withTicketID(e, "1")))
	decodeBody(t, rec, &verdict)
	assert.False(t, verdict.Valid)

	e, _ = newRequestEvent(t, http.MethodGet, "/api/v1/tickets/1/pass/verify", nil)
	assertAPIError(t, s.tickets.VerifyPass(withTicketID(e, "1")), http.StatusBadRequest, "")
}

func TestAccountHandler(t *testing.T) {
	s := setupTestServer(t)

	e, _ := newRequestEvent(t, http.MethodGet, "/api/v1/me/tickets", nil)
	assertAPIError(t, s.account.GetTickets(e), http.StatusUnauthorized, "")

	s.login(t, "admin@example.com")
	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	require.NoError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")))

	var tickets struct {
		Tickets []models.Ticket `json:"tickets"`
	}

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/me/tickets", nil)
	require.NoError(t, s.account.GetTickets(e))
	decodeBody(t, rec, &tickets)
	require.Len(t, tickets.Tickets, 1)
	assert.Equal(t, "1", tickets.Tickets[0].ID)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/me/resale-candidates", nil)
	require.NoError(t, s.account.GetResaleCandidates(e))
	tickets.Tickets = nil
	decodeBody(t, rec, &tickets)
	assert.Len(t, tickets.Tickets, 1)

	// relist through the HTTP surface, then the listing shows under resale
	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets", map[string]any{
		"title":            "Summer Music Festival",
		"description":      "Cannot make it",
		"price":            "175",
		"date":             "2025-07-15",
		"time":             "18:00",
		"location":         "Central Park, New York",
		"type":             "concert",
		"existingTicketId": "1",
	})
	require.NoError(t, s.tickets.CreateTicket(e))

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/me/resale", nil)
	require.NoError(t, s.account.GetResaleListings(e))
	tickets.Tickets = nil
	decodeBody(t, rec, &tickets)
	require.Len(t, tickets.Tickets, 1)
	assert.True(t, tickets.Tickets[0].IsResale)
	assert.Equal(t, "1", tickets.Tickets[0].OriginalTicketID)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/me/transactions", nil)
	require.NoError(t, s.account.GetTransactions(e))

	var history struct {
		Transactions []models.Transaction `json:"transactions"`
	}
	decodeBody(t, rec, &history)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, "2", history.Transactions[0].SellerID)
}

func TestAdminHandler(t *testing.T) {
	s := setupTestServer(t)

	e, _ := newRequestEvent(t, http.MethodGet, "/api/v1/admin/stats", nil)
	assertAPIError(t, s.admin.GetStats(e), http.StatusUnauthorized, "")

	s.login(t, "user@example.com")
	e, _ = newRequestEvent(t, http.MethodGet, "/api/v1/admin/stats", nil)
	assertAPIError(t, s.admin.GetStats(e), http.StatusForbidden, "Admin access required")

	s.login(t, "admin@example.com")
	e, _ = newRequestEvent(t, http.MethodPost, "/api/v1/tickets/1/purchase", nil)
	require.NoError(t, s.tickets.PurchaseTicket(withTicketID(e, "1")))

	e, rec := newRequestEvent(t, http.MethodGet, "/api/v1/admin/stats", nil)
	require.NoError(t, s.admin.GetStats(e))

	var stats models.Stats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalTickets)
	assert.Equal(t, 1, stats.Transactions)
	assert.True(t, stats.TotalVolume.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 2, stats.OwnershipRecords)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/admin/transactions?search=FESTIVAL&sort=price&direction=ASC", nil)
	require.NoError(t, s.admin.GetTransactions(e))

	var txs struct {
		Transactions []marketplace.TransactionEntry `json:"transactions"`
	}
	decodeBody(t, rec, &txs)
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, "Summer Music Festival", txs.Transactions[0].TicketTitle)

	e, rec = newRequestEvent(t, http.MethodGet, "/api/v1/admin/ownerships?search=nothing-matches", nil)
	require.NoError(t, s.admin.GetOwnerships(e))

	var owns struct {
		Ownerships []marketplace.OwnershipEntry `json:"ownerships"`
	}
	decodeBody(t, rec, &owns)
	assert.Empty(t, owns.Ownerships)
}
