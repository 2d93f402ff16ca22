package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/storage"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

// DefaultStartingBalance is credited to every newly registered user.
var DefaultStartingBalance = decimal.NewFromInt(200)

// DefaultUsers is the roster written when none is stored yet.
func DefaultUsers() []models.StoredUser {
	return []models.StoredUser{
		{
			User: models.User{
				ID:      "1",
				Name:    "Admin User",
				Email:   "admin@example.com",
				Balance: decimal.NewFromInt(1000),
				IsAdmin: true,
			},
			Password: "password123",
		},
		{
			User: models.User{
				ID:      "2",
				Name:    "Regular User",
				Email:   "user@example.com",
				Balance: decimal.NewFromInt(500),
			},
			Password: "password123",
		},
	}
}

type Config struct {
	StartingBalance decimal.Decimal
	NewID           utils.IDGenerator
}

// Store owns the registered-user roster and the single active session. Every
// call reads the roster from storage and writes back immediately.
type Store struct {
	mu              sync.Mutex
	ns              *storage.Namespace
	startingBalance decimal.Decimal
	newID           utils.IDGenerator
	logger          *zap.Logger
}

func NewStore(ns *storage.Namespace, cfg Config, logger *zap.Logger) *Store {
	if cfg.NewID == nil {
		cfg.NewID = utils.NewUUID
	}
	if cfg.StartingBalance.IsZero() {
		cfg.StartingBalance = DefaultStartingBalance
	}

	return &Store{
		ns:              ns,
		startingBalance: cfg.StartingBalance,
		newID:           cfg.NewID,
		logger:          logger.Named("identity"),
	}
}

func (s *Store) Register(ctx context.Context, name, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.Email == email {
			return status.ErrEmailTaken
		}
	}

	newUser := models.StoredUser{
		User: models.User{
			ID:      s.newID(),
			Name:    name,
			Email:   email,
			Balance: s.startingBalance,
		},
		Password: password,
	}
	users = append(users, newUser)

	if err := s.ns.SaveJSONMany(ctx, map[string]any{
		storage.KeyRegisteredUsers: users,
		storage.KeyUserSession:     newUser.Public(),
	}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", newUser.ID))
	return nil
}

func (s *Store) Login(ctx context.Context, email, password string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, err
	}

	for _, u := range users {
		if u.Email == email && u.Password == password {
			session := u.Public()
			if err := s.ns.SaveJSON(ctx, storage.KeyUserSession, session); err != nil {
				return models.User{}, fmt.Errorf("login: %w", err)
			}
			s.logger.Info("user logged in", zap.String("user_id", u.ID))
			return session, nil
		}
	}

	return models.User{}, status.ErrInvalidCredentials
}

func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ns.Delete(ctx, storage.KeyUserSession); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// UpdateUserBalance adds delta to the user's balance with no floor. The stored
// session is rewritten in the same write when it belongs to that user.
func (s *Store) UpdateUserBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}

	idx := indexOf(users, userID)
	if idx < 0 {
		s.logger.Warn("balance update for unknown user", zap.String("user_id", userID))
		return status.ErrUserNotFound
	}
	users[idx].Balance = users[idx].Balance.Add(delta)

	session, err := s.loadSession(ctx)
	if err != nil {
		return err
	}

	values := map[string]any{storage.KeyRegisteredUsers: users}
	if session != nil && session.ID == userID {
		values[storage.KeyUserSession] = users[idx].Public()
	}

	if err := s.ns.SaveJSONMany(ctx, values); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}

	s.logger.Debug("balance updated",
		zap.String("user_id", userID),
		zap.String("delta", delta.String()),
		zap.String("balance", users[idx].Balance.String()))
	return nil
}

// Session returns the logged-in user resolved against the current roster, or
// nil when nobody is logged in.
func (s *Store) Session(ctx context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.loadSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}

	idx := indexOf(users, session.ID)
	if idx < 0 {
		return nil, nil
	}

	u := users[idx].Public()
	return &u, nil
}

func (s *Store) User(ctx context.Context, id string) (models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, false, err
	}

	idx := indexOf(users, id)
	if idx < 0 {
		return models.User{}, false, nil
	}
	return users[idx].Public(), true, nil
}

func (s *Store) Users(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.User, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// loadUsers reads the roster, seeding the default accounts when absent.
func (s *Store) loadUsers(ctx context.Context) ([]models.StoredUser, error) {
	var users []models.StoredUser
	found, err := s.ns.LoadJSON(ctx, storage.KeyRegisteredUsers, &users)
	if err != nil {
		return nil, err
	}
	if found {
		return users, nil
	}

	users = DefaultUsers()
	if err := s.ns.SaveJSON(ctx, storage.KeyRegisteredUsers, users); err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	s.logger.Info("seeded default users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Store) loadSession(ctx context.Context) (*models.User, error) {
	var session models.User
	found, err := s.ns.LoadJSON(ctx, storage.KeyUserSession, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func indexOf(users []models.StoredUser, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
