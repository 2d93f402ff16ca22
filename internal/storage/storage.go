package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Names of the persisted values inside a namespace.
const (
	KeyRegisteredUsers = "registeredUsers"
	KeyUserSession     = "userSession"
	KeyTickets         = "tickets"
	KeyTransactions    = "transactions"
	KeyOwnerships      = "ownerships"
)

// AllKeys lists every value the service persists.
var AllKeys = []string{KeyRegisteredUsers, KeyUserSession, KeyTickets, KeyTransactions, KeyOwnerships}

// Store is a flat key-value backend. SetMany must apply all entries or none.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Namespace stores JSON documents under a common key prefix.
type Namespace struct {
	store  Store
	prefix string
}

func NewNamespace(store Store, prefix string) *Namespace {
	return &Namespace{store: store, prefix: prefix}
}

func (n *Namespace) Key(name string) string {
	return n.prefix + name
}

// LoadJSON decodes the value stored under name into dst. It reports false when
// nothing is stored.
func (n *Namespace) LoadJSON(ctx context.Context, name string, dst any) (bool, error) {
	data, err := n.store.Get(ctx, n.Key(name))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (n *Namespace) SaveJSON(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if err := n.store.Set(ctx, n.Key(name), data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// SaveJSONMany writes all values in a single atomic backend write.
func (n *Namespace) SaveJSONMany(ctx context.Context, values map[string]any) error {
	entries := make(map[string][]byte, len(values))
	for name, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		entries[n.Key(name)] = data
	}

	if err := n.store.SetMany(ctx, entries); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (n *Namespace) Delete(ctx context.Context, names ...string) error {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = n.Key(name)
	}
	return n.store.Delete(ctx, keys...)
}

func (n *Namespace) Ping(ctx context.Context) error {
	return n.store.Ping(ctx)
}
