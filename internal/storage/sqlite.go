package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pocketbase/dbx"
)

const kvTable = "market_kv"

// SQLiteStore keeps values in a two column table of the pocketbase database.
type SQLiteStore struct {
	db dbx.Builder
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db dbx.Builder) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the backing table when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewQuery(
		"CREATE TABLE IF NOT EXISTS " + kvTable + " (name TEXT PRIMARY KEY NOT NULL, value TEXT NOT NULL)",
	).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("create %s: %w", kvTable, err)
	}
	return nil
}

// DropSchema removes the backing table and everything in it.
func (s *SQLiteStore) DropSchema(ctx context.Context) error {
	_, err := s.db.NewQuery("DROP TABLE IF EXISTS " + kvTable).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("drop %s: %w", kvTable, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.Select("value").
		From(kvTable).
		Where(dbx.HashExp{"name": key}).
		WithContext(ctx).
		Row(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany upserts all entries with a single statement.
func (s *SQLiteStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]string, len(keys))
	params := dbx.Params{}
	for i, key := range keys {
		nameParam := fmt.Sprintf("n%d", i)
		valueParam := fmt.Sprintf("v%d", i)
		rows[i] = fmt.Sprintf("({:%s}, {:%s})", nameParam, valueParam)
		params[nameParam] = key
		params[valueParam] = string(entries[key])
	}

	query := "INSERT INTO " + kvTable + " (name, value) VALUES " + strings.Join(rows, ", ") +
		" ON CONFLICT(name) DO UPDATE SET value = excluded.value"

	_, err := s.db.NewQuery(query).Bind(params).WithContext(ctx).Execute()
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	values := make([]any, len(keys))
	for i, key := range keys {
		values[i] = key
	}

	_, err := s.db.Delete(kvTable, dbx.In("name", values...)).WithContext(ctx).Execute()
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	_, err := s.db.NewQuery("SELECT 1").WithContext(ctx).Execute()
	return err
}
