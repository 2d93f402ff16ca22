package migrations

import (
	"context"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"ticket-marketplace/internal/storage"
)

func init() {
	m.Register(func(app core.App) error {
		return storage.NewSQLiteStore(app.DB()).EnsureSchema(context.Background())
	}, func(app core.App) error {
		return storage.NewSQLiteStore(app.DB()).DropSchema(context.Background())
	})
}
