package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adi0301/item-lending/internal/core/domain"
)

// MySQLAdapter keeps a lending audit trail. This is history, not state: the
// catalog and borrow flags are never restored from it.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lending_events (
			id          VARCHAR(36) PRIMARY KEY,
			kind        VARCHAR(16) NOT NULL,
			item_id     INT NOT NULL,
			username    VARCHAR(255) NOT NULL,
			remote_addr VARCHAR(64) NOT NULL,
			occurred_at DATETIME(6) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create lending_events: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Record(ctx context.Context, ev domain.Event) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO lending_events (id, kind, item_id, username, remote_addr, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.ItemID, ev.Username, ev.RemoteAddr, ev.At,
	)
	if err != nil {
		return fmt.Errorf("insert lending event: %w", err)
	}
	return nil
}
