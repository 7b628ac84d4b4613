package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		message_id TEXT NOT NULL,
		text TEXT NOT NULL,
		posted_ms INTEGER NOT NULL,
		fetched_ms INTEGER NOT NULL,
		UNIQUE(channel, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_posted ON messages(channel, posted_ms DESC);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMessages inserts new messages in one transaction.
func (db *DB) SaveMessages(ctx context.Context, channel string, msgs []model.Message) (int, error) {
	return saveMessages(ctx, db.conn, `
		INSERT INTO messages (channel, message_id, text, posted_ms, fetched_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel, message_id) DO NOTHING`, channel, msgs)
}

// RecentMessages returns the newest messages of channel.
func (db *DB) RecentMessages(ctx context.Context, channel string, limit int) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT message_id, text, posted_ms FROM messages
		WHERE channel = ? ORDER BY posted_ms DESC LIMIT ?`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows, channel)
}

// PruneOlderThan deletes messages posted before now-age.
func (db *DB) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UnixMilli()
	res, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE posted_ms < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func saveMessages(ctx context.Context, conn *sql.DB, query, channel string, msgs []model.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	added := 0
	for _, m := range msgs {
		res, err := stmt.ExecContext(ctx, channel, m.ID, m.Text, m.Timestamp, now)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert %s/%s: %w", channel, m.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

func scanMessages(rows *sql.Rows, channel string) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var id, text string
		var postedMs int64
		if err := rows.Scan(&id, &text, &postedMs); err != nil {
			return nil, err
		}
		msgs = append(msgs, model.NewMessage(channel, id, text, time.UnixMilli(postedMs)))
	}
	return msgs, rows.Err()
}
