package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_SaveAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	msgs := []model.Message{
		model.NewMessage("alpha", "1", "first", base),
		model.NewMessage("alpha", "2", "second", base.Add(time.Minute)),
	}
	added, err := db.SaveMessages(ctx, "alpha", msgs)
	if err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	// Re-saving is a no-op; a new id is added.
	msgs = append(msgs, model.NewMessage("alpha", "3", "third", base.Add(2*time.Minute)))
	if added, _ := db.SaveMessages(ctx, "alpha", msgs); added != 1 {
		t.Errorf("second save added = %d, want 1", added)
	}

	got, err := db.RecentMessages(ctx, "alpha", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Fatalf("recent = %+v", got)
	}
	if got[0].URL != "https://t.me/alpha/3" || got[0].Channel != "alpha" {
		t.Errorf("message not rebuilt: %+v", got[0])
	}
	if !got[1].PostedAt().Equal(base.Add(time.Minute)) {
		t.Errorf("posted = %v, want %v", got[1].PostedAt(), base.Add(time.Minute))
	}

	if other, _ := db.RecentMessages(ctx, "beta", 10); len(other) != 0 {
		t.Errorf("channels must not mix: %+v", other)
	}
}

func TestDB_PruneOlderThan(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	_, err := db.SaveMessages(ctx, "alpha", []model.Message{
		model.NewMessage("alpha", "old", "old", now.Add(-48*time.Hour)),
		model.NewMessage("alpha", "new", "new", now.Add(-time.Hour)),
	})
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := db.PruneOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	got, _ := db.RecentMessages(ctx, "alpha", 10)
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverNone, "")
	if err != nil || s != nil {
		t.Errorf("none: %v, %v", s, err)
	}
	if _, err := Open("mongo", ""); err == nil {
		t.Error("unknown driver should fail")
	}
	s, err = Open(DriverSQLite, filepath.Join(t.TempDir(), "open.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close()
	if s.DatabaseType() != "SQLite" {
		t.Errorf("type = %s", s.DatabaseType())
	}
}
