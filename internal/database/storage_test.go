package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/Rapptz/jimaku/internal/database"
)

const storageSchema = `
CREATE TABLE IF NOT EXISTS storage(name TEXT PRIMARY KEY, value TEXT);
INSERT OR IGNORE INTO storage(name, value) VALUES
	('greeting', 'hello'),
	('scrape_enabled', '1'),
	('scrape_date', NULL),
	('retries', '7');
`

func TestStorageRead(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, storageSchema)
	ctx := context.Background()

	if v, ok := database.GetFromStorage[string](ctx, db, "greeting"); !ok || v != "hello" {
		t.Errorf("greeting = %q, %v", v, ok)
	}
	if v, ok := database.GetFromStorage[bool](ctx, db, "scrape_enabled"); !ok || !v {
		t.Errorf("scrape_enabled = %v, %v", v, ok)
	}
	if v, ok := database.GetFromStorage[int64](ctx, db, "retries"); !ok || v != 7 {
		t.Errorf("retries = %d, %v", v, ok)
	}
}

// A seeded key whose value is still NULL reads as a miss, same as an unknown
// key or any failure.
func TestStorageMissCollapsesErrors(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, storageSchema)
	ctx := context.Background()

	if _, ok := database.GetFromStorage[string](ctx, db, "scrape_date"); ok {
		t.Error("NULL value read as a hit")
	}
	if _, ok := database.GetFromStorage[string](ctx, db, "never_seeded"); ok {
		t.Error("unknown key read as a hit")
	}
	// Malformed time text is a miss, not an error.
	if _, ok := database.GetFromStorage[time.Time](ctx, db, "greeting"); ok {
		t.Error("non-time text decoded as a time")
	}
}

func TestStorageUpdateRoundTrip(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, storageSchema)
	ctx := context.Background()

	if err := db.UpdateStorage(ctx, "greeting", "konnichiwa"); err != nil {
		t.Fatalf("UpdateStorage: %v", err)
	}
	if v, ok := database.GetFromStorage[string](ctx, db, "greeting"); !ok || v != "konnichiwa" {
		t.Errorf("greeting = %q, %v", v, ok)
	}

	when := time.Date(2024, time.March, 9, 12, 30, 0, 0, time.UTC)
	if err := db.UpdateStorage(ctx, "scrape_date", when); err != nil {
		t.Fatalf("UpdateStorage(time): %v", err)
	}
	got, ok := database.GetFromStorage[time.Time](ctx, db, "scrape_date")
	if !ok || !got.Equal(when) {
		t.Errorf("scrape_date = %v, %v, want %v", got, ok, when)
	}
}

// Updating a key the migration never seeded is a silent no-op.
func TestStorageUpdateUnseededKey(t *testing.T) {
	t.Parallel()
	db := newPool(t, 2, storageSchema)
	ctx := context.Background()

	if err := db.UpdateStorage(ctx, "never_seeded", "value"); err != nil {
		t.Fatalf("UpdateStorage: %v", err)
	}
	if _, ok := database.GetFromStorage[string](ctx, db, "never_seeded"); ok {
		t.Error("UPDATE on an unseeded key created a row")
	}
}
