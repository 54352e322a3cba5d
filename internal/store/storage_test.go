// ABOUTME: Verifies the migration-seeded storage keys are readable and
// ABOUTME: writable through the key-value helpers.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Rapptz/jimaku/internal/database"
	"github.com/Rapptz/jimaku/internal/testutil"
)

func TestSeededStorageKeys(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	enabled, ok := database.GetFromStorage[bool](ctx, s.DB, "kitsunekko_scrape_enabled")
	if !ok || !enabled {
		t.Errorf("kitsunekko_scrape_enabled = %v, %v; want true", enabled, ok)
	}

	// Seeded with a NULL value: a miss until the scraper first writes it.
	if _, ok := database.GetFromStorage[time.Time](ctx, s.DB, "kitsunekko_scrape_date"); ok {
		t.Error("kitsunekko_scrape_date readable before first write")
	}

	when := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	if err := s.DB.UpdateStorage(ctx, "kitsunekko_scrape_date", when); err != nil {
		t.Fatalf("UpdateStorage: %v", err)
	}
	got, ok := database.GetFromStorage[time.Time](ctx, s.DB, "kitsunekko_scrape_date")
	if !ok || !got.Equal(when) {
		t.Errorf("kitsunekko_scrape_date = %v, %v; want %v", got, ok, when)
	}
}
