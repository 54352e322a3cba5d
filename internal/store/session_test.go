// ABOUTME: Tests for store/session.go — session lifecycle, the session ↔
// ABOUTME: account join, and atomic API key regeneration.
package store_test

import (
	"context"
	"testing"

	"github.com/Rapptz/jimaku/internal/store"
	"github.com/Rapptz/jimaku/internal/testutil"
)

func newAccount(t *testing.T, s *testutil.TestDB, name string) *store.Account {
	t.Helper()
	account, err := s.CreateAccount(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", name, err)
	}
	return account
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()
	account := newAccount(t, s, "alice")

	session, err := s.CreateSession(ctx, account.ID, ptr("firefox on linux"))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID == "" || session.APIKey {
		t.Errorf("session = %+v", session)
	}

	got, err := s.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.AccountID != account.ID {
		t.Errorf("GetSession = %+v", got)
	}
	if got.Description == nil || *got.Description != "firefox on linux" {
		t.Errorf("Description = %v", got.Description)
	}

	deleted, err := s.InvalidateSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}
	if !deleted {
		t.Error("InvalidateSession = false, want true")
	}
	if sess, err := s.GetSession(ctx, session.ID); err != nil || sess != nil {
		t.Errorf("session survived invalidation: %+v, %v", sess, err)
	}
}

func TestGetSessionAccount(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()
	alice := newAccount(t, s, "alice")
	bob := newAccount(t, s, "bob")

	session, err := s.CreateSession(ctx, alice.ID, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSessionAccount(ctx, session.ID, alice.ID, false)
	if err != nil {
		t.Fatalf("GetSessionAccount: %v", err)
	}
	if got == nil || got.ID != alice.ID || got.Name != "alice" {
		t.Errorf("GetSessionAccount = %+v, want alice", got)
	}

	// Wrong account, wrong kind, unknown session: all (nil, nil).
	if got, err := s.GetSessionAccount(ctx, session.ID, bob.ID, false); err != nil || got != nil {
		t.Errorf("mismatched account = %+v, %v", got, err)
	}
	if got, err := s.GetSessionAccount(ctx, session.ID, alice.ID, true); err != nil || got != nil {
		t.Errorf("api-key lookup of browser session = %+v, %v", got, err)
	}
	if got, err := s.GetSessionAccount(ctx, "no-such-session", alice.ID, false); err != nil || got != nil {
		t.Errorf("unknown session = %+v, %v", got, err)
	}
}

func TestRegenerateAPIKey(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()
	account := newAccount(t, s, "carol")

	// No key yet.
	key, err := s.APIKey(ctx, account.ID)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != nil {
		t.Errorf("APIKey = %v, want nil before generation", *key)
	}

	first, revoked, err := s.RegenerateAPIKey(ctx, account.ID)
	if err != nil {
		t.Fatalf("RegenerateAPIKey: %v", err)
	}
	if first == "" || len(revoked) != 0 {
		t.Errorf("first generation = %q, revoked %v", first, revoked)
	}

	second, revoked, err := s.RegenerateAPIKey(ctx, account.ID)
	if err != nil {
		t.Fatalf("RegenerateAPIKey(again): %v", err)
	}
	if second == first {
		t.Error("regeneration returned the same key")
	}
	if len(revoked) != 1 || revoked[0] != first {
		t.Errorf("revoked = %v, want [%q]", revoked, first)
	}

	current, err := s.APIKey(ctx, account.ID)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if current == nil || *current != second {
		t.Errorf("APIKey = %v, want %q", current, second)
	}

	// The key authenticates through the session join.
	got, err := s.GetSessionAccount(ctx, second, account.ID, true)
	if err != nil {
		t.Fatalf("GetSessionAccount: %v", err)
	}
	if got == nil || got.ID != account.ID {
		t.Errorf("GetSessionAccount(api key) = %+v", got)
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()
	account := newAccount(t, s, "dave")

	for i := 0; i < 3; i++ {
		if _, err := s.CreateSession(ctx, account.ID, nil); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	sessions, err := s.ListSessions(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("len = %d, want 3", len(sessions))
	}

	// Deleting the account cascades to its sessions.
	if _, err := s.DB.Execute(ctx, "DELETE FROM account WHERE id = ?", account.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	sessions, err = s.ListSessions(ctx, account.ID)
	if err != nil {
		t.Fatalf("ListSessions(after delete): %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions survived account deletion: %+v", sessions)
	}
}
