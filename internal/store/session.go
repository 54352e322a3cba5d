// ABOUTME: Store methods for sessions and API keys. Session ids are opaque
// ABOUTME: tokens; an account has at most one API key session.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"

	"github.com/Rapptz/jimaku/internal/database"
)

// Session is a logged-in session or, when APIKey is set, a long-lived API
// key for the account.
type Session struct {
	ID          string
	AccountID   int64
	CreatedAt   time.Time
	Description *string
	APIKey      bool
}

// SessionTable maps the session table for the generic query helpers.
var SessionTable = database.Table[Session, string]{
	Name:    "session",
	Columns: []string{"id", "account_id", "created_at", "description", "api_key"},
	FromRow: sessionFromRow,
}

func sessionFromRow(stmt *sqlite.Stmt) (Session, error) {
	return Session{
		ID:          stmt.GetText("id"),
		AccountID:   stmt.GetInt64("account_id"),
		CreatedAt:   unix(stmt.GetInt64("created_at")),
		Description: nullableText(stmt, "description"),
		APIKey:      stmt.GetInt64("api_key") != 0,
	}, nil
}

// CreateSession inserts a new session for the account and returns it.
func (s *Store) CreateSession(ctx context.Context, accountID int64, description *string) (*Session, error) {
	id := uuid.NewString()
	row, err := database.Get(ctx, s.db, SessionTable,
		"INSERT INTO session(id, account_id, description, api_key) VALUES (?, ?, ?, 0) ON CONFLICT DO NOTHING RETURNING *",
		id, accountID, textArg(description))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return row, nil
}

// GetSession returns the session with the given id, or (nil, nil) if not
// found.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return database.GetByID(ctx, s.db, SessionTable, id)
}

// GetSessionAccount returns the account associated with the session if the
// session exists, belongs to that account, and matches the apiKey kind.
// Returns (nil, nil) otherwise.
func (s *Store) GetSessionAccount(ctx context.Context, sessionID string, accountID int64, apiKey bool) (*Account, error) {
	const query = `SELECT account.id AS id, account.name AS name, account.password AS password, account.flags AS flags
		FROM account INNER JOIN session ON session.account_id = account.id
		WHERE session.id = ? AND session.account_id = ? AND session.api_key = ?`
	var kind int64
	if apiKey {
		kind = 1
	}
	account, err := database.GetRow(ctx, s.db, query, []any{sessionID, accountID, kind},
		accountFromRow)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session account: %w", err)
	}
	return &account, nil
}

// InvalidateSession deletes the session. Reports whether it existed.
func (s *Store) InvalidateSession(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Execute(ctx, "DELETE FROM session WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("invalidate session: %w", err)
	}
	return n > 0, nil
}

// ListSessions returns every session belonging to the account, oldest first.
func (s *Store) ListSessions(ctx context.Context, accountID int64) ([]Session, error) {
	return database.All(ctx, s.db, SessionTable,
		"SELECT * FROM session WHERE account_id = ? ORDER BY created_at ASC", accountID)
}

// APIKey returns the account's API key session id, or (nil, nil) if none was
// generated yet.
func (s *Store) APIKey(ctx context.Context, accountID int64) (*string, error) {
	key, err := database.GetRow(ctx, s.db,
		"SELECT id FROM session WHERE account_id = ? AND api_key = 1", []any{accountID},
		func(stmt *sqlite.Stmt) (string, error) {
			return stmt.ColumnText(0), nil
		})
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// RegenerateAPIKey atomically revokes the account's existing API key
// sessions and creates a fresh one, returning the previously revoked ids
// alongside the new key. Either everything happens or nothing does.
func (s *Store) RegenerateAPIKey(ctx context.Context, accountID int64) (key string, revoked []string, err error) {
	key = uuid.NewString()
	err = s.db.Transaction(ctx, func(tx *database.Tx) error {
		old, err := database.TxAll(tx, SessionTable,
			"DELETE FROM session WHERE account_id = ? AND api_key != 0 RETURNING *", accountID)
		if err != nil {
			return err
		}
		for _, session := range old {
			revoked = append(revoked, session.ID)
		}
		_, err = tx.Execute(
			"INSERT INTO session(id, account_id, description, api_key) VALUES (?, ?, 'API Key', 1)",
			key, accountID)
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("regenerate api key: %w", err)
	}
	return key, revoked, nil
}
