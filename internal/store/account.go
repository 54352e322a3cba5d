// ABOUTME: Store methods for registered accounts. Usernames are lowercase
// ABOUTME: and unique; a clash is classified as ErrAccountExists.
package store

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/Rapptz/jimaku/internal/database"
)

// ErrAccountExists is returned by CreateAccount when the username is taken.
var ErrAccountExists = errors.New("store: account name already exists")

// AccountFlags is the bitset of permissions on an account.
type AccountFlags uint32

const (
	AccountAdmin AccountFlags = 1 << iota
	AccountEditor
)

func (f AccountFlags) IsAdmin() bool { return f&AccountAdmin != 0 }

// IsEditor reports whether the account can edit entries. Admins are always
// editors.
func (f AccountFlags) IsEditor() bool {
	return f&(AccountAdmin|AccountEditor) != 0
}

// Account is a registered account. No emails are stored; the password field
// holds an Argon2 hash produced by the caller.
type Account struct {
	ID int64
	// Lowercase username, [a-z0-9._-] only.
	Name     string
	Password string
	Flags    AccountFlags
}

// AccountTable maps the account table for the generic query helpers.
var AccountTable = database.Table[Account, int64]{
	Name:    "account",
	Columns: []string{"id", "name", "password", "flags"},
	FromRow: accountFromRow,
}

func accountFromRow(stmt *sqlite.Stmt) (Account, error) {
	return Account{
		ID:       stmt.GetInt64("id"),
		Name:     stmt.GetText("name"),
		Password: stmt.GetText("password"),
		Flags:    AccountFlags(stmt.GetInt64("flags")),
	}, nil
}

// IsValidUsername reports whether s is an acceptable account name.
func IsValidUsername(s string) bool {
	if len(s) < 3 || len(s) > 32 {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// CreateAccount inserts a new account with the given (already hashed)
// password. Returns ErrAccountExists when the name is taken.
func (s *Store) CreateAccount(ctx context.Context, name, passwordHash string) (*Account, error) {
	row, err := database.Get(ctx, s.db, AccountTable,
		"INSERT INTO account(name, password) VALUES (?, ?) RETURNING *", name, passwordHash)
	if err != nil {
		if database.IsUniqueConstraintViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return row, nil
}

// GetAccount returns the account with the given id, or (nil, nil) if not
// found.
func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	return database.GetByID(ctx, s.db, AccountTable, id)
}

// GetAccountByName returns the account with the given username, or
// (nil, nil) if not found.
func (s *Store) GetAccountByName(ctx context.Context, name string) (*Account, error) {
	return database.Get(ctx, s.db, AccountTable, "SELECT * FROM account WHERE name = ?", name)
}

// UpdateAccountFlags replaces the account's permission bits.
func (s *Store) UpdateAccountFlags(ctx context.Context, id int64, flags AccountFlags) error {
	query := AccountTable.UpdateQuery("flags")
	if _, err := s.db.Execute(ctx, query, int64(flags), id); err != nil {
		return fmt.Errorf("update account flags: %w", err)
	}
	return nil
}

// ChangePassword replaces the account's password hash and invalidates every
// session except API keys, in one transaction.
func (s *Store) ChangePassword(ctx context.Context, id int64, passwordHash string) error {
	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.Execute(AccountTable.UpdateQuery("password"), passwordHash, id); err != nil {
			return err
		}
		_, err := tx.Execute("DELETE FROM session WHERE account_id = ? AND api_key = 0", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
