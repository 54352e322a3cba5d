// ABOUTME: Store methods for directory entries, the catalogued subtitle
// ABOUTME: directories. Updates go through the column whitelist.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"zombiezen.com/go/sqlite"

	"github.com/Rapptz/jimaku/internal/database"
)

// EntryFlags is the bitset of boolean attributes on a directory entry.
type EntryFlags uint32

const (
	EntryAnime EntryFlags = 1 << iota
	EntryLowQuality
	EntryExternal
	EntryMovie
	EntryAdult
)

// Has reports whether every bit in flag is set.
func (f EntryFlags) Has(flag EntryFlags) bool { return f&flag == flag }

func (f EntryFlags) IsAnime() bool { return f.Has(EntryAnime) }
func (f EntryFlags) IsMovie() bool { return f.Has(EntryMovie) }

// Entry is a directory entry that contains subtitles, typically backed by an
// AniList or TMDB entry.
type Entry struct {
	ID   int64
	Path string
	// The romaji name of the entry.
	Name  string
	Flags EntryFlags
	// The date of the newest uploaded file.
	LastUpdatedAt time.Time
	// The account that created this entry, if it still exists.
	CreatorID    *int64
	AnilistID    *int64
	TmdbID       *string
	Notes        *string
	EnglishName  *string
	JapaneseName *string
}

// EntryTable maps the directory_entry table for the generic query helpers.
var EntryTable = database.Table[Entry, int64]{
	Name: "directory_entry",
	Columns: []string{
		"id", "path", "flags", "last_updated_at", "creator_id",
		"anilist_id", "tmdb_id", "notes", "english_name", "japanese_name", "name",
	},
	FromRow: entryFromRow,
}

func entryFromRow(stmt *sqlite.Stmt) (Entry, error) {
	return Entry{
		ID:            stmt.GetInt64("id"),
		Path:          stmt.GetText("path"),
		Name:          stmt.GetText("name"),
		Flags:         EntryFlags(stmt.GetInt64("flags")),
		LastUpdatedAt: unix(stmt.GetInt64("last_updated_at")),
		CreatorID:     nullableInt(stmt, "creator_id"),
		AnilistID:     nullableInt(stmt, "anilist_id"),
		TmdbID:        nullableText(stmt, "tmdb_id"),
		Notes:         nullableText(stmt, "notes"),
		EnglishName:   nullableText(stmt, "english_name"),
		JapaneseName:  nullableText(stmt, "japanese_name"),
	}, nil
}

// CreateEntryParams holds the fields for creating a directory entry.
type CreateEntryParams struct {
	Path         string
	Name         string
	Flags        EntryFlags
	CreatorID    *int64
	AnilistID    *int64
	TmdbID       *string
	EnglishName  *string
	JapaneseName *string
}

// CreateEntry inserts a new directory entry and returns it. The path is
// unique; inserting a duplicate surfaces as a constraint error classifiable
// with database.IsUniqueConstraintViolation.
func (s *Store) CreateEntry(ctx context.Context, p CreateEntryParams) (*Entry, error) {
	const query = `INSERT INTO directory_entry(path, name, flags, last_updated_at, creator_id, anilist_id, tmdb_id, english_name, japanese_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING *`
	row, err := database.Get(ctx, s.db, EntryTable, query,
		p.Path, p.Name, int64(p.Flags), time.Now().Unix(),
		intArg(p.CreatorID), intArg(p.AnilistID), textArg(p.TmdbID),
		textArg(p.EnglishName), textArg(p.JapaneseName))
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	return row, nil
}

// GetEntry returns the entry with the given id, or (nil, nil) if not found.
func (s *Store) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	return database.GetByID(ctx, s.db, EntryTable, id)
}

// GetEntryByPath returns the entry at the given filesystem path, or
// (nil, nil) if not found.
func (s *Store) GetEntryByPath(ctx context.Context, path string) (*Entry, error) {
	return database.Get(ctx, s.db, EntryTable, "SELECT * FROM directory_entry WHERE path = ?", path)
}

// ListEntriesParams are the optional filters for ListEntries. Nil fields are
// not applied. Paginated by id ASC; AfterID is the cursor from the last item
// on the previous page.
type ListEntriesParams struct {
	AnilistID *int64
	TmdbID    *string
	Name      *string // substring match against any of the three names
	AfterID   *int64
	Limit     int
}

// ListEntries returns a page of entries matching the given filters, ordered
// by id ASC. An empty page is not an error.
func (s *Store) ListEntries(ctx context.Context, p ListEntriesParams) ([]Entry, error) {
	sb := sq.Select("*").
		From("directory_entry").
		OrderBy("id ASC")

	if p.AnilistID != nil {
		sb = sb.Where(sq.Eq{"anilist_id": *p.AnilistID})
	}
	if p.TmdbID != nil {
		sb = sb.Where(sq.Eq{"tmdb_id": *p.TmdbID})
	}
	if p.Name != nil {
		pattern := "%" + *p.Name + "%"
		sb = sb.Where(sq.Or{
			sq.Like{"name": pattern},
			sq.Like{"english_name": pattern},
			sq.Like{"japanese_name": pattern},
		})
	}
	if p.AfterID != nil {
		sb = sb.Where(sq.Gt{"id": *p.AfterID})
	}
	if p.Limit > 0 {
		sb = sb.Limit(uint64(p.Limit))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list entries: build query: %w", err)
	}
	rows, err := database.All(ctx, s.db, EntryTable, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return rows, nil
}

// UpdateEntryParams holds the mutable fields for updating an entry. Nil
// fields are left untouched; Set* flags distinguish "set to NULL" from
// "leave alone" for the nullable columns.
type UpdateEntryParams struct {
	Name         *string
	Flags        *EntryFlags
	AnilistID    *int64
	TmdbID       *string
	Notes        *string
	SetNotes     bool
	EnglishName  *string
	JapaneseName *string
}

// UpdateEntry applies the given changes to an entry. The UPDATE statement is
// built through the table's column whitelist. Returns the updated entry, or
// (nil, nil) if it does not exist.
func (s *Store) UpdateEntry(ctx context.Context, id int64, p UpdateEntryParams) (*Entry, error) {
	var (
		columns []string
		args    []any
	)
	add := func(column string, value any) {
		columns = append(columns, column)
		args = append(args, value)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Flags != nil {
		add("flags", int64(*p.Flags))
	}
	if p.AnilistID != nil {
		add("anilist_id", *p.AnilistID)
	}
	if p.TmdbID != nil {
		add("tmdb_id", *p.TmdbID)
	}
	if p.SetNotes {
		add("notes", textArg(p.Notes))
	}
	if p.EnglishName != nil {
		add("english_name", *p.EnglishName)
	}
	if p.JapaneseName != nil {
		add("japanese_name", *p.JapaneseName)
	}
	if len(columns) == 0 {
		return s.GetEntry(ctx, id)
	}

	query := EntryTable.UpdateQuery(columns...)
	args = append(args, id)
	if _, err := s.db.Execute(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return s.GetEntry(ctx, id)
}

// TouchEntry bumps the entry's last_updated_at to t. Called whenever a new
// file lands in the entry's directory.
func (s *Store) TouchEntry(ctx context.Context, id int64, t time.Time) error {
	query := EntryTable.UpdateQuery("last_updated_at")
	if _, err := s.db.Execute(ctx, query, t.Unix(), id); err != nil {
		return fmt.Errorf("touch entry: %w", err)
	}
	return nil
}

// MoveEntry rewrites the entry's filesystem path.
func (s *Store) MoveEntry(ctx context.Context, id int64, path string) error {
	query := EntryTable.UpdateQuery("path")
	if _, err := s.db.Execute(ctx, query, path, id); err != nil {
		return fmt.Errorf("move entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry. Reports whether a row was deleted.
func (s *Store) DeleteEntry(ctx context.Context, id int64) (bool, error) {
	n, err := s.db.Execute(ctx, "DELETE FROM directory_entry WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return n > 0, nil
}

// CountEntries returns the total number of entries.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	count, err := database.GetRow(ctx, s.db, "SELECT COUNT(*) FROM directory_entry", nil,
		func(stmt *sqlite.Stmt) (int64, error) {
			return stmt.ColumnInt64(0), nil
		})
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}
