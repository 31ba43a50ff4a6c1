package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
)

// timeFormat is the column encoding for timestamps. RFC3339 in UTC keeps
// lexicographic order equal to chronological order.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// querier is the statement surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the relational entity store backed by SQLite.
type Store struct {
	db     querier
	root   *sql.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the database at path and applies the
// schema. The returned handle is long-lived and safe for concurrent use.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("entity store opened", zap.String("path", path))

	return &Store{db: db, root: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.root.Close()
}

// WithTx runs fn against a transaction-scoped view of the store. Every
// write fn stages commits when fn returns nil and rolls back otherwise.
// The scoped store must not open further transactions.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.root == nil {
		return fmt.Errorf("transaction already open")
	}

	tx, err := s.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: tx, logger: s.logger}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// wrapConstraint maps SQLite uniqueness violations to ErrDuplicate so
// callers can re-read after losing a find-or-create race. Other
// constraint classes keep their own error text.
func wrapConstraint(err error, context string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%s: %w", context, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// encodeTime formats a timestamp for storage.
func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// encodeTimePtr formats an optional timestamp; nil becomes the empty string.
func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

// decodeTime parses a stored timestamp.
func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Tolerate second-precision values written by older builds.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// decodeTimePtr parses an optional stored timestamp.
func decodeTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}

// encodeList JSON-encodes a string list column; empty lists store NULL.
func encodeList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(data)
}

// decodeList decodes a JSON list column.
func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s.String), &items); err != nil {
		return nil
	}
	return items
}

// nullable converts an optional string column value.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
