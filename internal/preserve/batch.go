package preserve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/database"
)

// ErrSessionClosed is returned when a committed or rolled back session is used.
var ErrSessionClosed = errors.New("preserve session already closed")

// Store opens write transactions against the shared database.
type Store struct {
	db *database.DB
}

// NewStore creates a Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Begin opens a session: one transaction that several batches can share.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Session{tx: tx, dialect: s.db.Dialect}, nil
}

// BeginBatch opens a batch with its own transaction. Flush commits it.
func (s *Store) BeginBatch(ctx context.Context, table Table, defaults map[string]any) (*Batch, error) {
	sess, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	b, err := sess.Batch(ctx, table, defaults)
	if err != nil {
		_ = sess.Rollback()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// Session is a write transaction.
type Session struct {
	tx      *sql.Tx
	dialect database.Dialect
	closed  bool
}

// Batch opens a batch for table inside the session. For replace tables the
// rows in scope are deleted before Batch returns.
func (s *Session) Batch(ctx context.Context, table Table, defaults map[string]any) (*Batch, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	b := &Batch{sess: s, table: table, defaults: defaults}
	if !table.Upsert {
		if err := b.clear(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Commit commits the session.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the session. It is a no-op once the session is closed.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// cell is one column value of a buffered row.
type cell struct {
	column string
	value  any
}

// Batch buffers rows for one table.
type Batch struct {
	sess     *Session
	table    Table
	defaults map[string]any
	rows     [][]cell
	owned    bool
	written  int
}

// Table returns the batch's target table.
func (b *Batch) Table() Table {
	return b.table
}

// Len returns the number of buffered rows.
func (b *Batch) Len() int {
	return len(b.rows)
}

// Written returns the number of rows written by previous flushes.
func (b *Batch) Written() int {
	return b.written
}

// AddRow coerces row and buffers it. A field missing from row takes the
// runtime default, then the column default; otherwise it is left out of the
// written row.
func (b *Batch) AddRow(row map[string]string) error {
	cells := make([]cell, 0, len(b.table.Columns))
	for _, col := range b.table.Columns {
		var (
			value any
			err   error
		)
		if raw, ok := row[col.field()]; ok {
			value, err = Coerce(col.Type, raw)
			if err != nil {
				return fmt.Errorf("table %s column %s: %w", b.table.Name, col.Name, err)
			}
		} else if d, ok := b.defaults[col.Name]; ok {
			value, err = coerceDefault(col.Type, d)
			if err != nil {
				return fmt.Errorf("table %s column %s default: %w", b.table.Name, col.Name, err)
			}
		} else if col.Default != nil {
			value, err = coerceDefault(col.Type, col.Default)
			if err != nil {
				return fmt.Errorf("table %s column %s default: %w", b.table.Name, col.Name, err)
			}
		} else {
			continue
		}
		cells = append(cells, cell{column: col.Name, value: value})
	}

	for _, k := range b.table.Keys {
		if !slices.ContainsFunc(cells, func(c cell) bool { return c.column == k && c.value != nil }) {
			return fmt.Errorf("table %s: required field %s is empty", b.table.Name, k)
		}
	}

	b.rows = append(b.rows, cells)
	return nil
}

// Flush writes the buffered rows. An owned batch commits; on any failure the
// whole transaction is rolled back and nothing from this flush is visible.
func (b *Batch) Flush(ctx context.Context) error {
	if b.sess.closed {
		return ErrSessionClosed
	}

	for i, cells := range b.rows {
		query, args, err := b.upsert(cells)
		if err != nil {
			b.abort()
			return fmt.Errorf("table %s row %d: build upsert: %w", b.table.Name, i, err)
		}
		if _, err := b.sess.tx.ExecContext(ctx, query, args...); err != nil {
			b.abort()
			return fmt.Errorf("table %s row %d: %w", b.table.Name, i, err)
		}
	}

	n := len(b.rows)
	b.rows = b.rows[:0]
	if b.owned {
		if err := b.sess.Commit(); err != nil {
			return err
		}
	}
	b.written += n
	return nil
}

// Rollback discards the batch. For an owned batch the transaction is rolled
// back; a shared session is left to its owner.
func (b *Batch) Rollback() error {
	b.rows = nil
	if b.owned {
		return b.sess.Rollback()
	}
	return nil
}

func (b *Batch) abort() {
	b.rows = nil
	_ = b.sess.Rollback()
}

func (b *Batch) upsert(cells []cell) (string, []any, error) {
	cols := make([]string, len(cells))
	vals := make([]any, len(cells))
	var updates []string
	for i, c := range cells {
		cols[i] = database.QuoteIdent(c.column)
		vals[i] = c.value
		if !slices.Contains(b.table.Keys, c.column) {
			q := database.QuoteIdent(c.column)
			updates = append(updates, q+" = EXCLUDED."+q)
		}
	}

	ins := b.sess.dialect.Builder().
		Insert(database.QuoteIdent(b.table.Name)).
		Columns(cols...).
		Values(vals...)

	if len(b.table.Keys) > 0 {
		conflict := "ON CONFLICT (" + strings.Join(database.QuoteIdents(b.table.Keys), ", ") + ")"
		if len(updates) == 0 {
			ins = ins.Suffix(conflict + " DO NOTHING")
		} else {
			ins = ins.Suffix(conflict + " DO UPDATE SET " + strings.Join(updates, ", "))
		}
	}
	return ins.ToSql()
}

// clear deletes the rows a replace batch is about to repopulate.
func (b *Batch) clear(ctx context.Context) error {
	del := b.sess.dialect.Builder().Delete(database.QuoteIdent(b.table.Name))

	scope := sq.Eq{}
	for _, col := range b.table.ReplaceScope {
		v, ok := b.defaults[col]
		if !ok {
			return fmt.Errorf("table %s: replace scope column %s has no value", b.table.Name, col)
		}
		scope[database.QuoteIdent(col)] = v
	}
	if len(scope) > 0 {
		del = del.Where(scope)
	}

	query, args, err := del.ToSql()
	if err != nil {
		return fmt.Errorf("table %s: build delete: %w", b.table.Name, err)
	}
	if _, err := b.sess.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("table %s: clear: %w", b.table.Name, err)
	}
	return nil
}

func coerceDefault(typ ColumnType, v any) (any, error) {
	if s, ok := v.(string); ok {
		return Coerce(typ, s)
	}
	return v, nil
}
