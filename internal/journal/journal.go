// Package journal records attribute change notifications in a SQLite
// database and exports them as JSONL.
//
// A Journal is a facets.Listener. Attach it to hosts with OnAnyChange, or
// to every host of a class through a class hook, and each delivered
// notification becomes one row. Rows are grouped by run; every Open starts
// a new run.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

// FileName is the database file created inside the journal directory.
const FileName = "journal.db"

var (
	ErrDirEmpty = errors.New("journal directory is empty")
	ErrClosed   = errors.New("journal is closed")
)

// Entry is one recorded notification. Values are JSON text.
type Entry struct {
	EntryID    string `db:"entry_id" json:"entry_id"`
	RunID      string `db:"run_id" json:"run_id"`
	Seq        int64  `db:"seq" json:"seq"`
	HostID     string `db:"host_id" json:"host_id"`
	Class      string `db:"class" json:"class"`
	Name       string `db:"name" json:"name"`
	Category   string `db:"category" json:"category"`
	OldValue   string `db:"old_value" json:"old_value"`
	NewValue   string `db:"new_value" json:"new_value"`
	Record     string `db:"record" json:"record"`
	RecordedAt string `db:"recorded_at" json:"recorded_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	RunID  string
	HostID string
	Name   string
	Limit  uint
}

// Option configures Open.
type Option func(*Journal)

// WithLogger sets the logger used for append failures reported by Notify.
func WithLogger(log zerolog.Logger) Option {
	return func(j *Journal) { j.log = log }
}

// WithClock replaces the time source for recorded_at.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Journal is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	path    string
	runID   string
	seq     int64
	closed  bool
	log     zerolog.Logger
	now     func() time.Time
}

// Open creates dir if needed, opens or creates the journal database in it
// and starts a new run.
func Open(dir string, opts ...Option) (*Journal, error) {
	if dir == "" {
		return nil, ErrDirEmpty
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// SQLite serializes writers; one connection avoids busy errors.
	db.SetMaxOpenConns(1)

	run, err := uuid.NewV7()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("generating run id: %w", err)
	}

	j := &Journal{
		db:      db,
		dialect: goqu.Dialect("sqlite3"),
		path:    path,
		runID:   run.String(),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	if _, err := j.db.Exec(createEntries); err != nil {
		return fmt.Errorf("creating entries table: %w", err)
	}
	if _, err := j.db.Exec(createEntriesIndexes); err != nil {
		return fmt.Errorf("creating entries indexes: %w", err)
	}

	query, args, err := j.dialect.From(tableEntries).
		Select(goqu.COALESCE(goqu.MAX(colSeq), 0)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building sequence query: %w", err)
	}
	if err := j.db.Get(&j.seq, query, args...); err != nil {
		return fmt.Errorf("reading sequence: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// RunID identifies the entries appended through this Journal.
func (j *Journal) RunID() string { return j.runID }

// Notify appends n. Append failures are logged and returned, so they abort
// the broadcast that delivered n.
func (j *Journal) Notify(n facets.Notification) error {
	if _, err := j.Append(context.Background(), n); err != nil {
		j.log.Error().Err(err).Str("name", n.Name).Msg("journal append failed")
		return err
	}
	return nil
}

// Append records n and returns the stored entry.
func (j *Journal) Append(ctx context.Context, n facets.Notification) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return Entry{}, ErrClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("generating entry id: %w", err)
	}
	e := Entry{
		EntryID:    id.String(),
		RunID:      j.runID,
		Seq:        j.seq + 1,
		Name:       n.Name,
		Category:   category(n.Record),
		OldValue:   encodeValue(n.Old),
		NewValue:   encodeValue(n.New),
		Record:     encodeRecord(n.Record),
		RecordedAt: j.now().UTC().Format(time.RFC3339Nano),
	}
	if n.Host != nil {
		e.HostID = n.Host.ID().String()
		e.Class = n.Host.Class().Name()
	}

	query, args, err := j.dialect.Insert(tableEntries).Rows(e).ToSQL()
	if err != nil {
		return Entry{}, fmt.Errorf("building insert: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	j.seq = e.Seq
	return e, nil
}

// List returns entries matching f in sequence order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}

	ds := j.dialect.From(tableEntries).Order(goqu.C(colSeq).Asc())
	if f.RunID != "" {
		ds = ds.Where(goqu.C(colRunID).Eq(f.RunID))
	}
	if f.HostID != "" {
		ds = ds.Where(goqu.C(colHostID).Eq(f.HostID))
	}
	if f.Name != "" {
		ds = ds.Where(goqu.C(colName).Eq(f.Name))
	}
	if f.Limit > 0 {
		ds = ds.Limit(f.Limit)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	var entries []Entry
	if err := j.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// Close releases the database. Further calls fail with ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func category(r facets.Record) string {
	if r == nil {
		return facets.CategoryItem.String()
	}
	return r.Category().String()
}
