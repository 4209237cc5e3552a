// Package journal archives detected conflicts to a SQLite database so they
// outlive the process. The journal is write-only from the registry's point
// of view: nothing in it is ever fed back into ownership decisions.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/registry"
)

//go:embed migrations/*.sql
var migrations embed.FS

const conflictColumns = `id, kind, resource_id, existing_owner, new_owner, detail, detected_at`

const insertConflict = `INSERT OR IGNORE INTO conflicts (` + conflictColumns + `, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Query filters List. Zero values match everything; Owner matches either
// side of the conflict.
type Query struct {
	Kind  *registry.Kind
	Owner string
	Limit int
}

// Journal is a SQLite-backed conflict archive. Registered as a
// registry.Observer it queues every conflict without blocking registration
// and a single writer goroutine stores them in batches.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time

	mu      sync.Mutex
	pending []registry.Conflict
	closed  bool
	wake    chan struct{} // closed by Close
	done    chan struct{}
}

// Open opens (creating if needed) the journal at path and migrates its
// schema to the latest version.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal %s: %w", path, err)
	}

	j := &Journal{
		db:   db,
		path: path,
		now:  time.Now,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go j.run()

	log.Debug(log.CatJournal, "Journal opened", "path", path)
	return j, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Path returns the database file location.
func (j *Journal) Path() string {
	return j.path
}

// Append stores c. Appending a conflict id that is already present is a
// no-op.
func (j *Journal) Append(ctx context.Context, c registry.Conflict) error {
	_, err := j.db.ExecContext(ctx, insertConflict, j.row(c)...)
	if err != nil {
		return fmt.Errorf("append conflict %s: %w", c.ID, err)
	}
	return nil
}

// AppendAll stores cs in one transaction.
func (j *Journal) AppendAll(ctx context.Context, cs []registry.Conflict) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertConflict)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx, j.row(c)...); err != nil {
			return fmt.Errorf("append conflict %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (j *Journal) row(c registry.Conflict) []any {
	return []any{
		c.ID, c.Kind.String(), c.ResourceID, c.ExistingOwner, c.NewOwner, c.Detail,
		c.DetectedAt.UnixNano(), j.now().UnixNano(),
	}
}

// List returns conflicts matching q, newest first.
func (j *Journal) List(ctx context.Context, q Query) ([]registry.Conflict, error) {
	var (
		where []string
		args  []any
	)
	if q.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, q.Kind.String())
	}
	if q.Owner != "" {
		where = append(where, "(existing_owner = ? OR new_owner = ?)")
		args = append(args, q.Owner, q.Owner)
	}

	query := `SELECT ` + conflictColumns + ` FROM conflicts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY detected_at DESC, rowid DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conflicts := []registry.Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

func scanConflict(scanner interface{ Scan(...any) error }) (registry.Conflict, error) {
	var (
		c          registry.Conflict
		kind       string
		detectedAt int64
	)
	if err := scanner.Scan(&c.ID, &kind, &c.ResourceID, &c.ExistingOwner, &c.NewOwner, &c.Detail, &detectedAt); err != nil {
		return registry.Conflict{}, fmt.Errorf("scan conflict: %w", err)
	}
	k, err := registry.ParseKind(kind)
	if err != nil {
		return registry.Conflict{}, fmt.Errorf("conflict %s: %w", c.ID, err)
	}
	c.Kind = k
	c.DetectedAt = time.Unix(0, detectedAt).UTC()
	return c, nil
}

// Count returns how many conflicts the journal holds.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflicts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conflicts: %w", err)
	}
	return n, nil
}

// Observe queues conflict events for the writer. It never blocks on the
// database. Conflicts observed after Close are dropped with a warning.
func (j *Journal) Observe(e registry.Event) {
	if e.Type != registry.EventConflict || e.Conflict == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		log.Warn(log.CatJournal, "Conflict observed after close, not archived", "id", e.Conflict.ID)
		return
	}
	j.pending = append(j.pending, *e.Conflict)
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Pending returns how many observed conflicts are not yet written.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

func (j *Journal) run() {
	defer close(j.done)
	ctx := context.Background()
	for {
		_, open := <-j.wake
		j.flush(ctx)
		if !open {
			return
		}
	}
}

func (j *Journal) flush(ctx context.Context) {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := j.AppendAll(ctx, batch); err != nil {
		log.ErrorErr(log.CatJournal, "Failed to archive conflicts", err, "count", len(batch))
		return
	}
	log.Debug(log.CatJournal, "Conflicts archived", "count", len(batch))
}

// Close writes every queued conflict, then closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.wake)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}
