// Package sqlite persists the in-memory procurement state to SQLite. Each
// snapshot bucket is one JSON row in the state table; SAL entries are also
// mirrored row by row into an append-only sal_ledger table so the settlement
// history can be audited with plain SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"procurecore/internal/infra/persistence/memory"
	"procurecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS state (
	bucket  TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS sal_ledger (
	entry_id          TEXT PRIMARY KEY,
	contract_line_id  TEXT NOT NULL,
	bundle_id         TEXT NOT NULL,
	kind              TEXT NOT NULL,
	amount            TEXT NOT NULL,
	corrects_entry_id TEXT NOT NULL DEFAULT '',
	recorded_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sal_ledger_line ON sal_ledger(contract_line_id);
`

// Store writes the buckets a transaction touched after it commits in memory.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string

	digests  memory.BucketDigests
	mirrored map[string]struct{}
}

// NewStore opens (or creates) the database at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "procurecore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, mirrored: map[string]struct{}{}}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		if err := s.ImportState(snapshot); err != nil {
			return err
		}
	}
	if err := s.loadMirrored(); err != nil {
		return err
	}
	_, digests, err := s.ExportState().Changed(nil)
	if err != nil {
		return err
	}
	s.digests = digests
	return nil
}

func (s *Store) loadMirrored() error {
	rows, err := s.db.Query(`SELECT entry_id FROM sal_ledger`)
	if err != nil {
		return fmt.Errorf("select sal_ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan sal_ledger: %w", err)
		}
		s.mirrored[id] = struct{}{}
	}
	return rows.Err()
}

// persist writes changed buckets and any SAL entries not yet mirrored in a
// single database transaction. Tracking state only advances after commit.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	changed, digests, err := snapshot.Changed(s.digests)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, ok := changed[bucket]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	var fresh []string
	if _, ok := changed["sal_entries"]; ok {
		for _, e := range snapshot.SALEntries {
			if _, done := s.mirrored[e.ID]; done {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sal_ledger(entry_id,contract_line_id,bundle_id,kind,amount,corrects_entry_id,recorded_at) VALUES(?,?,?,?,?,?,?) ON CONFLICT(entry_id) DO NOTHING`,
				e.ID, e.ContractLineID, e.BundleID, string(e.Kind), e.Amount.String(), e.CorrectsEntryID, e.RecordedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("mirror sal entry %s: %w", e.ID, err)
			}
			fresh = append(fresh, e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.digests = digests
	for _, id := range fresh {
		s.mirrored[id] = struct{}{}
	}
	return nil
}

// RunInTransaction applies fn in memory and then writes the result to SQLite.
// When the write fails the in-memory state is rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(context.WithoutCancel(ctx), s.ExportState()); pErr != nil {
		if rErr := s.ImportState(previous); rErr != nil {
			return res, errors.Join(pErr, rErr)
		}
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
