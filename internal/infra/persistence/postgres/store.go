// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Buckets are kept as JSONB rows and SAL entries are
// mirrored into an append-only sal_ledger table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"procurecore/internal/infra/persistence/memory"
	"procurecore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/procurecore?sslmode=disable"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sal_ledger (
		entry_id TEXT PRIMARY KEY,
		contract_line_id TEXT NOT NULL,
		bundle_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		corrects_entry_id TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sal_ledger_line ON sal_ledger(contract_line_id)`,
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex

	digests  memory.BucketDigests
	mirrored map[string]struct{}
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the schema exists and hydrates the in-memory store from it.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	if err := mem.ImportState(snapshot); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("hydrate state: %w", err)
	}
	mirrored, err := loadMirrored(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	_, digests, err := mem.ExportState().Changed(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: mem, db: db, digests: digests, mirrored: mirrored}, nil
}

// RunInTransaction applies fn in memory, then writes the touched buckets to
// Postgres. A failed write restores the previous in-memory state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(context.WithoutCancel(ctx)); pErr != nil {
		if rErr := s.ImportState(previous); rErr != nil {
			return res, errors.Join(pErr, rErr)
		}
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func loadMirrored(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT entry_id FROM sal_ledger`)
	if err != nil {
		return nil, fmt.Errorf("select sal_ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sal_ledger: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sal_ledger: %w", err)
	}
	return ids, nil
}

func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	changed, digests, err := snapshot.Changed(s.digests)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, ok := changed[bucket]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
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
				`INSERT INTO sal_ledger(entry_id,contract_line_id,bundle_id,kind,amount,corrects_entry_id,recorded_at) VALUES($1,$2,$3,$4,$5,$6,$7) ON CONFLICT(entry_id) DO NOTHING`,
				e.ID, e.ContractLineID, e.BundleID, string(e.Kind), e.Amount.String(), e.CorrectsEntryID, e.RecordedAt.UTC(),
			); err != nil {
				return fmt.Errorf("mirror sal entry %s: %w", e.ID, err)
			}
			fresh = append(fresh, e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.digests = digests
	for _, id := range fresh {
		s.mirrored[id] = struct{}{}
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
