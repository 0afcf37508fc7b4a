package core

import (
	"fmt"
	"os"

	"procurecore/internal/infra/persistence/memory"
	"procurecore/internal/infra/persistence/postgres"
	"procurecore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by OpenPersistentStore.
const (
	EnvStorageDriver = "PROCURECORE_STORAGE_DRIVER"
	EnvSQLitePath    = "PROCURECORE_SQLITE_PATH"
	EnvPostgresDSN   = "PROCURECORE_POSTGRES_DSN"
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	PROCURECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	PROCURECORE_SQLITE_PATH: path to sqlite file (default ./procurecore.db)
//	PROCURECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := StorageDriver(os.Getenv(EnvStorageDriver))
	if driver == "" {
		driver = StorageSQLite
	}
	target := ""
	switch driver {
	case StorageSQLite:
		target = os.Getenv(EnvSQLitePath)
	case StoragePostgres:
		target = os.Getenv(EnvPostgresDSN)
	}
	return OpenStorage(driver, target, engine)
}

// OpenStorage opens the named driver. target is the sqlite path or postgres
// DSN and is ignored for memory.
func OpenStorage(driver StorageDriver, target string, engine *RulesEngine) (PersistentStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(target, engine)
	case StoragePostgres:
		return postgres.NewStore(target, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
