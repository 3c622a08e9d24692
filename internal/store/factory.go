package store

import (
	"fmt"
	"os"
	"strings"
)

const (
	StoreModeMemory = "memory"
	StoreModeSQLite = "sqlite"
	StoreModeDB     = "db"

	defaultSQLitePath = "data/fukuwarai.db"
)

func storeModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_MODE")))
	switch raw {
	case "", StoreModeSQLite, "local":
		return StoreModeSQLite
	case StoreModeDB, "postgres", "postgresql":
		return StoreModeDB
	case StoreModeMemory, "mem":
		return StoreModeMemory
	default:
		return raw
	}
}

func sqlitePathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("STORE_SQLITE_PATH")); v != "" {
		return v
	}
	return defaultSQLitePath
}

// NewFromEnv selects a backend from STORE_MODE: memory, sqlite
// (default) or db (Postgres via STORE_DATABASE_DSN / DATABASE_URL).
func NewFromEnv() (Store, string, error) {
	mode := storeModeFromEnv()

	switch mode {
	case StoreModeMemory:
		return NewMemoryStore(), mode, nil
	case StoreModeSQLite:
		s, err := NewSQLiteStore(sqlitePathFromEnv())
		if err != nil {
			return nil, mode, err
		}
		return s, mode, nil
	case StoreModeDB:
		s, err := NewPostgresStoreFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return s, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid STORE_MODE %q (supported: %s, %s, %s)",
			mode, StoreModeMemory, StoreModeSQLite, StoreModeDB)
	}
}
