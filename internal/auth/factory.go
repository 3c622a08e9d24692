package auth

import (
	"fmt"
	"os"
	"strings"
)

const (
	AuthModeMemory = "memory"
	AuthModeSQLite = "sqlite"
)

func authModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	switch raw {
	case "", AuthModeSQLite, "local":
		return AuthModeSQLite
	case AuthModeMemory, "mem":
		return AuthModeMemory
	default:
		return raw
	}
}

// NewServiceFromEnv selects a backend from AUTH_MODE: memory or
// sqlite (default, path via AUTH_SQLITE_PATH).
func NewServiceFromEnv() (Service, string, error) {
	mode := authModeFromEnv()

	switch mode {
	case AuthModeSQLite:
		m, err := NewSQLiteManagerFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return m, mode, nil
	case AuthModeMemory:
		return NewManager(), mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid AUTH_MODE %q (supported: %s, %s)", mode, AuthModeMemory, AuthModeSQLite)
	}
}
