// Package auth manages nickname accounts and opaque session tokens
// for game participants.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32

	nicknameMinLen = 2
	nicknameMaxLen = 20
)

var (
	ErrInvalidNickname    = errors.New("nickname must be 2-20 characters")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
	ErrNicknameTaken      = errors.New("nickname already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service is the account/session contract consumed by the gateway and
// HTTP handlers.
type Service interface {
	Register(nickname, password string) (accountID uint64, sessionToken string, err error)
	Login(nickname, password string) (accountID uint64, sessionToken string, err error)
	// Guest creates an unregistered account with a throwaway nickname
	// so players can join a room without signing up.
	Guest() (accountID uint64, sessionToken string, err error)
	ResolveSession(token string) (accountID uint64, nickname string, ok bool)
	Logout(token string)
	Close() error
}

func normalizeNickname(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

func validateNickname(nickname string) error {
	trimmed := strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(trimmed)
	if n < nicknameMinLen || n > nicknameMaxLen {
		return ErrInvalidNickname
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return ErrInvalidNickname
		}
	}
	return nil
}

func validatePassword(password string) error {
	// bcrypt truncates beyond 72 bytes.
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func guestNickname() string {
	return "guest_" + mustToken()[:12]
}
