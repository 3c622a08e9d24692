package auth

import (
	"errors"
	"testing"
	"time"
)

func testServices(t *testing.T) map[string]Service {
	t.Helper()
	sqliteManager, err := NewSQLiteManager(":memory:", time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteManager err: %v", err)
	}
	services := map[string]Service{
		"memory": NewManager(),
		"sqlite": sqliteManager,
	}
	t.Cleanup(func() {
		for _, s := range services {
			_ = s.Close()
		}
	})
	return services
}

func TestRegisterLoginResolve(t *testing.T) {
	for name, s := range testServices(t) {
		t.Run(name, func(t *testing.T) {
			accountID, token, err := s.Register("Hanako", "secret1")
			if err != nil {
				t.Fatalf("Register err: %v", err)
			}
			if accountID == 0 || token == "" {
				t.Fatalf("empty registration result")
			}

			gotID, nickname, ok := s.ResolveSession(token)
			if !ok || gotID != accountID {
				t.Fatalf("session does not resolve to the account")
			}
			if nickname == "" {
				t.Fatalf("resolved session has no nickname")
			}

			// Nicknames are case-insensitively unique.
			if _, _, err := s.Register("hanako", "another1"); !errors.Is(err, ErrNicknameTaken) {
				t.Fatalf("expected ErrNicknameTaken, got %v", err)
			}

			loginID, loginToken, err := s.Login("hanako", "secret1")
			if err != nil {
				t.Fatalf("Login err: %v", err)
			}
			if loginID != accountID {
				t.Fatalf("login resolved a different account")
			}
			if loginToken == token {
				t.Fatalf("login must issue a fresh token")
			}

			if _, _, err := s.Login("hanako", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestValidationRules(t *testing.T) {
	for name, s := range testServices(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := s.Register("x", "secret1"); !errors.Is(err, ErrInvalidNickname) {
				t.Fatalf("1-char nickname accepted: %v", err)
			}
			if _, _, err := s.Register("this nickname is far too long ok", "secret1"); !errors.Is(err, ErrInvalidNickname) {
				t.Fatalf("21+ char nickname accepted: %v", err)
			}
			if _, _, err := s.Register("valid-name", "short"); !errors.Is(err, ErrInvalidPassword) {
				t.Fatalf("5-char password accepted: %v", err)
			}
		})
	}
}

func TestGuestAccounts(t *testing.T) {
	for name, s := range testServices(t) {
		t.Run(name, func(t *testing.T) {
			id1, token1, err := s.Guest()
			if err != nil {
				t.Fatalf("Guest err: %v", err)
			}
			id2, token2, err := s.Guest()
			if err != nil {
				t.Fatalf("Guest err: %v", err)
			}
			if id1 == id2 || token1 == token2 {
				t.Fatalf("guest accounts must be distinct")
			}
			if _, _, ok := s.ResolveSession(token1); !ok {
				t.Fatalf("guest session does not resolve")
			}
		})
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	for name, s := range testServices(t) {
		t.Run(name, func(t *testing.T) {
			_, token, err := s.Guest()
			if err != nil {
				t.Fatalf("Guest err: %v", err)
			}
			s.Logout(token)
			if _, _, ok := s.ResolveSession(token); ok {
				t.Fatalf("revoked session still resolves")
			}
			if _, _, ok := s.ResolveSession("no-such-token"); ok {
				t.Fatalf("unknown token resolves")
			}
		})
	}
}
