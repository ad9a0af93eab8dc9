// Package session holds the authenticated session of the CLI: one opaque
// token, mutated only by Login and Logout and read everywhere else. The
// token is persisted between runs by a Persister.
package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// EnvToken seeds the session for one run without touching the session file.
const EnvToken = "MEDISCAN_TOKEN"

var (
	// ErrEmptyToken is returned when logging in with a blank token.
	ErrEmptyToken = errors.New("session: empty token")
	// ErrUnauthenticated is returned by Token when no token is held.
	ErrUnauthenticated = errors.New("session: not logged in")
)

// State is the authentication state of a Store.
type State int

// Session states.
const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Source records where the current token came from.
type Source string

// Token sources.
const (
	SourceNone  Source = ""
	SourceFile  Source = "session file"
	SourceEnv   Source = "environment"
	SourceLogin Source = "login"
)

// Store is the session context. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	source    Source
	persister Persister
	logger    *slog.Logger
}

var _ oauth2.TokenSource = (*Store)(nil)

// NewStore returns an empty store backed by p. A nil persister keeps the
// session in memory only.
func NewStore(p Persister) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Store{persister: p, logger: slog.Default()}
}

// Open creates a store and restores the persisted token. A token in
// MEDISCAN_TOKEN takes precedence and is not persisted.
func Open(p Persister) (*Store, error) {
	s := NewStore(p)
	tok, err := s.persister.Load()
	if err != nil {
		return s, fmt.Errorf("session: restore: %w", err)
	}
	if tok != nil && strings.TrimSpace(tok.AccessToken) != "" {
		s.token = tok
		s.source = SourceFile
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		s.token = newToken(v)
		s.source = SourceEnv
	}
	if s.token != nil {
		s.logger.Debug("session restored", "source", s.source, "token", Redact(s.token.AccessToken))
	}
	return s, nil
}

// SetLogger replaces the logger.
func (s *Store) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// Login stores token and persists it. The in-memory session is updated even
// when persisting fails; the error is still returned.
func (s *Store) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	tok := newToken(token)

	s.mu.Lock()
	s.token = tok
	s.source = SourceLogin
	logger := s.logger
	s.mu.Unlock()

	logger.Info("logged in", "token", Redact(token))
	if err := s.persister.Save(tok); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}

// Logout clears the token from memory and from the persister.
func (s *Store) Logout() error {
	s.mu.Lock()
	prev := s.source
	s.token = nil
	s.source = SourceNone
	logger := s.logger
	s.mu.Unlock()

	if prev == SourceEnv {
		logger.Warn("token came from the environment and will be used again on the next run", "env", EnvToken)
	}
	if err := s.persister.Clear(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	logger.Info("logged out")
	return nil
}

// AccessToken returns the token, or "" when unauthenticated.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// Authenticated reports whether a token is held.
func (s *Store) Authenticated() bool {
	return s.AccessToken() != ""
}

// State returns the current state.
func (s *Store) State() State {
	if s.Authenticated() {
		return Authenticated
	}
	return Unauthenticated
}

// Source returns where the current token came from.
func (s *Store) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Expiry returns the token's expiry as claimed by the token itself, or the
// zero time when unknown. It is informational; the server decides validity.
func (s *Store) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return time.Time{}
	}
	return s.token.Expiry
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, ErrUnauthenticated
	}
	cp := *s.token
	return &cp, nil
}

func newToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      jwtExpiry(access),
	}
}

// jwtExpiry reads the "exp" claim of a JWT without verifying it. Opaque
// tokens yield the zero time.
func jwtExpiry(token string) time.Time {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}
	}
	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == "" {
		return time.Time{}
	}
	secs, err := claims.Exp.Float64()
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

// Redact safely redacts a token for logging purposes.
func Redact(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
