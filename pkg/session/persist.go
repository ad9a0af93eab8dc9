package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// Persister stores the session token between runs.
type Persister interface {
	// Load returns the stored token, or nil when there is none.
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
	Clear() error
}

// record is the on-disk form of the session.
type record struct {
	AccessToken string    `yaml:"access_token"`
	TokenType   string    `yaml:"token_type,omitempty"`
	Expiry      time.Time `yaml:"expiry,omitempty"`
	SavedAt     time.Time `yaml:"saved_at"`
}

// FilePersister keeps the token in a YAML file readable only by the user.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a persister for path, or DefaultPath() when empty.
func NewFilePersister(path string) *FilePersister {
	if path == "" {
		path = DefaultPath()
	}
	return &FilePersister{Path: path}
}

// Load reads the session file. A missing file is not an error.
func (p *FilePersister) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(filepath.Clean(p.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read failed: %w", err)
	}
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}
	if strings.TrimSpace(rec.AccessToken) == "" {
		return nil, nil
	}
	return &oauth2.Token{AccessToken: rec.AccessToken, TokenType: rec.TokenType, Expiry: rec.Expiry}, nil
}

// Save writes the session file atomically with mode 0600.
func (p *FilePersister) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}

	out, err := yaml.Marshal(record{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
		SavedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session.tmp-*")
	if err != nil {
		return fmt.Errorf("temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(out); err != nil {
		return fmt.Errorf("temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return fmt.Errorf("atomic rename failed: %w", err)
	}
	return nil
}

// Clear removes the session file. A missing file is not an error.
func (p *FilePersister) Clear() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove failed: %w", err)
	}
	return nil
}

// DefaultPath returns the OS-specific default session file.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), "mediscan", "session.yaml")
}

// userConfigDir attempts to resolve a configuration directory in a portable way.
func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

// MemoryPersister keeps the token for the life of the process.
type MemoryPersister struct {
	mu  sync.Mutex
	tok *oauth2.Token
	// SaveErr, when set, is returned by Save.
	SaveErr error
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load returns the stored token.
func (m *MemoryPersister) Load() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return nil, nil
	}
	cp := *m.tok
	return &cp, nil
}

// Save stores a copy of tok.
func (m *MemoryPersister) Save(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *tok
	m.tok = &cp
	return nil
}

// Clear drops the stored token.
func (m *MemoryPersister) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = nil
	return nil
}
