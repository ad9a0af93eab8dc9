// Package history manages the user's list of past analyses: load it, open
// an entry, delete one or clear all. Mutations ask for confirmation, call
// the service, and only then change the local list.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/greg-hellings/mediscan/pkg/report"
	"github.com/greg-hellings/mediscan/pkg/route"
)

// Confirmation prompts.
const (
	DeleteOnePrompt = "Delete this report?"
	ClearAllPrompt  = "Are you sure you want to delete ALL reports? This cannot be undone."
	LoadFailedHint  = "Failed to load report. It may not exist."
)

var (
	// ErrCanceled is returned when the user declines a confirmation.
	ErrCanceled = errors.New("canceled")
	// ErrBusy is returned when a load or mutation is already running.
	ErrBusy = errors.New("history operation in progress")
	// ErrNotNavigable is returned when opening an entry without an id.
	ErrNotNavigable = errors.New("report has no id")
	// ErrNoSuchEntry is returned when a reference matches no entry.
	ErrNoSuchEntry = errors.New("no such report in history")
)

// Client is the subset of the repository client the manager needs.
type Client interface {
	ListReports(ctx context.Context, token string) ([]report.Summary, error)
	DeleteReport(ctx context.Context, id, token string) error
	DeleteAllReports(ctx context.Context, token string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// Manager holds the loaded history list.
type Manager struct {
	client  Client
	confirm Confirmer
	logger  *slog.Logger

	mu       sync.Mutex
	items    []report.Summary
	loading  bool
	mutating bool
}

// NewManager returns an empty manager.
func NewManager(client Client, confirm Confirmer) *Manager {
	return &Manager{client: client, confirm: confirm, logger: slog.Default()}
}

// SetLogger replaces the logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// Load fetches the full list. On failure the list is left empty and the
// error is returned for the caller to show. There is no retry.
func (m *Manager) Load(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.loading || m.mutating {
		m.mu.Unlock()
		return ErrBusy
	}
	m.loading = true
	m.mu.Unlock()

	items, err := m.client.ListReports(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if err != nil {
		m.items = nil
		m.logger.Warn("loading history failed", "error", err)
		return fmt.Errorf("load history: %w", err)
	}
	m.items = items
	m.logger.Debug("history loaded", "count", len(items))
	return nil
}

// DeleteOne deletes the report with id after confirmation. The entry is
// removed locally only after the service confirms the deletion; on failure
// the list is unchanged.
func (m *Manager) DeleteOne(ctx context.Context, id, token string) error {
	if strings.TrimSpace(id) == "" {
		return ErrNotNavigable
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	if err := m.ask(DeleteOnePrompt); err != nil {
		return err
	}
	if err := m.client.DeleteReport(ctx, id, token); err != nil {
		m.logger.Warn("deleting report failed", "id", id, "error", err)
		return fmt.Errorf("delete report %s: %w", id, err)
	}

	m.mu.Lock()
	kept := make([]report.Summary, 0, len(m.items))
	for _, s := range m.items {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.items = kept
	m.mu.Unlock()
	m.logger.Info("report deleted", "id", id)
	return nil
}

// ClearAll deletes every report after confirmation. The list is emptied
// only after the service confirms. An empty list is a no-op.
func (m *Manager) ClearAll(ctx context.Context, token string) error {
	if m.Len() == 0 {
		return nil
	}
	if err := m.begin(); err != nil {
		return err
	}
	defer m.end()

	if err := m.ask(ClearAllPrompt); err != nil {
		return err
	}
	if err := m.client.DeleteAllReports(ctx, token); err != nil {
		m.logger.Warn("clearing history failed", "error", err)
		return fmt.Errorf("clear history: %w", err)
	}

	m.mu.Lock()
	m.items = []report.Summary{}
	m.mu.Unlock()
	m.logger.Info("history cleared")
	return nil
}

// Items returns a copy of the list in server order.
func (m *Manager) Items() []report.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]report.Summary(nil), m.items...)
}

// Len returns the number of entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Loading reports whether a load is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Open returns the detail path of the entry at the zero-based index.
func (m *Manager) Open(index int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.items) {
		return "", fmt.Errorf("%w: #%d", ErrNoSuchEntry, index+1)
	}
	s := m.items[index]
	if !s.Navigable() {
		return "", ErrNotNavigable
	}
	return route.ReportPath(s.ID), nil
}

// Find resolves a reference typed by the user: a 1-based list position or
// a report id.
func (m *Manager) Find(ref string) (int, report.Summary, error) {
	ref = strings.TrimSpace(ref)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.items {
		if s.ID != "" && s.ID == ref {
			return i, s, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(m.items) {
		return n - 1, m.items[n-1], nil
	}
	return -1, report.Summary{}, fmt.Errorf("%w: %q", ErrNoSuchEntry, ref)
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutating || m.loading {
		return ErrBusy
	}
	m.mutating = true
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	m.mutating = false
	m.mu.Unlock()
}

func (m *Manager) ask(prompt string) error {
	if m.confirm == nil {
		return nil
	}
	ok, err := m.confirm.Confirm(prompt)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		return ErrCanceled
	}
	return nil
}
