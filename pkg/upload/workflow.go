// Package upload implements the upload workflow: choose a document, submit
// it for analysis, then show the result or the failure.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/report"
)

// FailedMessage is shown when an upload does not succeed.
const FailedMessage = "Upload failed. Please try again."

var (
	// ErrBusy is returned while an upload is in flight.
	ErrBusy = errors.New("upload in progress")
	// ErrNoFile is returned when submitting without a selected file.
	ErrNoFile = errors.New("no file selected")
	// ErrInvalidTransition is returned for operations the current state does
	// not allow.
	ErrInvalidTransition = errors.New("invalid upload state transition")
)

// State is a workflow state.
type State int

// Workflow states.
const (
	Idle State = iota
	FileSelected
	Submitting
	Result
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FileSelected:
		return "file selected"
	case Submitting:
		return "submitting"
	case Result:
		return "result"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Uploader sends a document for analysis. repository.Client satisfies it.
type Uploader interface {
	UploadReport(ctx context.Context, file *document.File, token string) (*report.Detail, error)
}

// Snapshot is a consistent copy of the workflow's state.
type Snapshot struct {
	State  State
	File   *document.File
	Result *report.Detail
	Err    error
}

// TransitionHook observes state changes. It runs with no lock held.
type TransitionHook func(from, to State, snap Snapshot)

// Option configures a Workflow.
type Option func(*Workflow)

// WithTransitionHook registers a hook called after every state change.
func WithTransitionHook(h TransitionHook) Option {
	return func(w *Workflow) {
		w.hooks = append(w.hooks, h)
	}
}

// Workflow is the upload state machine. At most one upload is in flight per
// instance; it is safe for concurrent callers.
type Workflow struct {
	uploader Uploader
	hooks    []TransitionHook

	mu     sync.Mutex
	state  State
	file   *document.File
	result *report.Detail
	err    error
}

// NewWorkflow returns an idle workflow.
func NewWorkflow(u Uploader, opts ...Option) *Workflow {
	w := &Workflow{uploader: u}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Select chooses the document to upload. Choosing again replaces the file;
// choosing after a failure clears the error.
func (w *Workflow) Select(f *document.File) error {
	if f == nil {
		return ErrNoFile
	}
	w.mu.Lock()
	switch w.state {
	case Submitting:
		w.mu.Unlock()
		return ErrBusy
	case Result:
		w.mu.Unlock()
		return fmt.Errorf("%w: reset before choosing another file", ErrInvalidTransition)
	}
	from := w.state
	w.state = FileSelected
	w.file = f
	w.err = nil
	w.result = nil
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(from, snap)
	return nil
}

// Submit uploads the selected file and blocks until the outcome is known.
// On failure the file stays selected so Submit can be retried.
func (w *Workflow) Submit(ctx context.Context, token string) (*report.Detail, error) {
	w.mu.Lock()
	switch w.state {
	case Idle:
		w.mu.Unlock()
		return nil, ErrNoFile
	case Submitting:
		w.mu.Unlock()
		return nil, ErrBusy
	case Result:
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: reset before uploading again", ErrInvalidTransition)
	}
	from := w.state
	file := w.file
	w.state = Submitting
	w.err = nil
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(from, snap)

	detail, err := w.uploader.UploadReport(ctx, file, token)
	if err == nil && detail == nil {
		err = errors.New("service returned no result")
	}

	w.mu.Lock()
	if err != nil {
		w.state = Failed
		w.err = err
	} else {
		w.state = Result
		w.result = detail
	}
	snap = w.snapshotLocked()
	w.mu.Unlock()
	w.notify(Submitting, snap)

	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Reset returns to Idle with no file selected.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	if w.state == Submitting {
		w.mu.Unlock()
		return ErrBusy
	}
	if w.state == Idle {
		w.mu.Unlock()
		return nil
	}
	from := w.state
	w.state = Idle
	w.file = nil
	w.result = nil
	w.err = nil
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(from, snap)
	return nil
}

// CanSubmit reports whether the submit trigger is enabled.
func (w *Workflow) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == FileSelected || w.state == Failed
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns a consistent copy of the workflow.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return Snapshot{State: w.state, File: w.file, Result: w.result, Err: w.err}
}

func (w *Workflow) notify(from State, snap Snapshot) {
	for _, h := range w.hooks {
		h(from, snap.State, snap)
	}
}
