package upload

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/report"
)

// stubUploader blocks until release is closed when set.
type stubUploader struct {
	mu      sync.Mutex
	calls   int
	detail  *report.Detail
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubUploader) UploadReport(ctx context.Context, f *document.File, token string) (*report.Detail, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.detail, s.err
}

func reportFile() *document.File {
	return &document.File{Path: "/tmp/report.pdf", Name: "report.pdf", Kind: document.KindPDF}
}

func TestHappyPath(t *testing.T) {
	up := &stubUploader{detail: &report.Detail{FileName: "report.pdf"}}
	var transitions []string
	w := NewWorkflow(up, WithTransitionHook(func(from, to State, _ Snapshot) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	if w.State() != Idle || w.CanSubmit() {
		t.Fatalf("new workflow must be idle with submit disabled")
	}
	if err := w.Select(reportFile()); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if w.State() != FileSelected || !w.CanSubmit() {
		t.Fatalf("expected FileSelected with submit enabled, got %v", w.State())
	}

	d, err := w.Submit(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.FileName != "report.pdf" || w.State() != Result {
		t.Fatalf("expected Result, got %v", w.State())
	}
	if w.CanSubmit() {
		t.Error("submit must be disabled in Result")
	}
	if snap := w.Snapshot(); snap.Result != d {
		t.Errorf("snapshot result mismatch")
	}

	if err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := w.Snapshot()
	if snap.State != Idle || snap.File != nil || snap.Result != nil {
		t.Errorf("reset must clear everything, got %+v", snap)
	}

	want := []string{"idle->file selected", "file selected->submitting", "submitting->result", "result->idle"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestSubmitDisabledWhileSubmitting(t *testing.T) {
	up := &stubUploader{
		detail:  &report.Detail{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := NewWorkflow(up)
	if err := w.Select(reportFile()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), "tok")
		done <- err
	}()
	<-up.started

	if w.State() != Submitting || w.CanSubmit() {
		t.Fatalf("expected Submitting with submit disabled, got %v", w.State())
	}
	if _, err := w.Submit(context.Background(), "tok"); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit: expected ErrBusy, got %v", err)
	}
	if err := w.Select(reportFile()); !errors.Is(err, ErrBusy) {
		t.Errorf("select while submitting: expected ErrBusy, got %v", err)
	}
	if err := w.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("reset while submitting: expected ErrBusy, got %v", err)
	}

	close(up.release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if up.calls != 1 {
		t.Errorf("expected exactly one upload, got %d", up.calls)
	}
}

func TestFailureKeepsFileForRetry(t *testing.T) {
	up := &stubUploader{err: errors.New("boom")}
	w := NewWorkflow(up)
	f := reportFile()
	if err := w.Select(f); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Submit(context.Background(), "tok"); err == nil {
		t.Fatal("expected failure")
	}
	snap := w.Snapshot()
	if snap.State != Failed || snap.File != f || snap.Err == nil {
		t.Fatalf("unexpected snapshot after failure: %+v", snap)
	}
	if !w.CanSubmit() {
		t.Error("retry must be possible after failure")
	}

	up.err = nil
	up.detail = &report.Detail{FileName: "report.pdf"}
	if _, err := w.Submit(context.Background(), "tok"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if w.State() != Result {
		t.Errorf("expected Result after retry, got %v", w.State())
	}
}

func TestSelectAfterFailureClearsError(t *testing.T) {
	w := NewWorkflow(&stubUploader{err: errors.New("boom")})
	_ = w.Select(reportFile())
	_, _ = w.Submit(context.Background(), "tok")

	other := &document.File{Name: "other.png", Kind: document.KindPNG}
	if err := w.Select(other); err != nil {
		t.Fatalf("Select after failure: %v", err)
	}
	snap := w.Snapshot()
	if snap.State != FileSelected || snap.Err != nil || snap.File != other {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestInvalidTransitions(t *testing.T) {
	w := NewWorkflow(&stubUploader{detail: &report.Detail{}})

	if _, err := w.Submit(context.Background(), "tok"); !errors.Is(err, ErrNoFile) {
		t.Errorf("submit in Idle: expected ErrNoFile, got %v", err)
	}
	if err := w.Select(nil); !errors.Is(err, ErrNoFile) {
		t.Errorf("select nil: expected ErrNoFile, got %v", err)
	}
	if err := w.Reset(); err != nil {
		t.Errorf("reset in Idle must be a no-op, got %v", err)
	}

	_ = w.Select(reportFile())
	if _, err := w.Submit(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if err := w.Select(reportFile()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("select in Result: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := w.Submit(context.Background(), "tok"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("submit in Result: expected ErrInvalidTransition, got %v", err)
	}
}

func TestNilDetailIsFailure(t *testing.T) {
	w := NewWorkflow(&stubUploader{})
	_ = w.Select(reportFile())
	if _, err := w.Submit(context.Background(), "tok"); err == nil {
		t.Fatal("nil detail without error must fail")
	}
	if w.State() != Failed {
		t.Errorf("expected Failed, got %v", w.State())
	}
}

func TestResetFromFileSelected(t *testing.T) {
	w := NewWorkflow(&stubUploader{})
	_ = w.Select(reportFile())
	if err := w.Reset(); err != nil {
		t.Fatal(err)
	}
	if snap := w.Snapshot(); snap.State != Idle || snap.File != nil {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
