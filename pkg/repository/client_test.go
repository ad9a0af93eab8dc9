package repository

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/repository/repositorytest"
)

// roundTripperFunc mocks the transport for failures a real server cannot
// produce.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, srv *repositorytest.Server) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, UploadTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func testDocument(t *testing.T, name string) *document.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := []byte("%PDF-1.4\n%fake report body\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return &document.File{Path: path, Name: name, Size: int64(len(data)), Kind: document.KindPDF, ContentType: "application/pdf"}
}

func TestNewHTTPClientValidatesURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"http://localhost:8000", false},
		{"https://mediscan.example.com/api/", false},
		{"", false},
		{"ftp://example.com", true},
		{"http://", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		_, err := NewHTTPClient(Config{BaseURL: tt.url})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewHTTPClient(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestListReports(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	first := srv.SeedReport(token, "old.pdf", repositorytest.GlucoseResult)
	second := srv.SeedReport(token, "new.png", `{"analysis": {"error": "invalid json", "raw": "text"}}`)

	other := srv.AddUser("Bob", "bob@example.com", "pw")
	srv.SeedReport(other, "bob.pdf", repositorytest.GlucoseResult)

	c := newTestClient(t, srv)
	items, err := c.ListReports(context.Background(), token)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(items))
	}
	// Server order is kept (newest first).
	if items[0].ID != second || items[1].ID != first {
		t.Errorf("unexpected order: %s, %s", items[0].ID, items[1].ID)
	}
	if items[1].FileName != "old.pdf" || items[1].CreatedAt.IsZero() {
		t.Errorf("unexpected summary %+v", items[1])
	}

	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	if last.Token != token {
		t.Errorf("token not sent as query parameter: %+v", last)
	}
	if last.RequestID == "" || last.UserAgent != DefaultUserAgent {
		t.Errorf("missing request headers: %+v", last)
	}
}

func TestListReportsEmpty(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	items, err := newTestClient(t, srv).ListReports(context.Background(), token)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", items)
	}
}

func TestErrorKinds(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	id := srv.SeedReport(token, "a.pdf", repositorytest.GlucoseResult)
	noResult := srv.SeedReport(token, "b.pdf", "null")
	c := newTestClient(t, srv)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		kind   error
		status int
		detail string
	}{
		{
			name: "invalid token",
			call: func() error { _, err := c.ListReports(ctx, "bogus"); return err },
			kind: ErrAuth, status: http.StatusUnauthorized, detail: "Invalid token",
		},
		{
			name: "missing report",
			call: func() error { _, err := c.GetReport(ctx, "ffffffffffffffffffffffff", token); return err },
			kind: ErrNotFound, status: http.StatusNotFound, detail: "Report not found",
		},
		{
			name: "report without result",
			call: func() error { _, err := c.GetReport(ctx, noResult, token); return err },
			kind: ErrNotFound, detail: "report has no result",
		},
		{
			name: "delete missing",
			call: func() error { return c.DeleteReport(ctx, "ffffffffffffffffffffffff", token) },
			kind: ErrNotFound, status: http.StatusNotFound,
		},
		{
			name: "server error",
			call: func() error {
				srv.Fail(http.MethodGet, "/report/{id}", http.StatusInternalServerError)
				_, err := c.GetReport(ctx, id, token)
				return err
			},
			kind: ErrNetwork, status: http.StatusInternalServerError,
		},
		{
			name: "forbidden",
			call: func() error {
				srv.Fail(http.MethodDelete, "/history", http.StatusForbidden)
				return c.DeleteAllReports(ctx, token)
			},
			kind: ErrAuth, status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if e.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", e.StatusCode, tt.status)
			}
			if tt.detail != "" && e.Detail != tt.detail {
				t.Errorf("detail = %q, want %q", e.Detail, tt.detail)
			}
		})
	}
}

func TestEmptyTokenFailsWithoutRequest(t *testing.T) {
	srv := repositorytest.NewServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	if _, err := c.ListReports(ctx, ""); !errors.Is(err, ErrAuth) {
		t.Errorf("list: expected ErrAuth, got %v", err)
	}
	if err := c.DeleteAllReports(ctx, "  "); !errors.Is(err, ErrAuth) {
		t.Errorf("clear: expected ErrAuth, got %v", err)
	}
	if _, err := c.UploadReport(ctx, testDocument(t, "a.pdf"), ""); !errors.Is(err, ErrAuth) {
		t.Errorf("upload: expected ErrAuth, got %v", err)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}
}

func TestGetReport(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	id := srv.SeedReport(token, "lab1.pdf", repositorytest.GlucoseResult)

	d, err := newTestClient(t, srv).GetReport(context.Background(), id, token)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if d.ID != id || d.FileName != "lab1.pdf" {
		t.Errorf("unexpected detail %+v", d)
	}
	if len(d.Result.Structured) == 0 || len(d.Result.Analysis) == 0 {
		t.Errorf("result payloads missing: %+v", d.Result)
	}
}

func TestUploadReportBareResult(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	c := newTestClient(t, srv)

	d, err := c.UploadReport(context.Background(), testDocument(t, "lab1.pdf"), token)
	if err != nil {
		t.Fatalf("UploadReport: %v", err)
	}
	if d.ID != "" {
		t.Errorf("bare result must produce a transient detail, got id %q", d.ID)
	}
	if d.FileName != "lab1.pdf" || len(d.Result.Structured) == 0 {
		t.Errorf("unexpected detail %+v", d)
	}

	reqs := srv.Requests()
	up := reqs[len(reqs)-1]
	if up.FileName != "lab1.pdf" || up.ContentType != "application/pdf" || up.Size == 0 {
		t.Errorf("unexpected multipart part: %+v", up)
	}
	if ids := srv.ReportIDs(token); len(ids) != 1 {
		t.Errorf("expected one stored report, got %v", ids)
	}
}

func TestUploadReportStoredDetail(t *testing.T) {
	srv := repositorytest.NewServer(t)
	srv.SetReturnDetail(true)
	token := srv.AddUser("Jane", "jane@example.com", "pw")

	d, err := newTestClient(t, srv).UploadReport(context.Background(), testDocument(t, "lab1.pdf"), token)
	if err != nil {
		t.Fatalf("UploadReport: %v", err)
	}
	if d.ID == "" || d.CreatedAt.IsZero() {
		t.Errorf("expected stored detail, got %+v", d)
	}
}

func TestUploadFailuresAreUploadErrors(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	c := newTestClient(t, srv)
	ctx := context.Background()

	srv.Fail(http.MethodPost, "/upload", http.StatusInternalServerError)
	_, err := c.UploadReport(ctx, testDocument(t, "a.pdf"), token)
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("original kind should stay reachable, got %v", err)
	}

	// Auth failures keep their kind so the caller can ask for a new login.
	_, err = c.UploadReport(ctx, testDocument(t, "a.pdf"), "expired")
	if !errors.Is(err, ErrAuth) || errors.Is(err, ErrUpload) {
		t.Errorf("expected pure ErrAuth, got %v", err)
	}

	srv.SetUploadResult(`"not an object"`)
	_, err = c.UploadReport(ctx, testDocument(t, "a.pdf"), token)
	if !errors.Is(err, ErrUpload) {
		t.Errorf("undecodable response: expected ErrUpload, got %v", err)
	}

	if _, err := c.UploadReport(ctx, nil, token); !errors.Is(err, ErrUpload) {
		t.Errorf("nil file: expected ErrUpload, got %v", err)
	}
}

func TestTimeouts(t *testing.T) {
	srv := repositorytest.NewServer(t)
	token := srv.AddUser("Jane", "jane@example.com", "pw")
	srv.SetDelay(500 * time.Millisecond)

	c, err := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, UploadTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ListReports(context.Background(), token)
	if !errors.Is(err, ErrNetwork) || !errors.Is(err, ErrTimeout) {
		t.Errorf("list: expected network timeout, got %v", err)
	}

	_, err = c.UploadReport(context.Background(), testDocument(t, "a.pdf"), token)
	if !errors.Is(err, ErrUpload) || !errors.Is(err, ErrTimeout) {
		t.Errorf("upload: expected upload timeout, got %v", err)
	}
}

func TestTransportErrorDoesNotLeakToken(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	c, err := NewHTTPClient(Config{BaseURL: "http://localhost:1", HTTPClient: httpClient})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListReports(context.Background(), "secret-token")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestUndecodableListIsNetworkError(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       http.NoBody,
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})}
	c, err := NewHTTPClient(Config{BaseURL: "http://localhost:1", HTTPClient: httpClient})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListReports(context.Background(), "t"); !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork for empty body, got %v", err)
	}
}

func TestSignupAndLogin(t *testing.T) {
	srv := repositorytest.NewServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	token, err := c.Signup(ctx, Signup{Name: "Jane", Email: " jane@example.com ", Password: "pw"})
	if err != nil || token == "" {
		t.Fatalf("Signup: token=%q err=%v", token, err)
	}

	_, err = c.Signup(ctx, Signup{Name: "Jane", Email: "jane@example.com", Password: "pw"})
	if !errors.Is(err, ErrAuth) || !strings.Contains(err.Error(), "Email already exists") {
		t.Errorf("duplicate signup: expected ErrAuth with detail, got %v", err)
	}

	token, err = c.Login(ctx, Credentials{Email: "jane@example.com", Password: "pw"})
	if err != nil || token == "" {
		t.Fatalf("Login: token=%q err=%v", token, err)
	}
	if _, err := c.ListReports(ctx, token); err != nil {
		t.Errorf("issued token should authenticate: %v", err)
	}

	_, err = c.Login(ctx, Credentials{Email: "jane@example.com", Password: "wrong"})
	if !errors.Is(err, ErrAuth) || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Errorf("bad password: expected ErrAuth, got %v", err)
	}
}

func TestAuthValidation(t *testing.T) {
	srv := repositorytest.NewServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{"missing email", func() error { _, err := c.Login(ctx, Credentials{Password: "pw"}); return err }, "email is required"},
		{"bad email", func() error { _, err := c.Login(ctx, Credentials{Email: "nope", Password: "pw"}); return err }, "valid email"},
		{"missing password", func() error { _, err := c.Login(ctx, Credentials{Email: "a@b.co"}); return err }, "password is required"},
		{"missing name", func() error {
			_, err := c.Signup(ctx, Signup{Email: "a@b.co", Password: "pw"})
			return err
		}, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("invalid input must not reach the server, got %d requests", n)
	}
}

func TestServerDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail": "Invalid token"}`, "Invalid token"},
		{`{"detail": [{"msg": "field required"}, {"msg": "bad email"}]}`, "field required; bad email"},
		{`{"message": "History cleared"}`, "History cleared"},
		{`Internal Server Error`, "Internal Server Error"},
		{`{}`, ""},
	}
	for _, tt := range tests {
		if got := serverDetail([]byte(tt.body)); got != tt.want {
			t.Errorf("serverDetail(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
