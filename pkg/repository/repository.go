// Package repository provides the client for the MediScan report service.
// It defines the Client interface used by the upload and history workflows,
// the AuthClient used to obtain a session token, and an HTTP implementation
// of both.
package repository

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/report"
)

// Default client settings.
const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultTimeout       = 30 * time.Second
	DefaultUploadTimeout = 5 * time.Minute
	DefaultUserAgent     = "mediscan-cli"
)

// Client defines the report operations of the service. The token is always
// an explicit parameter; the client holds no session state.
type Client interface {
	// ListReports retrieves every report of the authenticated user
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - token: Session token
	// Returns:
	//   - Summaries in server order (the MediScan backend sends newest first)
	//   - Error if the operation fails
	ListReports(ctx context.Context, token string) ([]report.Summary, error)

	// GetReport retrieves a single report. A report without a result is
	// reported as not found.
	GetReport(ctx context.Context, id, token string) (*report.Detail, error)

	// UploadReport sends a document for analysis and returns the analyzed
	// report. The returned detail has an empty ID when the service only
	// echoed the result payload.
	UploadReport(ctx context.Context, file *document.File, token string) (*report.Detail, error)

	// DeleteReport removes one report.
	DeleteReport(ctx context.Context, id, token string) error

	// DeleteAllReports removes every report of the user.
	DeleteAllReports(ctx context.Context, token string) error
}

// AuthClient obtains session tokens.
type AuthClient interface {
	// Signup creates an account and returns its session token.
	Signup(ctx context.Context, s Signup) (string, error)
	// Login exchanges credentials for a session token.
	Login(ctx context.Context, c Credentials) (string, error)
}

// Signup is the account creation request.
type Signup struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Credentials is the login request.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Config holds configuration for the HTTP client
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8000
	BaseURL string

	// Timeout bounds every request except uploads. Zero uses DefaultTimeout.
	Timeout time.Duration

	// UploadTimeout bounds uploads, which include server-side analysis.
	// Zero uses DefaultUploadTimeout.
	UploadTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient overrides the transport. Nil uses a pooled cleanhttp client.
	HTTPClient *http.Client

	// Logger receives request-level debug logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}
