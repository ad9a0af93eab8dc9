package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// HTTPClient implements Client and AuthClient against the service's HTTP API.
// It never retries; every failure is returned to the caller.
type HTTPClient struct {
	base     *url.URL
	config   Config
	client   *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHTTPClient creates a client with the provided configuration.
func NewHTTPClient(config Config) (*HTTPClient, error) {
	config.ApplyDefaults()

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", config.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", config.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", config.BaseURL)
	}

	client := config.HTTPClient
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		base:     base,
		config:   config,
		client:   client,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}, nil
}

// BaseURL returns the service root the client talks to.
func (c *HTTPClient) BaseURL() string {
	return c.base.String()
}

// tokenQuery is the query string carried by authenticated requests.
type tokenQuery struct {
	Token string `url:"token"`
}

// call describes one request.
type call struct {
	op          string
	method      string
	path        []string
	token       string
	authed      bool
	body        io.Reader
	contentType string
	timeout     time.Duration
	// authEndpoint maps every 4xx to ErrAuth (signup/login).
	authEndpoint bool
}

// send performs the call and returns the body of a 2xx response. Any other
// outcome is an *Error.
func (c *HTTPClient) send(ctx context.Context, cl call) ([]byte, error) {
	if cl.authed && strings.TrimSpace(cl.token) == "" {
		return nil, &Error{Op: cl.op, Kind: ErrAuth, Detail: "no session token"}
	}

	timeout := cl.timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.base.JoinPath(cl.path...)
	if cl.authed {
		values, err := query.Values(tokenQuery{Token: cl.token})
		if err != nil {
			return nil, &Error{Op: cl.op, Kind: ErrNetwork, Err: err}
		}
		u.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), cl.body)
	if err != nil {
		return nil, &Error{Op: cl.op, Kind: ErrNetwork, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}

	// Never log the query: it carries the token.
	logger := c.logger.With("op", cl.op, "method", cl.method, "path", u.Path, "request_id", requestID)
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("request failed", "error", redactURLError(err), "elapsed", time.Since(start))
		return nil, transportError(cl.op, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logger.Debug("reading response failed", "status", resp.StatusCode, "error", err)
		return nil, transportError(cl.op, err)
	}
	logger.Debug("request completed", "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	kind := kindForStatus(resp.StatusCode)
	if cl.authEndpoint && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = ErrAuth
	}
	return nil, &Error{
		Op:         cl.op,
		StatusCode: resp.StatusCode,
		Kind:       kind,
		Detail:     serverDetail(body),
	}
}

// redactURLError drops the request URL (and with it the token) from
// transport errors.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err
}

// decodeError reports a 2xx body that could not be understood.
func decodeError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrNetwork, Detail: "unexpected response body", Err: err}
}
