package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is,
// and timeouts additionally match ErrTimeout.
var (
	// ErrAuth means the token is missing, invalid or expired, or the
	// credentials were rejected.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound means the report does not exist or has no result.
	ErrNotFound = errors.New("report not found")
	// ErrUpload means an upload failed for any reason other than auth.
	ErrUpload = errors.New("upload failed")
	// ErrNetwork means a transport failure, timeout or unexpected response.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is a network failure caused by a deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrInvalidInput means a request failed local validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Error is returned by every failed service call.
type Error struct {
	// Op names the operation, e.g. "list reports".
	Op string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Kind is one of the Err* sentinels.
	Kind error
	// Detail is the server's message when it sent one.
	Detail string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsAuth reports whether err means the session must be re-established.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// kindForStatus maps an unsuccessful HTTP status to an error kind.
func kindForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrNetwork
	}
}

// transportError classifies a failure that produced no response.
func transportError(op string, err error) *Error {
	cause := err
	if isTimeout(err) {
		cause = errors.Join(ErrTimeout, err)
	}
	return &Error{Op: op, Kind: ErrNetwork, Err: cause}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// asUploadError re-kinds a failure as an upload failure. Auth failures keep
// their kind so callers can still prompt for a new login.
func asUploadError(err error) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind == ErrAuth {
		return err
	}
	out := *e
	out.Kind = ErrUpload
	if e.Err != nil {
		out.Err = errors.Join(e.Kind, e.Err)
	} else {
		out.Err = e.Kind
	}
	return &out
}

// serverDetail extracts a human message from an error body. The service
// uses {"detail": "..."} and validation failures use {"detail": [{"msg": ...}]}.
func serverDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	return payload.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
