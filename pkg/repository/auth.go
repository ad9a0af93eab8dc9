package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Signup creates an account and returns its session token.
func (c *HTTPClient) Signup(ctx context.Context, s Signup) (string, error) {
	s.Email = strings.TrimSpace(s.Email)
	s.Name = strings.TrimSpace(s.Name)
	return c.authenticate(ctx, "signup", "signup", s)
}

// Login exchanges credentials for a session token.
func (c *HTTPClient) Login(ctx context.Context, cr Credentials) (string, error) {
	cr.Email = strings.TrimSpace(cr.Email)
	return c.authenticate(ctx, "login", "login", cr)
}

func (c *HTTPClient) authenticate(ctx context.Context, op, endpoint string, req any) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%s: %w: %s", op, ErrInvalidInput, describeValidation(err))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	body, err := c.send(ctx, call{
		op:           op,
		method:       http.MethodPost,
		path:         []string{"auth", endpoint},
		body:         bytes.NewReader(payload),
		contentType:  "application/json",
		authEndpoint: true,
	})
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", decodeError(op, err)
	}
	token := firstNonBlank(tr.Token, tr.AccessToken)
	if token == "" {
		return "", &Error{Op: op, Kind: ErrNetwork, Detail: "response did not include a token"}
	}
	return token, nil
}

// describeValidation turns validator errors into "email must be a valid
// email address" style messages.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
