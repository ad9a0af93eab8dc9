package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/greg-hellings/mediscan/pkg/document"
	"github.com/greg-hellings/mediscan/pkg/report"
)

// UploadField is the multipart form field carrying the document.
const UploadField = "file"

// ListReports retrieves the report list in server order.
func (c *HTTPClient) ListReports(ctx context.Context, token string) ([]report.Summary, error) {
	const op = "list reports"
	body, err := c.send(ctx, call{op: op, method: http.MethodGet, path: []string{"history"}, token: token, authed: true})
	if err != nil {
		return nil, err
	}
	var items []report.Summary
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, decodeError(op, err)
	}
	if items == nil {
		items = []report.Summary{}
	}
	return items, nil
}

// GetReport retrieves one report by id.
func (c *HTTPClient) GetReport(ctx context.Context, id, token string) (*report.Detail, error) {
	const op = "get report"
	if strings.TrimSpace(id) == "" {
		return nil, &Error{Op: op, Kind: ErrNotFound, Detail: "empty report id"}
	}
	body, err := c.send(ctx, call{op: op, method: http.MethodGet, path: []string{"report", id}, token: token, authed: true})
	if err != nil {
		return nil, err
	}
	var d report.Detail
	if err := json.Unmarshal(body, &d); err != nil {
		if errors.Is(err, report.ErrNoResult) {
			return nil, &Error{Op: op, Kind: ErrNotFound, Detail: report.ErrNoResult.Error()}
		}
		return nil, decodeError(op, err)
	}
	if d.ID == "" {
		d.ID = id
	}
	return &d, nil
}

// DeleteReport removes one report.
func (c *HTTPClient) DeleteReport(ctx context.Context, id, token string) error {
	const op = "delete report"
	if strings.TrimSpace(id) == "" {
		return &Error{Op: op, Kind: ErrNotFound, Detail: "empty report id"}
	}
	_, err := c.send(ctx, call{op: op, method: http.MethodDelete, path: []string{"report", id}, token: token, authed: true})
	return err
}

// DeleteAllReports removes every report of the user.
func (c *HTTPClient) DeleteAllReports(ctx context.Context, token string) error {
	_, err := c.send(ctx, call{op: "clear history", method: http.MethodDelete, path: []string{"history"}, token: token, authed: true})
	return err
}

// UploadReport sends the document as multipart field "file". The reference
// backend answers with the bare result payload; deployments that answer with
// the stored report are also accepted.
func (c *HTTPClient) UploadReport(ctx context.Context, file *document.File, token string) (*report.Detail, error) {
	const op = "upload report"
	if file == nil {
		return nil, &Error{Op: op, Kind: ErrUpload, Detail: "no file selected"}
	}

	payload, contentType, err := multipartBody(file)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrUpload, Err: err}
	}

	c.logger.Info("uploading report", "file", file.Name, "size", file.Size, "content_type", file.ContentType)
	body, err := c.send(ctx, call{
		op:          op,
		method:      http.MethodPost,
		path:        []string{"upload"},
		token:       token,
		authed:      true,
		body:        bytes.NewReader(payload),
		contentType: contentType,
		timeout:     c.config.UploadTimeout,
	})
	if err != nil {
		return nil, asUploadError(err)
	}

	d, err := decodeUpload(body, file.Name)
	if err != nil {
		return nil, asUploadError(decodeError(op, err))
	}
	return d, nil
}

// decodeUpload accepts either a stored report or a bare result payload.
func decodeUpload(body []byte, fileName string) (*report.Detail, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("empty upload response")
	}

	if res, ok := fields["result"]; ok && !bytes.Equal(bytes.TrimSpace(res), []byte("null")) {
		var d report.Detail
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, err
		}
		if d.FileName == "" {
			d.FileName = fileName
		}
		return &d, nil
	}

	var r report.Result
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &report.Detail{FileName: fileName, Result: r, CreatedAt: r.Time}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(file *document.File) ([]byte, string, error) {
	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer src.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, UploadField, quoteEscaper.Replace(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", file.Name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
