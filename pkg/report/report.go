// Package report provides the data model for analyzed medical reports as
// returned by the MediScan service, plus the normalization logic that turns
// an arbitrary result payload into a renderable shape.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoResult is returned when a fetched report carries no result payload.
var ErrNoResult = errors.New("report has no result")

// Summary is the list-view projection of one stored analysis.
type Summary struct {
	// ID is empty for a transient result that has not been persisted yet.
	ID       string    `json:"id"`
	FileName string    `json:"fileName"`
	Result   Result    `json:"result"`
	// CreatedAt is optional in list responses.
	CreatedAt Timestamp `json:"createdAt,omitzero"`
}

// Detail is a single report fetched by id. Unlike Summary, decoding a Detail
// fails with ErrNoResult when the result payload is absent.
type Detail Summary

// Result is the analysis payload attached to a report. The two sub-payloads
// are kept raw and classified independently (see Classify).
type Result struct {
	Structured json.RawMessage `json:"structured,omitempty"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
	Time       Timestamp       `json:"time,omitzero"`
}

// Navigable reports whether the summary can be opened as a detail view.
func (s Summary) Navigable() bool {
	return strings.TrimSpace(s.ID) != ""
}

// wireSummary accepts both the service's field names (_id, file) and the
// camelCase names used by newer deployments.
type wireSummary struct {
	MongoID   string          `json:"_id"`
	ID        string          `json:"id"`
	File      string          `json:"file"`
	FileName  string          `json:"fileName"`
	CreatedAt Timestamp       `json:"createdAt"`
	Result    json.RawMessage `json:"result"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var w wireSummary
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Summary{
		ID:        firstNonEmpty(w.MongoID, w.ID),
		FileName:  firstNonEmpty(w.File, w.FileName),
		CreatedAt: w.CreatedAt,
	}
	if isNull(w.Result) {
		return nil
	}
	if err := json.Unmarshal(w.Result, &s.Result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Detail) UnmarshalJSON(data []byte) error {
	var probe struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if isNull(probe.Result) {
		return ErrNoResult
	}
	return (*Summary)(d).UnmarshalJSON(data)
}

// MarshalJSON implements json.Marshaler.
func (d Detail) MarshalJSON() ([]byte, error) {
	return json.Marshal(Summary(d))
}

// Summary returns the list projection of the detail.
func (d *Detail) Summary() Summary {
	return Summary(*d)
}

// UnmarshalJSON implements json.Unmarshaler. A result that is not an object
// leaves both sub-payloads absent.
func (r *Result) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		*r = Result{}
		return nil
	}
	*r = Result{
		Structured: fields["structured"],
		Analysis:   fields["analysis"],
	}
	if t, ok := fields["time"]; ok {
		_ = r.Time.UnmarshalJSON(t)
	}
	return nil
}

// Timestamp is a lenient time value. The service writes ISO-8601 timestamps
// with or without a zone offset; anything unparseable decodes to the zero
// time instead of failing the whole report.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s with the accepted layouts. Zone-less values are UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil || s == "" {
			return nil
		}
		if parsed, err := ParseTimestamp(s); err == nil {
			*t = parsed
		}
		return nil
	}
	// Epoch seconds.
	if secs, err := strconv.ParseFloat(string(data), 64); err == nil {
		whole := int64(secs)
		t.Time = time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC()
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
