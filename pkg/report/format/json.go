package format

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/greg-hellings/mediscan/pkg/report"
)

// Format names accepted by the CLI.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Formats lists the accepted output formats.
func Formats() []string {
	return []string{FormatConsole, FormatJSON}
}

// historyEntry is the JSON projection of one history row.
type historyEntry struct {
	Index     int         `json:"index"`
	Navigable bool        `json:"navigable"`
	Report    report.View `json:"report"`
}

// RenderReportJSON writes the normalized report as indented JSON.
func RenderReportJSON(w io.Writer, v report.View) error {
	return writeJSON(w, v)
}

// RenderHistoryJSON writes the history list as an indented JSON array.
func RenderHistoryJSON(w io.Writer, items []report.Summary) error {
	out := make([]historyEntry, 0, len(items))
	for i, s := range items {
		out = append(out, historyEntry{
			Index:     i + 1,
			Navigable: s.Navigable(),
			Report:    report.Normalize(s),
		})
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Renderer picks console or JSON output.
type Renderer struct {
	Format  string
	Console *ConsoleFormatter
}

// NewRenderer returns a renderer for the named format.
func NewRenderer(name string, colors bool) (*Renderer, error) {
	switch name {
	case "", FormatConsole:
		c := NewConsoleFormatter()
		c.EnableColors = colors
		return &Renderer{Format: FormatConsole, Console: c}, nil
	case FormatJSON:
		return &Renderer{Format: FormatJSON}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want one of %v)", name, Formats())
	}
}

// Report renders a single report.
func (r *Renderer) Report(w io.Writer, v report.View) error {
	if r.Format == FormatJSON {
		return RenderReportJSON(w, v)
	}
	return r.Console.RenderReport(w, v)
}

// History renders the report list.
func (r *Renderer) History(w io.Writer, items []report.Summary) error {
	if r.Format == FormatJSON {
		return RenderHistoryJSON(w, items)
	}
	return r.Console.RenderHistory(w, items)
}
