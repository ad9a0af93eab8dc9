// Package format provides console and JSON rendering for analyzed reports.
// Console output adapts column widths to the terminal and supports color and
// truncation.
package format

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/greg-hellings/mediscan/pkg/report"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Messages shown in place of missing or unparseable sections.
const (
	NoAnalysisMessage  = "No analysis data available."
	NoExtractedMessage = "No extracted data available."
	RawAnalysisNote    = "Note: The AI response could not be fully structured, but here is the analysis:"
	RawExtractedNote   = "Raw extracted text:"
	NoReportsMessage   = "No reports found"
	unknownDate        = "unknown"
)

// ConsoleFormatter renders reports and history lists for a terminal.
type ConsoleFormatter struct {
	// Width overrides terminal detection when positive.
	Width int

	// EnableColors toggles ANSI color output for status badges.
	EnableColors bool

	// Now is used for relative times in the history table. Defaults to time.Now.
	Now func() time.Time
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{EnableColors: true}
}

// RenderReport writes one normalized report.
func (f *ConsoleFormatter) RenderReport(w io.Writer, v report.View) error {
	p := &printer{w: w}

	title := v.FileName
	if title == "" {
		title = "(unnamed report)"
	}
	p.line("Report: %s", title)
	if v.ID != "" {
		p.line("ID: %s", v.ID)
	} else {
		p.line("ID: (not saved)")
	}
	p.line("Analyzed: %s", f.date(v.CreatedAt))
	p.blank()

	f.renderAnalysis(p, v.Analysis)
	p.blank()
	f.renderExtracted(p, v.Extracted)
	return p.err
}

func (f *ConsoleFormatter) renderAnalysis(p *printer, sec report.Section[report.AnalysisData]) {
	p.heading("Medical Analysis")
	switch {
	case sec.Shape == report.Unstructured:
		p.line("%s", RawAnalysisNote)
		p.block(sec.Raw, f.width(p.w))
	case sec.Missing || sec.Value.Empty():
		p.line("%s", NoAnalysisMessage)
	default:
		a := sec.Value
		if a.Summary != "" {
			p.subheading("Summary")
			p.block(a.Summary, f.width(p.w))
		}
		if len(a.AbnormalFindings) > 0 {
			p.subheading("Abnormal Findings / Attention Needed")
			if p.err == nil {
				f.findingsTable(p.w, a.AbnormalFindings)
			}
		}
		if a.GeneralHealthAdvice != "" {
			p.subheading("Health Advice")
			p.block(a.GeneralHealthAdvice, f.width(p.w))
		}
		if a.WhenToSeeDoctor != "" {
			p.subheading("Recommendation")
			p.block(a.WhenToSeeDoctor, f.width(p.w))
		}
	}
}

func (f *ConsoleFormatter) renderExtracted(p *printer, sec report.Section[report.ExtractedData]) {
	p.heading("Extracted Data")
	switch {
	case sec.Shape == report.Unstructured:
		p.line("%s", RawExtractedNote)
		p.block(sec.Raw, f.width(p.w))
	case sec.Missing || (sec.Value.Empty() && sec.Value.RawText == ""):
		p.line("%s", NoExtractedMessage)
	default:
		e := sec.Value
		meta := e.VisibleMeta()
		for _, m := range meta {
			p.line("  %s: %s", titleCase(m.Label()), m.Value)
		}
		if len(e.Tests) > 0 {
			if len(meta) > 0 {
				p.blank()
			}
			if p.err == nil {
				f.testsTable(p.w, e.Tests)
			}
			p.line("%d of %d tests flagged abnormal", e.AbnormalCount(), len(e.Tests))
		}
		if e.Empty() && e.RawText != "" {
			p.line("%s", RawExtractedNote)
			p.block(e.RawText, f.width(p.w))
		}
	}
}

func (f *ConsoleFormatter) testsTable(w io.Writer, tests []report.TestResult) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Test Name", "Value", "Unit", "Ref Range", "Status"})
	nameWidth := clampInt(f.width(w)/3, 12, 40)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: nameWidth, Transformer: truncTransformer(nameWidth)},
		{Number: 4, WidthMax: 24, Transformer: truncTransformer(24)},
	})
	for _, t := range tests {
		tw.AppendRow(table.Row{t.Name, t.Value, t.Unit, t.ReferenceRange, f.statusBadge(t)})
	}
	tw.Render()
}

func (f *ConsoleFormatter) findingsTable(w io.Writer, findings []report.Finding) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Test", "Value", "Normal Range", "Interpretation"})
	interpWidth := clampInt(f.width(w)/2, 20, 60)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: interpWidth},
	})
	for _, fd := range findings {
		interp := fd.Interpretation
		if fd.PossibleCauses != "" {
			interp += "\nPossible causes: " + fd.PossibleCauses
		}
		if fd.RecommendedActions != "" {
			interp += "\nRecommended: " + fd.RecommendedActions
		}
		tw.AppendRow(table.Row{fd.Test, fd.Value, fd.NormalRange, interp})
	}
	tw.Render()
}

// statusBadge colors a status red when abnormal and green otherwise.
func (f *ConsoleFormatter) statusBadge(t report.TestResult) string {
	if t.Abnormal() {
		return f.color(t.DisplayStatus(), text.FgRed, text.Bold)
	}
	return f.color(t.DisplayStatus(), text.FgGreen)
}

// RenderHistory writes the report list as a table.
func (f *ConsoleFormatter) RenderHistory(w io.Writer, items []report.Summary) error {
	p := &printer{w: w}
	if len(items) == 0 {
		p.line("%s", NoReportsMessage)
		return p.err
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "ID", "File", "Analyzed", "Tests", "Abnormal", "Analysis"})
	previewWidth := clampInt(f.width(w)-70, 16, 60)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 26, Transformer: truncTransformer(26)},
		{Number: 3, WidthMax: 32, Transformer: truncTransformer(32)},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, WidthMax: previewWidth, Transformer: truncTransformer(previewWidth)},
	})

	for i, s := range items {
		v := report.Normalize(s)
		id := s.ID
		if !s.Navigable() {
			id = f.color("(unsaved)", text.FgHiBlack)
		}
		tests, abnormal := "-", "-"
		if v.Extracted.Shape == report.Structured && !v.Extracted.Missing {
			tests = strconv.Itoa(len(v.Extracted.Value.Tests))
			n := v.Extracted.Value.AbnormalCount()
			abnormal = strconv.Itoa(n)
			if n > 0 {
				abnormal = f.color(abnormal, text.FgRed)
			}
		}
		tw.AppendRow(table.Row{i + 1, id, s.FileName, f.relative(v.CreatedAt), tests, abnormal, preview(v.Analysis)})
	}
	tw.Render()

	p.blank()
	p.line("Total Reports: %d", len(items))
	return p.err
}

// preview is a one-line digest of the analysis section.
func preview(sec report.Section[report.AnalysisData]) string {
	switch {
	case sec.Shape == report.Unstructured:
		return "(unstructured) " + firstLine(sec.Raw)
	case sec.Missing || sec.Value.Empty():
		return "-"
	case sec.Value.Summary != "":
		return firstLine(sec.Value.Summary)
	default:
		return fmt.Sprintf("%d findings", len(sec.Value.AbnormalFindings))
	}
}

func (f *ConsoleFormatter) date(ts report.Timestamp) string {
	if ts.IsZero() {
		return unknownDate
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func (f *ConsoleFormatter) relative(ts report.Timestamp) string {
	if ts.IsZero() {
		return unknownDate
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return humanize.RelTime(ts.Time, now(), "ago", "from now")
}

func (f *ConsoleFormatter) width(w io.Writer) int {
	if f.Width > 0 {
		return f.Width
	}
	if width := detectTerminalWidth(w); width > 0 {
		return width
	}
	return 100
}

func (f *ConsoleFormatter) color(s string, c ...text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors(c).Sprint(s)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer to ellipsize overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		return truncateRunes(fmt.Sprint(val), max)
	}
}

// truncateRunes truncates a string to (max) runes with ellipsis.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		words[i] = strings.ToUpper(string(r)) + word[size:]
	}
	return strings.Join(words, " ")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// printer remembers the first write error so callers check it once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) blank() {
	p.line("")
}

func (p *printer) heading(title string) {
	p.line("%s", title)
	p.line("%s", strings.Repeat("=", utf8.RuneCountInString(title)))
}

func (p *printer) subheading(title string) {
	p.line("%s:", title)
}

// block writes free text soft-wrapped to the given width and indented.
func (p *printer) block(s string, width int) {
	wrapAt := clampInt(width-4, 20, 120)
	for _, para := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if para == "" {
			p.blank()
			continue
		}
		for _, l := range strings.Split(text.WrapSoft(para, wrapAt), "\n") {
			p.line("  %s", l)
		}
	}
}

// RenderConsole renders a report view with the default console formatter.
func RenderConsole(w io.Writer, v report.View) error {
	return NewConsoleFormatter().RenderReport(w, v)
}
