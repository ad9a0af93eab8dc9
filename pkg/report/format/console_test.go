package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/greg-hellings/mediscan/pkg/report"
)

// sampleSummary builds a report the way the service returns it.
func sampleSummary(t *testing.T, body string) report.Summary {
	t.Helper()
	var s report.Summary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	return s
}

const glucoseReport = `{
	"_id": "abc123",
	"file": "lab1.pdf",
	"createdAt": "2024-05-01T10:30:00",
	"result": {
		"structured": {
			"meta": {"patient_name": "Jane Doe", "lab": ""},
			"tests": [{"name": "Glucose", "value": "110", "unit": "mg/dL", "referenceRange": "70-100", "status": "High"}]
		},
		"analysis": {"summary": "Elevated glucose."}
	}
}`

func newTestFormatter(colors bool) *ConsoleFormatter {
	f := NewConsoleFormatter()
	f.EnableColors = colors
	f.Width = 120
	f.Now = func() time.Time { return time.Date(2024, 5, 3, 10, 30, 0, 0, time.UTC) }
	return f
}

func TestRenderReportStructured(t *testing.T) {
	v := report.Normalize(sampleSummary(t, glucoseReport))

	var buf bytes.Buffer
	if err := newTestFormatter(false).RenderReport(&buf, v); err != nil {
		t.Fatalf("RenderReport returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, "Report: lab1.pdf", "file name header missing")
	expectContains(t, out, "ID: abc123", "id line missing")
	expectContains(t, out, "Medical Analysis", "analysis heading missing")
	expectContains(t, out, "Elevated glucose.", "summary must render verbatim")
	expectContains(t, out, "Extracted Data", "extracted heading missing")
	expectContains(t, out, "Patient Name: Jane Doe", "meta label missing")
	expectContains(t, out, "Test Name", "tests header missing")
	expectContains(t, out, "Ref Range", "tests header missing")
	expectContains(t, out, "Glucose", "test row missing")
	expectContains(t, out, "70-100", "reference range missing")
	expectContains(t, out, "High", "status missing")
	expectContains(t, out, "1 of 1 tests flagged abnormal", "abnormal count missing")

	if strings.Contains(out, "Lab:") {
		t.Errorf("empty meta values must be hidden:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI color sequences found when colors disabled")
	}
}

func TestRenderReportAbnormalBadgeIsRed(t *testing.T) {
	v := report.Normalize(sampleSummary(t, glucoseReport))

	var buf bytes.Buffer
	if err := newTestFormatter(true).RenderReport(&buf, v); err != nil {
		t.Fatalf("RenderReport returned error: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "\x1b[31") {
		t.Errorf("expected red status badge, got:\n%q", out)
	}
	if strings.Contains(out, "\x1b[32") {
		t.Errorf("no row is normal, green badge unexpected:\n%q", out)
	}
	expectContains(t, stripANSI(out), "High", "status text missing after stripping colors")
}

func TestRenderReportNormalBadgeIsGreen(t *testing.T) {
	s := sampleSummary(t, `{"_id": "n1", "file": "ok.png", "result": {"structured": {"tests": [{"name": "Sodium", "value": "140"}]}}}`)

	var buf bytes.Buffer
	if err := newTestFormatter(true).RenderReport(&buf, report.Normalize(s)); err != nil {
		t.Fatalf("RenderReport returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[32") {
		t.Errorf("expected green status badge, got:\n%q", out)
	}
	expectContains(t, stripANSI(out), "Normal", "absent status must display Normal")
}

func TestRenderReportIndependentSections(t *testing.T) {
	s := sampleSummary(t, `{
		"_id": "r2",
		"file": "lab2.pdf",
		"result": {
			"analysis": {"error": true, "raw": "Glucose looks elevated, see a doctor."},
			"structured": {"tests": [{"name": "Glucose", "value": "110", "unit": "mg/dL", "reference_range": "70-100", "status": "High"}]}
		}
	}`)

	var buf bytes.Buffer
	if err := newTestFormatter(false).RenderReport(&buf, report.Normalize(s)); err != nil {
		t.Fatalf("RenderReport returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, RawAnalysisNote, "raw fallback note missing")
	expectContains(t, out, "Glucose looks elevated, see a doctor.", "raw analysis text missing")
	expectContains(t, out, "Test Name", "structured table must still render")
	expectContains(t, out, "mg/dL", "structured row must still render")
}

func TestRenderReportMissingSections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "both missing",
			body: `{"_id": "x", "file": "a.pdf", "result": {}}`,
			want: []string{NoAnalysisMessage, NoExtractedMessage, "Analyzed: unknown"},
		},
		{
			name: "raw structured",
			body: `{"_id": "x", "file": "a.pdf", "result": {"structured": {"error": "invalid json", "raw": "OCR dump"}}}`,
			want: []string{RawExtractedNote, "OCR dump", NoAnalysisMessage},
		},
		{
			name: "only raw text extracted",
			body: `{"_id": "x", "file": "a.pdf", "result": {"structured": {"raw_text": "scanned words"}}}`,
			want: []string{RawExtractedNote, "scanned words"},
		},
		{
			name: "full analysis",
			body: `{"_id": "x", "file": "a.pdf", "result": {"analysis": {
				"abnormal_findings": [{"test": "LDL", "value": "190", "normal_range": "<100", "interpretation": "High cholesterol", "possible_causes": "diet"}],
				"general_health_advice": "Eat more fiber.",
				"when_to_see_doctor": "Within two weeks."
			}}}`,
			want: []string{"Abnormal Findings / Attention Needed", "LDL", "High cholesterol", "Possible causes: diet", "Health Advice:", "Eat more fiber.", "Recommendation:", "Within two weeks."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := newTestFormatter(false).RenderReport(&buf, report.Normalize(sampleSummary(t, tt.body))); err != nil {
				t.Fatalf("RenderReport returned error: %v", err)
			}
			for _, w := range tt.want {
				expectContains(t, buf.String(), w, tt.name)
			}
		})
	}
}

func TestRenderHistory(t *testing.T) {
	items := []report.Summary{
		sampleSummary(t, glucoseReport),
		sampleSummary(t, `{"_id": "r2", "file": "scan.png", "result": {"analysis": {"error": 1, "raw": "free text"}}}`),
		{FileName: "pending.pdf"},
	}

	var buf bytes.Buffer
	if err := newTestFormatter(false).RenderHistory(&buf, items); err != nil {
		t.Fatalf("RenderHistory returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, "abc123", "first id missing")
	expectContains(t, out, "lab1.pdf", "first file missing")
	expectContains(t, out, "2 days ago", "relative time missing")
	expectContains(t, out, "Elevated glucose.", "summary preview missing")
	expectContains(t, out, "(unstructured) free text", "raw preview missing")
	expectContains(t, out, "(unsaved)", "transient entry marker missing")
	expectContains(t, out, "Total Reports: 3", "total line missing")

	// Server order is preserved.
	if strings.Index(out, "lab1.pdf") > strings.Index(out, "scan.png") {
		t.Errorf("history rows reordered:\n%s", out)
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := newTestFormatter(false).RenderHistory(&buf, nil); err != nil {
		t.Fatalf("RenderHistory returned error: %v", err)
	}
	expectContains(t, buf.String(), NoReportsMessage, "empty state missing")
}

func TestRendererJSON(t *testing.T) {
	r, err := NewRenderer(FormatJSON, false)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	var buf bytes.Buffer
	if err := r.Report(&buf, report.Normalize(sampleSummary(t, glucoseReport))); err != nil {
		t.Fatalf("Report: %v", err)
	}

	var decoded struct {
		ID       string `json:"id"`
		Analysis struct {
			Shape string `json:"shape"`
			Data  struct {
				Summary string `json:"summary"`
			} `json:"data"`
		} `json:"analysis"`
		Structured struct {
			Data struct {
				Tests []map[string]string `json:"tests"`
			} `json:"data"`
		} `json:"structured"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded.ID != "abc123" || decoded.Analysis.Shape != "structured" || decoded.Analysis.Data.Summary != "Elevated glucose." {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
	if len(decoded.Structured.Data.Tests) != 1 || decoded.Structured.Data.Tests[0]["status"] != "High" {
		t.Errorf("unexpected tests: %s", buf.String())
	}

	buf.Reset()
	if err := r.History(&buf, []report.Summary{{ID: "a"}, {}}); err != nil {
		t.Fatalf("History: %v", err)
	}
	var loose []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &loose); err != nil {
		t.Fatalf("history output is not JSON: %v", err)
	}
	if len(loose) != 2 || loose[0]["navigable"] != true || loose[1]["navigable"] != false {
		t.Errorf("unexpected history JSON: %s", buf.String())
	}
}

func TestNewRendererRejectsUnknownFormat(t *testing.T) {
	if _, err := NewRenderer("xml", true); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"x", 0, ""},
		{"ab", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func expectContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%s: expected to contain %q\nFull output:\n%s", msg, substr, s)
	}
}

// stripANSI removes ANSI escape sequences for simplified checks.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b {
			inEsc = true
			continue
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
