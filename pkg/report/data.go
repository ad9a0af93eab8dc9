package report

import (
	"encoding/json"
	"strings"
)

// DefaultStatus is displayed for a test row that carries no status.
const DefaultStatus = "Normal"

// abnormalMarkers are matched as case-insensitive substrings of a test
// status. This is deliberately not an enum: statuses are free text written
// by the upstream analysis pipeline.
var abnormalMarkers = []string{"high", "low", "abnormal"}

// ExtractedData is the structured form of the "structured" sub-payload: the
// data read off the uploaded document.
type ExtractedData struct {
	Meta    []MetaEntry  `json:"meta,omitempty"`
	Tests   []TestResult `json:"tests,omitempty"`
	RawText string       `json:"rawText,omitempty"`
}

// MetaEntry is one label/value pair from the document header, in the order
// the service sent it.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Label returns the key in display form ("patient_name" -> "patient name").
func (m MetaEntry) Label() string {
	return normalizeLabel(m.Key)
}

// TestResult is one row of the lab test table.
type TestResult struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"referenceRange"`
	Status         string `json:"status,omitempty"`
}

// DisplayStatus returns the status, defaulting to DefaultStatus.
func (t TestResult) DisplayStatus() string {
	if t.Status == "" {
		return DefaultStatus
	}
	return t.Status
}

// Abnormal reports whether the status marks the result as out of range.
func (t TestResult) Abnormal() bool {
	return IsAbnormalStatus(t.Status)
}

// IsAbnormalStatus applies the substring rule to a free-text status.
// "HIGH", "Low" and "ABNORMAL" are abnormal; "Normal" and "" are not.
func IsAbnormalStatus(status string) bool {
	lowered := strings.ToLower(status)
	for _, marker := range abnormalMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// VisibleMeta returns the meta entries that have a displayable value.
func (e ExtractedData) VisibleMeta() []MetaEntry {
	out := make([]MetaEntry, 0, len(e.Meta))
	for _, m := range e.Meta {
		if m.Value != "" {
			out = append(out, m)
		}
	}
	return out
}

// AbnormalCount returns the number of test rows classified abnormal.
func (e ExtractedData) AbnormalCount() int {
	n := 0
	for _, t := range e.Tests {
		if t.Abnormal() {
			n++
		}
	}
	return n
}

// Empty reports whether nothing displayable was extracted.
func (e ExtractedData) Empty() bool {
	return len(e.VisibleMeta()) == 0 && len(e.Tests) == 0
}

func (e *ExtractedData) decodeFields(fields map[string]json.RawMessage) {
	e.Meta = orderedEntries(lookup(fields, "meta"))
	for _, row := range objects(lookup(fields, "tests")) {
		e.Tests = append(e.Tests, TestResult{
			Name:           text(row, "name"),
			Value:          text(row, "value"),
			Unit:           text(row, "unit"),
			ReferenceRange: text(row, "referenceRange", "reference_range"),
			Status:         text(row, "status"),
		})
	}
	e.RawText = text(fields, "rawText", "raw_text")
}

// AnalysisData is the structured form of the "analysis" sub-payload.
type AnalysisData struct {
	Summary             string    `json:"summary,omitempty"`
	AbnormalFindings    []Finding `json:"abnormalFindings,omitempty"`
	GeneralHealthAdvice string    `json:"generalHealthAdvice,omitempty"`
	WhenToSeeDoctor     string    `json:"whenToSeeDoctor,omitempty"`
}

// Finding is one entry of the abnormal findings list.
type Finding struct {
	Test               string `json:"test"`
	Value              string `json:"value"`
	NormalRange        string `json:"normalRange"`
	Interpretation     string `json:"interpretation"`
	PossibleCauses     string `json:"possibleCauses,omitempty"`
	RecommendedActions string `json:"recommendedActions,omitempty"`
}

// Empty reports whether no analysis section has content.
func (a AnalysisData) Empty() bool {
	return a.Summary == "" && len(a.AbnormalFindings) == 0 &&
		a.GeneralHealthAdvice == "" && a.WhenToSeeDoctor == ""
}

func (a *AnalysisData) decodeFields(fields map[string]json.RawMessage) {
	a.Summary = text(fields, "summary")
	for _, row := range objects(lookup(fields, "abnormalFindings", "abnormal_findings")) {
		a.AbnormalFindings = append(a.AbnormalFindings, Finding{
			Test:               text(row, "test"),
			Value:              text(row, "value"),
			NormalRange:        text(row, "normalRange", "normal_range"),
			Interpretation:     text(row, "interpretation"),
			PossibleCauses:     text(row, "possibleCauses", "possible_causes"),
			RecommendedActions: text(row, "recommendedActions", "recommended_actions"),
		})
	}
	a.GeneralHealthAdvice = text(fields, "generalHealthAdvice", "general_health_advice")
	a.WhenToSeeDoctor = text(fields, "whenToSeeDoctor", "when_to_see_doctor")
}
