package report

// View is a report ready for presentation: both sub-payloads classified.
type View struct {
	ID        string                 `json:"id,omitempty"`
	FileName  string                 `json:"fileName"`
	CreatedAt Timestamp              `json:"createdAt,omitzero"`
	Analysis  Section[AnalysisData]  `json:"analysis"`
	Extracted Section[ExtractedData] `json:"structured"`
}

// Normalize classifies the analysis and structured payloads of s
// independently of each other.
func Normalize(s Summary) View {
	created := s.CreatedAt
	if created.IsZero() {
		created = s.Result.Time
	}
	return View{
		ID:        s.ID,
		FileName:  s.FileName,
		CreatedAt: created,
		Analysis:  ClassifyAnalysis(s.Result.Analysis),
		Extracted: ClassifyExtracted(s.Result.Structured),
	}
}

// NormalizeDetail is Normalize for a fetched detail.
func NormalizeDetail(d *Detail) View {
	if d == nil {
		return View{
			Analysis:  Section[AnalysisData]{Missing: true},
			Extracted: Section[ExtractedData]{Missing: true},
		}
	}
	return Normalize(d.Summary())
}

// Navigable reports whether the view refers to a persisted report.
func (v View) Navigable() bool {
	return v.ID != ""
}
