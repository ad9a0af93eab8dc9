package report

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape tags which branch of the result union a sub-payload belongs to.
type Shape int

const (
	// Structured payloads parsed into the expected schema. Every field is
	// still independently optional.
	Structured Shape = iota
	// Unstructured payloads are the upstream raw-text fallback.
	Unstructured
)

// String returns the lower-case name of the shape.
func (s Shape) String() string {
	switch s {
	case Structured:
		return "structured"
	case Unstructured:
		return "unstructured"
	default:
		return "unknown"
	}
}

// Section is the classified form of one result sub-payload.
//
// Exactly one branch is meaningful: Value when Shape is Structured, Raw when
// Shape is Unstructured. Missing is set when the payload was absent or null;
// such a section is Structured with a zero Value.
type Section[T any] struct {
	Shape   Shape
	Value   T
	Raw     string
	Missing bool
}

// MarshalJSON implements json.Marshaler.
func (s Section[T]) MarshalJSON() ([]byte, error) {
	out := map[string]any{"shape": s.Shape.String()}
	switch {
	case s.Missing:
		out["missing"] = true
	case s.Shape == Unstructured:
		out["raw"] = s.Raw
	default:
		out["data"] = s.Value
	}
	return json.Marshal(out)
}

// fieldDecoder is implemented by the structured payload types.
type fieldDecoder[T any] interface {
	*T
	decodeFields(fields map[string]json.RawMessage)
}

// Classify turns a raw sub-payload into a Section. It never fails: a payload
// whose "error" member is truthy and whose "raw" member is a string is
// Unstructured, everything else is Structured with whatever fields could be
// read.
func Classify[T any, PT fieldDecoder[T]](raw json.RawMessage) Section[T] {
	var sec Section[T]
	if isNull(raw) {
		sec.Missing = true
		return sec
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return sec
	}

	if text, ok := rawFallback(fields); ok {
		sec.Shape = Unstructured
		sec.Raw = text
		return sec
	}

	PT(&sec.Value).decodeFields(fields)
	return sec
}

// ClassifyAnalysis classifies the "analysis" sub-payload.
func ClassifyAnalysis(raw json.RawMessage) Section[AnalysisData] {
	return Classify[AnalysisData](raw)
}

// ClassifyExtracted classifies the "structured" sub-payload.
func ClassifyExtracted(raw json.RawMessage) Section[ExtractedData] {
	return Classify[ExtractedData](raw)
}

func rawFallback(fields map[string]json.RawMessage) (string, bool) {
	if !truthy(fields["error"]) {
		return "", false
	}
	rawField, ok := fields["raw"]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(rawField, &text); err != nil {
		return "", false
	}
	return text, true
}

// truthy follows JavaScript truthiness, which is what the service's own
// front end used to decide the fallback branch.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

// scalar renders a JSON scalar as text. Numbers keep their literal form.
// Objects, arrays and null become "".
func scalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return ""
		}
		if b {
			return "true"
		}
		return "false"
	case '{', '[', 'n':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return ""
		}
		return n.String()
	}
}

// lookup returns the first present, non-null member among keys.
func lookup(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := fields[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

func text(fields map[string]json.RawMessage, keys ...string) string {
	return scalar(lookup(fields, keys...))
}

// objects decodes a JSON array, keeping only elements that are objects.
func objects(raw json.RawMessage) []map[string]json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		out = append(out, fields)
	}
	return out
}

// orderedEntries decodes a JSON object preserving member order.
func orderedEntries(raw json.RawMessage) []MetaEntry {
	if isNull(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var out []MetaEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out
		}
		key, ok := keyTok.(string)
		if !ok {
			return out
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return out
		}
		entry := MetaEntry{Key: key}
		if truthy(val) {
			entry.Value = scalar(val)
		}
		out = append(out, entry)
	}
	return out
}

func normalizeLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
