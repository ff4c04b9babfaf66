package circular

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/uniscan/internal/utils"
)

const (
	boundedSpanLimit = 50000
	contextRadius    = 120
)

// ErrTypeMismatch is returned when the model output is valid JSON but not an object.
var ErrTypeMismatch = errors.New("circular payload is not a JSON object")

// ParseError reports model output that could not be parsed even after repair.
type ParseError struct {
	// Offset is the byte offset of the first syntax error within the extracted span.
	Offset int64
	// Context is a window of the extracted text around Offset.
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse circular json at offset %d: %v (near %q)", e.Offset, e.Err, e.Context)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Normalize turns raw model output into a canonical Circular. The circular link
// is always forced to requestedURL.
func Normalize(raw, requestedURL string) (*Circular, error) {
	candidate := extractSpan(stripFences(raw))

	value, err := parseCandidate(candidate)
	if err != nil {
		return nil, err
	}

	obj, err := topLevelObject(value)
	if err != nil {
		return nil, err
	}

	obj["circularLink"] = requestedURL
	applyDefaults(obj)

	c, err := decodeCanonical(obj)
	if err != nil {
		return nil, err
	}
	c.CircularLink = requestedURL

	return c, nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSpace(text)
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

// extractSpan returns the text from the first '{' to the last '}'. A bare
// top-level list is kept whole and an unclosed object runs to the end of text.
func extractSpan(text string) string {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text
	}
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}

func boundedSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}
	limit := start + boundedSpanLimit + 2
	if limit > len(text) {
		limit = len(text)
	}
	end := strings.LastIndexByte(text[start:limit], '}')
	if end <= 0 {
		return "", false
	}
	return text[start : start+end+1], true
}

func parseCandidate(candidate string) (any, error) {
	value, firstErr := decodeJSON(candidate)
	if firstErr == nil {
		return value, nil
	}

	if repaired := Repair(candidate); repaired != candidate {
		if value, err := decodeJSON(repaired); err == nil {
			return value, nil
		}
	}

	if span, ok := boundedSpan(candidate); ok && span != candidate {
		if value, err := decodeJSON(Repair(span)); err == nil {
			return value, nil
		}
	}

	return nil, newParseError(candidate, firstErr)
}

func decodeJSON(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func newParseError(text string, err error) *ParseError {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		offset = int64(len(text))
	}

	return &ParseError{
		Offset:  offset,
		Context: utils.ContextWindow(text, int(offset), contextRadius),
		Err:     err,
	}
}

func topLevelObject(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty list", ErrTypeMismatch)
		}
		obj, ok := v[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: first list element is %s", ErrTypeMismatch, jsonKind(v[0]))
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("%w: got %s", ErrTypeMismatch, jsonKind(value))
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func applyDefaults(obj map[string]any) {
	ensureObject(obj, "applicationPeriod", "start", "end")
	ensureObject(obj, "generalGpaRequirements", "ssc", "hsc", "total", "with4thSubject")

	years := ensureObject(obj, "yearRequirements")
	years["sscYears"] = stringList(years["sscYears"])
	years["hscYears"] = stringList(years["hscYears"])

	obj["requiredDocuments"] = stringList(obj["requiredDocuments"])

	departments := []any{}
	if list, ok := obj["departmentWiseRequirements"].([]any); ok {
		for _, item := range list {
			dept, ok := item.(map[string]any)
			if !ok {
				continue
			}
			dept["requiredSubjects"] = stringList(dept["requiredSubjects"])
			dept["admissionTestSubjects"] = stringList(dept["admissionTestSubjects"])
			departments = append(departments, dept)
		}
	}
	obj["departmentWiseRequirements"] = departments
}

func ensureObject(obj map[string]any, key string, subKeys ...string) map[string]any {
	nested, ok := obj[key].(map[string]any)
	if !ok {
		nested = map[string]any{}
		obj[key] = nested
	}
	for _, sub := range subKeys {
		if _, exists := nested[sub]; !exists {
			nested[sub] = nil
		}
	}
	return nested
}

// stringList keeps string and numeric entries, rendering numbers as text.
func stringList(v any) []any {
	out := []any{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		switch val := item.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				out = append(out, val)
			}
		case float64:
			out = append(out, strconv.FormatFloat(val, 'f', -1, 64))
		}
	}
	return out
}
