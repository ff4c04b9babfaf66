package circular

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// decodeCanonical builds the canonical struct from a defaulted object. Values
// whose type does not fit the target field decode to the field's zero value.
func decodeCanonical(data map[string]any) (*Circular, error) {
	var out Circular

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &out,
		TagName:    "json",
		DecodeHook: mapstructure.DecodeHookFuncType(coerceHook),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode circular: %w", err)
	}

	out.EnsureLists()
	return &out, nil
}

func coerceHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	target := to
	pointer := target.Kind() == reflect.Ptr
	if pointer {
		target = target.Elem()
	}

	value, ok := coerceValue(target, data)
	if ok {
		return value, nil
	}
	if pointer {
		return nil, nil
	}
	return reflect.Zero(target).Interface(), nil
}

func coerceValue(target reflect.Type, data any) (any, bool) {
	switch target.Kind() {
	case reflect.String:
		return coerceString(data)
	case reflect.Float64:
		return coerceFloat(data)
	case reflect.Int:
		return coerceInt(data)
	case reflect.Bool:
		return coerceBool(data)
	case reflect.Slice:
		if _, ok := data.([]any); ok {
			return data, true
		}
		return reflect.MakeSlice(target, 0, 0).Interface(), true
	case reflect.Struct:
		if _, ok := data.(map[string]any); ok {
			return data, true
		}
		return map[string]any{}, true
	default:
		return data, true
	}
}

func coerceString(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return nil, false
	}
}

func coerceFloat(v any) (any, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, ok := parseNumber(val)
		if !ok {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// coerceInt accepts whole numbers that fit a 32-bit integer column.
func coerceInt(v any) (any, bool) {
	var f float64
	switch val := v.(type) {
	case int:
		f = float64(val)
	case float64:
		f = val
	case string:
		parsed, ok := parseNumber(val)
		if !ok {
			return nil, false
		}
		f = parsed
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, false
	}
	return int(f), true
}

func coerceBool(v any) (any, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
		return nil, false
	case float64:
		return val != 0, true
	default:
		return nil, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(NormalizeDigits(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeDigits replaces Bengali digits with their ASCII counterparts.
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '০' && r <= '৯' {
			return '0' + (r - '০')
		}
		return r
	}, s)
}

// ParseGPA reads a GPA value that may use Bengali digits. ok is false when the
// text is not a number.
func ParseGPA(s string) (float64, bool) {
	return parseNumber(s)
}
