package processors

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Model responses are free text that should contain a JSON object. Each
// response shape is described by a Schema: a table of expected fields with a
// kind and a default. Repair never rejects a record, it fills what is missing
// and coerces what has the wrong shape so downstream decoding cannot fail.

// Kind classifies the value shape of a schema field.
type Kind int

const (
	KindText Kind = iota
	KindScore
	KindList
	KindObject
	KindObjectList
)

// Field is one expected key in a model response.
type Field struct {
	Name     string
	Kind     Kind
	Default  any
	Children []Field // members for KindObject and KindObjectList elements
}

// Schema is the validation table for one response shape.
type Schema struct {
	Name   string
	Fields []Field
}

// ExtractJSON pulls the JSON object out of a free-text model reply by taking
// the substring from the first '{' to the last '}'. Returns false when no
// parseable object is present.
func ExtractJSON(raw string) (map[string]any, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rec); err != nil {
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	return rec, true
}

// Repair fills missing fields with defaults and coerces present ones to the
// declared kind. Unknown keys are left alone. The record is modified in
// place and returned for chaining.
func (s Schema) Repair(rec map[string]any) map[string]any {
	repairFields(rec, s.Fields)
	return rec
}

// DefaultRecord builds a record holding every field's default.
func (s Schema) DefaultRecord() map[string]any {
	rec := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		rec[f.Name] = defaultValue(f)
	}
	return rec
}

func repairFields(rec map[string]any, fields []Field) {
	for _, f := range fields {
		v, ok := rec[f.Name]
		if !ok || v == nil {
			rec[f.Name] = defaultValue(f)
			continue
		}
		switch f.Kind {
		case KindText:
			if _, isString := v.(string); !isString {
				rec[f.Name] = formatValue(v)
			}
		case KindScore:
			def, _ := f.Default.(float64)
			rec[f.Name] = clampScore(v, def)
		case KindList:
			rec[f.Name] = coerceList(v)
		case KindObject:
			obj, isMap := v.(map[string]any)
			if !isMap {
				obj = make(map[string]any)
			}
			repairFields(obj, f.Children)
			rec[f.Name] = obj
		case KindObjectList:
			rec[f.Name] = coerceObjectList(v, f.Children)
		}
	}
}

func defaultValue(f Field) any {
	switch f.Kind {
	case KindList:
		if def, ok := f.Default.([]string); ok {
			return append([]string(nil), def...)
		}
		return []any{}
	case KindObject:
		obj := make(map[string]any, len(f.Children))
		repairFields(obj, f.Children)
		return obj
	case KindObjectList:
		return []any{}
	default:
		return f.Default
	}
}

// clampScore mirrors the numeric coercion applied to confidence values:
// numbers are clamped into [0,1], numeric strings are parsed first, booleans
// map to 1 and 0, anything else yields the default.
func clampScore(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return clamp01(n)
	case int:
		return clamp01(float64(n))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return clamp01(f)
		}
		return def
	case bool:
		if n {
			return 1.0
		}
		return 0.0
	default:
		return def
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// coerceList turns any value into a list of strings: lists keep their
// elements (stringified when needed), empty-ish scalars become an empty
// list, everything else becomes a single-element list.
func coerceList(v any) []any {
	switch items := v.(type) {
	case []any:
		out := make([]any, 0, len(items))
		for _, it := range items {
			if it == nil {
				continue
			}
			out = append(out, formatValue(it))
		}
		return out
	case []string:
		out := make([]any, 0, len(items))
		for _, it := range items {
			out = append(out, it)
		}
		return out
	default:
		if isEmptyValue(v) {
			return []any{}
		}
		return []any{formatValue(v)}
	}
}

func coerceObjectList(v any, children []Field) []any {
	items, isList := v.([]any)
	if !isList {
		return []any{}
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		obj, isMap := it.(map[string]any)
		if !isMap {
			continue
		}
		repairFields(obj, children)
		out = append(out, obj)
	}
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// decodeInto round-trips a repaired record into a typed struct. Repair
// guarantees the kinds line up, so failures here indicate a schema bug.
func decodeInto(rec map[string]any, out any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
