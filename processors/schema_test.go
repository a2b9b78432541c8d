package processors

import (
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	rec, ok := ExtractJSON(`{"crowd_density": "high", "confidence_score": 0.9}`)
	if !ok {
		t.Fatal("expected valid JSON to be extracted")
	}
	if rec["crowd_density"] != "high" {
		t.Errorf("expected crowd_density high, got %v", rec["crowd_density"])
	}

	// Models wrap JSON in prose and markdown fences; only the brace span counts.
	rec, ok = ExtractJSON("Here is the analysis:\n```json\n{\"crowd_behavior\": \"calm\"}\n```\nLet me know if you need more.")
	if !ok {
		t.Fatal("expected JSON embedded in prose to be extracted")
	}
	if rec["crowd_behavior"] != "calm" {
		t.Errorf("expected crowd_behavior calm, got %v", rec["crowd_behavior"])
	}

	if _, ok := ExtractJSON("no braces here at all"); ok {
		t.Error("expected extraction to fail without braces")
	}
	if _, ok := ExtractJSON("{not valid json}"); ok {
		t.Error("expected extraction to fail on malformed JSON")
	}
	if _, ok := ExtractJSON(""); ok {
		t.Error("expected extraction to fail on empty input")
	}
}

func TestRepairFillsMissingFields(t *testing.T) {
	rec := visionSchema.Repair(map[string]any{})
	for _, f := range visionSchema.Fields {
		if _, present := rec[f.Name]; !present {
			t.Errorf("field %s missing after repair", f.Name)
		}
	}
	if rec["crowd_density"] != "moderate" {
		t.Errorf("expected default crowd_density moderate, got %v", rec["crowd_density"])
	}
	if rec["confidence_score"] != 0.5 {
		t.Errorf("expected default confidence_score 0.5, got %v", rec["confidence_score"])
	}
	if lst, ok := rec["potential_risks"].([]any); !ok || len(lst) != 0 {
		t.Errorf("expected empty potential_risks list, got %v", rec["potential_risks"])
	}
}

func TestRepairClampsScores(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{1.5, 1.0},
		{-0.2, 0.0},
		{0.7, 0.7},
		{"0.8", 0.8},
		{"not a number", 0.5},
		{true, 1.0},
		{false, 0.0},
		{nil, 0.5},
	}
	for _, c := range cases {
		rec := visionSchema.Repair(map[string]any{"confidence_score": c.in})
		if got := rec["confidence_score"]; got != c.want {
			t.Errorf("confidence_score %v: expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestRepairCoercesLists(t *testing.T) {
	// A bare string becomes a single-element list.
	rec := visionSchema.Repair(map[string]any{"potential_risks": "overcrowding near stage"})
	lst, ok := rec["potential_risks"].([]any)
	if !ok || len(lst) != 1 || lst[0] != "overcrowding near stage" {
		t.Errorf("expected single-element list, got %v", rec["potential_risks"])
	}

	// Empty scalars become empty lists rather than [""].
	rec = visionSchema.Repair(map[string]any{"potential_risks": ""})
	if lst, ok := rec["potential_risks"].([]any); !ok || len(lst) != 0 {
		t.Errorf("expected empty list for empty string, got %v", rec["potential_risks"])
	}

	// Mixed-type elements are stringified, nils dropped.
	rec = visionSchema.Repair(map[string]any{"safety_observations": []any{"exit blocked", 3.0, nil, true}})
	lst, ok = rec["safety_observations"].([]any)
	if !ok || len(lst) != 3 {
		t.Fatalf("expected 3 elements, got %v", rec["safety_observations"])
	}
	if lst[1] != "3" {
		t.Errorf("expected numeric element stringified as 3, got %v", lst[1])
	}
}

func TestRepairCoercesTextFields(t *testing.T) {
	rec := visionSchema.Repair(map[string]any{"crowd_count_estimate": 2500.0})
	if rec["crowd_count_estimate"] != "2500" {
		t.Errorf("expected numeric estimate formatted as 2500, got %v", rec["crowd_count_estimate"])
	}
	rec = visionSchema.Repair(map[string]any{"crowd_density": nil})
	if rec["crowd_density"] != "moderate" {
		t.Errorf("expected nil density to take default, got %v", rec["crowd_density"])
	}
}

func TestRepairNestedObjects(t *testing.T) {
	// Partial nested object gets remaining children defaulted.
	rec := reportSchema.Repair(map[string]any{
		"event_overview": map[string]any{"event_type": "music festival"},
	})
	overview, ok := rec["event_overview"].(map[string]any)
	if !ok {
		t.Fatalf("expected event_overview map, got %T", rec["event_overview"])
	}
	if overview["event_type"] != "music festival" {
		t.Errorf("expected provided value kept, got %v", overview["event_type"])
	}
	if overview["overall_status"] != "yellow" {
		t.Errorf("expected default overall_status yellow, got %v", overview["overall_status"])
	}

	// Non-map value for an object field is replaced with the default object.
	rec = reportSchema.Repair(map[string]any{"event_overview": "green"})
	if _, ok := rec["event_overview"].(map[string]any); !ok {
		t.Errorf("expected object replacement, got %T", rec["event_overview"])
	}
}

func TestRepairObjectLists(t *testing.T) {
	rec := reportSchema.Repair(map[string]any{
		"priority_issues": []any{
			map[string]any{"issue": "gate congestion"},
			"not an object",
			map[string]any{"issue": "medical tent understaffed", "severity": "high"},
		},
	})
	issues, ok := rec["priority_issues"].([]any)
	if !ok {
		t.Fatalf("expected list, got %T", rec["priority_issues"])
	}
	if len(issues) != 2 {
		t.Fatalf("expected non-object elements dropped, got %d elements", len(issues))
	}
	first, ok := issues[0].(map[string]any)
	if !ok {
		t.Fatalf("expected map element, got %T", issues[0])
	}
	if first["issue"] != "gate congestion" {
		t.Errorf("expected issue kept, got %v", first["issue"])
	}
	if first["severity"] != "" {
		t.Errorf("expected missing severity defaulted to empty string, got %v", first["severity"])
	}

	// A scalar in place of the list collapses to empty.
	rec = reportSchema.Repair(map[string]any{"priority_issues": "none"})
	if issues, ok := rec["priority_issues"].([]any); !ok || len(issues) != 0 {
		t.Errorf("expected empty object list, got %v", rec["priority_issues"])
	}
}

func TestDefaultRecordCoversAllSchemas(t *testing.T) {
	for _, s := range []Schema{visionSchema, reportSchema, fusionSchema, answerSchema} {
		rec := s.DefaultRecord()
		for _, f := range s.Fields {
			if _, present := rec[f.Name]; !present {
				t.Errorf("schema %s: default record missing %s", s.Name, f.Name)
			}
		}
	}
}

func TestDecodeIntoVisionRecord(t *testing.T) {
	raw := strings.ReplaceAll(mockVisionResponse, "\n", " ")
	rec, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("mock vision response should parse")
	}
	var analysis struct {
		CrowdDensity    string   `json:"crowd_density"`
		ConfidenceScore float64  `json:"confidence_score"`
		SafetyObs       []string `json:"safety_observations"`
	}
	if err := decodeInto(visionSchema.Repair(rec), &analysis); err != nil {
		t.Fatalf("decodeInto failed: %v", err)
	}
	if analysis.CrowdDensity != "moderate" {
		t.Errorf("expected moderate density, got %s", analysis.CrowdDensity)
	}
	if analysis.ConfidenceScore != 0.8 {
		t.Errorf("expected confidence 0.8, got %f", analysis.ConfidenceScore)
	}
	if len(analysis.SafetyObs) != 2 {
		t.Errorf("expected 2 safety observations, got %d", len(analysis.SafetyObs))
	}
}
