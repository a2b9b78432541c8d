package processors

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"eventAwareness/core"
)

func fusionSnapshot() *core.QueryContext {
	return &core.QueryContext{
		FusionSummary: core.FusionSummary{
			ExecutiveSummary: core.ExecutiveSummary{
				OverallSituation:  "Event running smoothly",
				ThreatLevel:       "green",
				ImmediateConcerns: []string{"Entrance queue length"},
			},
			ZoneAnalysis: []core.FusionZone{{
				ZoneName:         "North Plaza",
				StatusAssessment: "stable",
				CrowdSituation:   map[string]any{"density_level": "high", "crowd_behavior": "excited"},
			}},
			AnalyzedAt: time.Now().Format(time.RFC3339),
		},
		ReportAnalysis: core.ReportAnalysis{
			EventOverview:  core.EventOverview{OverallStatus: "yellow"},
			PriorityIssues: []core.PriorityIssue{{Issue: "Gate B scanner down", Zone: "Gate B"}},
			AnalyzedAt:     time.Now().Format(time.RFC3339),
		},
		ZoneSummaries: sampleZoneSummaries(),
		LastUpdate:    time.Now(),
	}
}

func TestAnswerQuestionNilSnapshot(t *testing.T) {
	qe := NewQueryEngine(&MockProvider{})
	answer := qe.AnswerQuestion(context.Background(), nil, "How is the event going?", nil)

	if !answer.Error {
		t.Fatal("expected error flag without a snapshot")
	}
	if answer.Confidence != 0.0 {
		t.Errorf("confidence = %v, want 0", answer.Confidence)
	}
	if answer.Question != "How is the event going?" {
		t.Errorf("question = %q", answer.Question)
	}
	if !strings.Contains(answer.ErrorMessage, "No contextual data available") {
		t.Errorf("error message = %q", answer.ErrorMessage)
	}
}

func TestAnswerQuestionWithMockProvider(t *testing.T) {
	qe := NewQueryEngine(&MockProvider{})
	answer := qe.AnswerQuestion(context.Background(), fusionSnapshot(), "What is the threat level?", nil)

	if answer.Error || answer.ParsingError {
		t.Fatalf("expected clean answer, got %+v", answer)
	}
	if answer.Answer == "" {
		t.Error("answer text should not be empty")
	}
	if answer.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", answer.Confidence)
	}
	if answer.Question != "What is the threat level?" {
		t.Errorf("question = %q", answer.Question)
	}
	if answer.AnsweredAt == "" {
		t.Error("missing answer timestamp")
	}
}

func TestAnswerQuestionProviderError(t *testing.T) {
	qe := NewQueryEngine(&stubProvider{err: errors.New("timeout")})
	answer := qe.AnswerQuestion(context.Background(), fusionSnapshot(), "anything", nil)

	if !answer.Error {
		t.Fatal("expected error flag on provider failure")
	}
	if !strings.Contains(answer.ErrorMessage, "timeout") {
		t.Errorf("error message should carry the cause, got %q", answer.ErrorMessage)
	}
}

func TestAnswerQuestionUnparseableReply(t *testing.T) {
	qe := NewQueryEngine(&stubProvider{textResponse: "About two thousand people are on site."})
	answer := qe.AnswerQuestion(context.Background(), fusionSnapshot(), "How many attendees?", nil)

	if !answer.ParsingError {
		t.Fatal("expected parsing error flag for prose reply")
	}
	if answer.Error {
		t.Error("parsing fallback should not set the hard error flag")
	}
	if !strings.Contains(answer.Answer, "two thousand people") {
		t.Errorf("raw reply should surface in the answer, got %q", answer.Answer)
	}
	if answer.RawResponse == "" {
		t.Error("raw response should be preserved")
	}
}

func TestAnswerQuestionIncludesEvidence(t *testing.T) {
	stub := &stubProvider{textResponse: `{"answer": "Crowding is heaviest at the north entrance.", "confidence": 0.8}`}
	qe := NewQueryEngine(stub)
	evidence := []string{"North Plaza (vision): Crowd density high with excited behavior across 3 analyzed frames."}
	answer := qe.AnswerQuestion(context.Background(), fusionSnapshot(), "Where is it most crowded?", evidence)

	if answer.Error || answer.ParsingError {
		t.Fatalf("expected clean answer, got %+v", answer)
	}
	if !strings.Contains(stub.lastPrompt, "=== RELEVANT ZONE INSIGHTS ===") {
		t.Error("prompt should carry an insights section when evidence is supplied")
	}
	if !strings.Contains(stub.lastPrompt, evidence[0]) {
		t.Error("prompt should include the retrieved evidence line")
	}
}

func TestBuildContextDigestPrefersFusion(t *testing.T) {
	digest := BuildContextDigest(fusionSnapshot())

	for _, want := range []string{
		"=== CURRENT SITUATION SUMMARY ===",
		"Threat Level: green",
		"Immediate Concerns: Entrance queue length",
		"=== ZONE STATUS ===",
		"North Plaza: stable",
		"Crowd: high density, excited behavior",
		"=== DATA TIMESTAMP ===",
	} {
		if !strings.Contains(digest, want) {
			t.Errorf("digest missing %q\n%s", want, digest)
		}
	}
	// Lower-priority sources stay out when fusion is available.
	if strings.Contains(digest, "FIELD REPORT SUMMARY") || strings.Contains(digest, "VIDEO ANALYSIS SUMMARY") {
		t.Errorf("digest should use only the fusion source\n%s", digest)
	}
}

func TestBuildContextDigestFallsBackToReport(t *testing.T) {
	snap := fusionSnapshot()
	snap.FusionSummary.Error = true
	snap.ReportAnalysis.PriorityIssues = []core.PriorityIssue{
		{Issue: "Issue one", Zone: "A"},
		{Issue: "Issue two", Zone: "B"},
		{Issue: "Issue three", Zone: "C"},
		{Issue: "Issue four", Zone: "D"},
	}

	digest := BuildContextDigest(snap)
	if !strings.Contains(digest, "=== FIELD REPORT SUMMARY ===") {
		t.Fatalf("expected report section\n%s", digest)
	}
	if got := strings.Count(digest, "(Zone:"); got != 3 {
		t.Errorf("rendered issues = %d, want 3", got)
	}
	if strings.Contains(digest, "Issue four") {
		t.Error("issues beyond the first three should be dropped")
	}
}

func TestBuildContextDigestFallsBackToVision(t *testing.T) {
	snap := fusionSnapshot()
	snap.FusionSummary.Error = true
	snap.ReportAnalysis.Error = true

	digest := BuildContextDigest(snap)
	if !strings.Contains(digest, "=== VIDEO ANALYSIS SUMMARY ===") {
		t.Fatalf("expected vision section\n%s", digest)
	}
	if !strings.Contains(digest, "North Plaza: high crowd density") {
		t.Errorf("digest missing zone density line\n%s", digest)
	}
}

func TestBuildContextDigestAlwaysStampsTimestamp(t *testing.T) {
	when := time.Date(2026, 6, 14, 18, 30, 0, 0, time.UTC)
	digest := BuildContextDigest(&core.QueryContext{LastUpdate: when})

	if !strings.Contains(digest, "=== DATA TIMESTAMP ===") {
		t.Error("timestamp section must always be present")
	}
	if !strings.Contains(digest, when.Format(time.RFC3339)) {
		t.Errorf("digest missing formatted timestamp\n%s", digest)
	}
}

func TestSuggestedQuestionsBeforeFirstRun(t *testing.T) {
	questions := SuggestedQuestions(nil)
	if len(questions) != 3 {
		t.Fatalf("expected 3 starter questions, got %d", len(questions))
	}
	if questions[0] != "What is the current overall situation?" {
		t.Errorf("first question = %q", questions[0])
	}
}

func TestSuggestedQuestionsFromSnapshot(t *testing.T) {
	snap := fusionSnapshot()
	snap.VisionAnalyses = []core.PerFrameAnalysis{
		{Zone: "North Plaza"},
		{Zone: "Main Stage"},
		{Zone: "Main Stage"},
		{Zone: "Food Court", Error: true},
	}

	questions := SuggestedQuestions(snap)
	if len(questions) != 8 {
		t.Fatalf("expected the cap of 8 questions, got %d: %v", len(questions), questions)
	}

	joined := strings.Join(questions, "\n")
	if !strings.Contains(joined, "What's the situation in North Plaza?") {
		t.Error("missing fusion zone question")
	}
	if !strings.Contains(joined, "How crowded is North Plaza?") || !strings.Contains(joined, "How crowded is Main Stage?") {
		t.Error("missing vision zone questions")
	}
	if strings.Contains(joined, "Food Court") {
		t.Error("zones with only failed analyses should not be suggested")
	}
}

func TestSuggestedQuestionsSkipsErrorSources(t *testing.T) {
	snap := fusionSnapshot()
	snap.FusionSummary.Error = true
	snap.ReportAnalysis.Error = true
	snap.VisionAnalyses = []core.PerFrameAnalysis{{Zone: "North Plaza", Error: true}}

	questions := SuggestedQuestions(snap)
	if len(questions) != 5 {
		t.Fatalf("expected only the 5 base questions, got %d: %v", len(questions), questions)
	}
}

func TestSuggestedQuestionsUnnamedFusionZone(t *testing.T) {
	snap := &core.QueryContext{
		FusionSummary: core.FusionSummary{ZoneAnalysis: []core.FusionZone{{ZoneName: ""}}},
	}
	questions := SuggestedQuestions(snap)
	if !strings.Contains(strings.Join(questions, "\n"), "What's the situation in Unknown?") {
		t.Errorf("unnamed zones should render as Unknown: %v", questions)
	}
}
