package processors

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"eventAwareness/core"
)

var answerSchema = Schema{
	Name: "query_answer",
	Fields: []Field{
		{Name: "answer", Kind: KindText, Default: "Information not available"},
		{Name: "confidence", Kind: KindScore, Default: 0.5},
		{Name: "supporting_evidence", Kind: KindList},
		{Name: "data_sources", Kind: KindList},
		{Name: "additional_context", Kind: KindText, Default: ""},
		{Name: "limitations", Kind: KindList},
		{Name: "related_information", Kind: KindList},
		{Name: "recommendations", Kind: KindList},
		{Name: "follow_up_questions", Kind: KindList},
	},
}

const queryPromptTemplate = `You are an expert situational awareness analyst answering questions about a current event situation.

Based on the provided context information, please answer the user's question with the following structured response in JSON format:

{
    "answer": "direct answer to the user's question",
    "confidence": 0.0-1.0,
    "supporting_evidence": [
        "specific data points that support this answer"
    ],
    "data_sources": [
        "which data sources were used (vision analysis, field reports, etc.)"
    ],
    "additional_context": "relevant background information",
    "limitations": [
        "any limitations or uncertainties in the answer"
    ],
    "related_information": [
        "other relevant information the user might find useful"
    ],
    "recommendations": [
        "any actionable recommendations based on the question"
    ],
    "follow_up_questions": [
        "suggested follow-up questions the user might ask"
    ]
}

Guidelines for answering:
1. Be specific and cite relevant data from the context
2. If information is not available, clearly state this
3. Provide confidence level based on data quality and completeness
4. Include relevant warnings or caveats
5. Suggest actionable next steps when appropriate
6. If the question cannot be answered with available data, explain what additional information would be needed

Remember to base your answer only on the provided context information and be honest about limitations.`

// QueryEngine answers operator questions against the latest published
// snapshot. It formats context and enforces the answer schema; the reasoning
// belongs to the model.
type QueryEngine struct {
	provider ModelProvider
}

func NewQueryEngine(provider ModelProvider) *QueryEngine {
	return &QueryEngine{provider: provider}
}

// AnswerQuestion answers a free-text question using the snapshot. Retrieved
// evidence lines, when present, are appended to the context digest. A nil
// snapshot (no analysis has run yet) yields an error-flagged answer.
func (qe *QueryEngine) AnswerQuestion(ctx context.Context, snapshot *core.QueryContext, question string, evidence []string) core.AnswerRecord {
	if snapshot == nil {
		return errorAnswer(question, "No contextual data available. Please wait for system to process current situation.")
	}

	digest := BuildContextDigest(snapshot)
	if len(evidence) > 0 {
		digest += "\n\n=== RELEVANT ZONE INSIGHTS ===\n" + strings.Join(evidence, "\n")
	}
	prompt := fmt.Sprintf("%s\n\nCONTEXT INFORMATION:\n%s\n\nUSER QUESTION: %s", queryPromptTemplate, digest, question)

	raw, err := qe.provider.AnalyzeText(ctx, prompt)
	if err != nil {
		log.Printf("Error answering query: %v", err)
		return errorAnswer(question, fmt.Sprintf("Answer generation failed: %v", err))
	}

	var answer core.AnswerRecord
	if rec, found := ExtractJSON(raw); found {
		if err := decodeInto(answerSchema.Repair(rec), &answer); err != nil {
			answer = fallbackAnswer(raw)
		}
	} else {
		answer = fallbackAnswer(raw)
	}
	answer.Question = question
	answer.AnsweredAt = time.Now().Format(time.RFC3339)
	return answer
}

// BuildContextDigest renders the snapshot as compact text for the model.
// The best available source wins: fusion summary, then report analysis,
// then raw zone aggregates.
func BuildContextDigest(snapshot *core.QueryContext) string {
	var sb strings.Builder

	fusion := snapshot.FusionSummary
	report := snapshot.ReportAnalysis
	switch {
	case !fusion.Error && fusion.AnalyzedAt != "":
		sb.WriteString("=== CURRENT SITUATION SUMMARY ===\n")
		fmt.Fprintf(&sb, "Overall Situation: %s\n", fusion.ExecutiveSummary.OverallSituation)
		fmt.Fprintf(&sb, "Threat Level: %s\n", fusion.ExecutiveSummary.ThreatLevel)
		if len(fusion.ExecutiveSummary.ImmediateConcerns) > 0 {
			fmt.Fprintf(&sb, "Immediate Concerns: %s\n", strings.Join(fusion.ExecutiveSummary.ImmediateConcerns, ", "))
		}
		if len(fusion.ZoneAnalysis) > 0 {
			sb.WriteString("\n=== ZONE STATUS ===\n")
			for _, zone := range fusion.ZoneAnalysis {
				fmt.Fprintf(&sb, "%s: %s\n", zone.ZoneName, zone.StatusAssessment)
				if len(zone.CrowdSituation) > 0 {
					density := mapString(zone.CrowdSituation, "density_level", "unknown")
					behavior := mapString(zone.CrowdSituation, "crowd_behavior", "unknown")
					fmt.Fprintf(&sb, "  Crowd: %s density, %s behavior\n", density, behavior)
				}
			}
		}
	case !report.Error && report.AnalyzedAt != "":
		sb.WriteString("=== FIELD REPORT SUMMARY ===\n")
		fmt.Fprintf(&sb, "Event Status: %s\n", report.EventOverview.OverallStatus)
		if len(report.PriorityIssues) > 0 {
			sb.WriteString("\nPriority Issues:\n")
			for i, issue := range report.PriorityIssues {
				if i >= 3 {
					break
				}
				fmt.Fprintf(&sb, "- %s (Zone: %s)\n", issue.Issue, issue.Zone)
			}
		}
	case len(snapshot.ZoneSummaries) > 0:
		sb.WriteString("=== VIDEO ANALYSIS SUMMARY ===\n")
		for _, s := range snapshot.ZoneSummaries {
			fmt.Fprintf(&sb, "%s: %s crowd density\n", s.Zone, s.PredominantDensity)
			if len(s.IdentifiedRisks) > 0 {
				risks := s.IdentifiedRisks
				if len(risks) > 3 {
					risks = risks[:3]
				}
				fmt.Fprintf(&sb, "  Risks: %s\n", strings.Join(risks, ", "))
			}
		}
	}

	sb.WriteString("\n=== DATA TIMESTAMP ===\n")
	fmt.Fprintf(&sb, "Last Updated: %s", snapshot.LastUpdate.Format(time.RFC3339))
	return sb.String()
}

// SuggestedQuestions derives question prompts from what the snapshot
// actually contains. Never empty, even before the first run.
func SuggestedQuestions(snapshot *core.QueryContext) []string {
	if snapshot == nil {
		return []string{
			"What is the current overall situation?",
			"Are there any safety concerns?",
			"What should I know about the event status?",
		}
	}

	suggestions := []string{
		"What is the overall situation assessment?",
		"Which zones need immediate attention?",
		"Are there any critical safety issues?",
		"What are the current crowd density levels?",
		"What resources are needed most urgently?",
	}

	if !snapshot.FusionSummary.Error {
		for i, zone := range snapshot.FusionSummary.ZoneAnalysis {
			if i >= 3 {
				break
			}
			name := zone.ZoneName
			if name == "" {
				name = "Unknown"
			}
			suggestions = append(suggestions, fmt.Sprintf("What's the situation in %s?", name))
		}
	}

	var visionZones []string
	for _, a := range snapshot.VisionAnalyses {
		if !a.Error {
			visionZones = append(visionZones, a.Zone)
		}
	}
	for i, zone := range core.UniqueStrings(visionZones) {
		if i >= 2 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("How crowded is %s?", zone))
	}

	if !snapshot.ReportAnalysis.Error && len(snapshot.ReportAnalysis.PriorityIssues) > 0 {
		suggestions = append(suggestions,
			"What are the most urgent issues right now?",
			"Which areas need additional resources?")
	}

	if len(suggestions) > 8 {
		suggestions = suggestions[:8]
	}
	return suggestions
}

func fallbackAnswer(raw string) core.AnswerRecord {
	return core.AnswerRecord{
		Answer: fmt.Sprintf("I have information about your question, but there was an issue formatting the response. Here's what I found: %s",
			core.Truncate(raw, 500)),
		Confidence:         0.5,
		SupportingEvidence: []string{"Response formatting error occurred"},
		DataSources:        []string{"System analysis"},
		AdditionalContext:  "The system had difficulty formatting the response properly.",
		Limitations:        []string{"Response parsing incomplete", "Manual review of raw response may be needed"},
		RelatedInformation: []string{},
		Recommendations:    []string{"Contact system administrator if this continues"},
		FollowUpQuestions:  []string{"Could you rephrase your question?"},
		RawResponse:        raw,
		ParsingError:       true,
	}
}

func errorAnswer(question, errorMessage string) core.AnswerRecord {
	return core.AnswerRecord{
		Answer:             "I apologize, but I am unable to process your question at the moment due to a system error.",
		Confidence:         0.0,
		SupportingEvidence: []string{},
		DataSources:        []string{},
		AdditionalContext:  "The query system is experiencing technical difficulties.",
		Limitations:        []string{"System error preventing analysis"},
		RelatedInformation: []string{},
		Recommendations:    []string{"Please try again later or contact system administrator"},
		FollowUpQuestions:  []string{},
		Question:           question,
		AnsweredAt:         time.Now().Format(time.RFC3339),
		Error:              true,
		ErrorMessage:       errorMessage,
	}
}
