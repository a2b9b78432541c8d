package processors

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"eventAwareness/core"
)

var fusionSchema = Schema{
	Name: "fusion_summary",
	Fields: []Field{
		{Name: "executive_summary", Kind: KindObject, Children: []Field{
			{Name: "overall_situation", Kind: KindText, Default: "Assessment in progress"},
			{Name: "threat_level", Kind: KindText, Default: "yellow"},
			{Name: "immediate_concerns", Kind: KindList},
			{Name: "recommendation_urgency", Kind: KindText, Default: "medium"},
		}},
		{Name: "zone_analysis", Kind: KindObjectList, Children: []Field{
			{Name: "zone_name", Kind: KindText, Default: ""},
			{Name: "status_assessment", Kind: KindText, Default: ""},
			{Name: "crowd_situation", Kind: KindObject},
			{Name: "risk_assessment", Kind: KindObject},
			{Name: "infrastructure_status", Kind: KindText, Default: ""},
			{Name: "recommended_actions", Kind: KindList},
		}},
		{Name: "cross_validation", Kind: KindObject, Children: []Field{
			{Name: "vision_report_alignment", Kind: KindText, Default: ""},
			{Name: "discrepancies", Kind: KindList},
			{Name: "confidence_assessment", Kind: KindText, Default: ""},
			{Name: "data_gaps", Kind: KindList},
		}},
		{Name: "operational_priorities", Kind: KindObjectList},
		{Name: "confidence_metrics", Kind: KindObject, Children: []Field{
			{Name: "overall_confidence", Kind: KindScore, Default: 0.5},
			{Name: "vision_data_quality", Kind: KindText, Default: "unknown"},
			{Name: "report_data_quality", Kind: KindText, Default: "unknown"},
			{Name: "synthesis_reliability", Kind: KindText, Default: "unknown"},
		}},
	},
}

const fusionPromptTemplate = `You are an expert situational awareness analyst combining real-time video analysis with field reports to create a comprehensive event assessment.

Please analyze the combined data from video feeds and field reports, then provide a structured assessment in JSON format:

{
    "executive_summary": {
        "overall_situation": "brief high-level assessment",
        "threat_level": "green|yellow|orange|red",
        "immediate_concerns": ["top 3 priority issues"],
        "recommendation_urgency": "low|medium|high|critical"
    },
    "zone_analysis": [
        {
            "zone_name": "zone identifier",
            "status_assessment": "current operational status",
            "crowd_situation": {
                "visual_assessment": "from video analysis",
                "reported_status": "from field reports",
                "reconciled_estimate": "best estimate combining both sources",
                "crowd_behavior": "observed/reported behavior",
                "density_level": "low|moderate|high|critical"
            },
            "risk_assessment": {
                "visual_risks": ["risks identified from video"],
                "reported_risks": ["risks from field reports"],
                "combined_risk_level": "low|medium|high|critical",
                "primary_concerns": ["top risks for this zone"]
            },
            "infrastructure_status": "condition based on both sources",
            "recommended_actions": ["specific actions for this zone"]
        }
    ],
    "cross_validation": {
        "vision_report_alignment": "how well video and reports align",
        "discrepancies": ["any conflicting information"],
        "confidence_assessment": "overall confidence in analysis",
        "data_gaps": ["information still needed"]
    },
    "operational_priorities": [
        {
            "priority": "specific action needed",
            "urgency": "immediate|short-term|medium-term",
            "zone_focus": "primary zone affected",
            "resource_requirements": "what resources needed",
            "success_metrics": "how to measure effectiveness"
        }
    ],
    "confidence_metrics": {
        "overall_confidence": 0.0-1.0,
        "vision_data_quality": "assessment of video analysis quality",
        "report_data_quality": "assessment of field report quality",
        "synthesis_reliability": "confidence in combined analysis"
    }
}

Focus on:
1. Reconciling differences between video observations and field reports
2. Creating actionable operational recommendations
3. Identifying critical gaps or discrepancies in information
4. Providing clear priority ranking for actions
5. Assessing the reliability of the combined analysis
6. Highlighting areas where additional information is needed

Be specific, actionable, and honest about uncertainties or conflicting information.`

// FusionEngine reconciles per-zone vision summaries with the field-report
// analysis. The reconciliation judgment itself is delegated to the model;
// this component owns the deterministic digest going in and the schema
// enforcement coming out.
type FusionEngine struct {
	provider ModelProvider
}

func NewFusionEngine(provider ModelProvider) *FusionEngine {
	return &FusionEngine{provider: provider}
}

// FuseSources produces the run's FusionSummary. A failed model call returns
// an error-flagged summary with threat level forced to red: an unknown
// fusion state must never read as all-clear.
func (fe *FusionEngine) FuseSources(ctx context.Context, visionAnalyses []core.PerFrameAnalysis, zoneSummaries []core.ZoneVisionSummary, report core.ReportAnalysis) core.FusionSummary {
	digest := BuildFusionDigest(visionAnalyses, zoneSummaries, report)

	prompt := fmt.Sprintf("%s\n\nDATA TO ANALYZE:\n%s", fusionPromptTemplate, digest)
	raw, err := fe.provider.AnalyzeText(ctx, prompt)
	if err != nil {
		log.Printf("Error in fusion summary generation: %v", err)
		return errorFusionSummary(fmt.Sprintf("Fusion analysis failed: %v", err))
	}

	var summary core.FusionSummary
	if rec, found := ExtractJSON(raw); found {
		if err := decodeInto(fusionSchema.Repair(rec), &summary); err != nil {
			summary = fallbackFusionSummary(raw)
		}
	} else {
		summary = fallbackFusionSummary(raw)
	}
	summary.AnalyzedAt = time.Now().Format(time.RFC3339)
	return summary
}

// BuildFusionDigest serializes both sources into the text the model
// reconciles. The rendering is deterministic: zones appear in aggregation
// order, and sections for failed sources are omitted entirely.
func BuildFusionDigest(visionAnalyses []core.PerFrameAnalysis, zoneSummaries []core.ZoneVisionSummary, report core.ReportAnalysis) string {
	var sb strings.Builder

	if len(zoneSummaries) > 0 {
		zones := make([]string, 0, len(zoneSummaries))
		for _, s := range zoneSummaries {
			zones = append(zones, s.Zone)
		}
		var confidences []float64
		for _, a := range visionAnalyses {
			if a.Error {
				continue
			}
			confidences = append(confidences, a.ConfidenceScore)
		}

		sb.WriteString("=== VIDEO ANALYSIS INSIGHTS ===\n")
		fmt.Fprintf(&sb, "Zones analyzed: %s\n", strings.Join(zones, ", "))
		fmt.Fprintf(&sb, "Total frames processed: %d\n", len(visionAnalyses))
		fmt.Fprintf(&sb, "Average confidence: %.2f\n", meanOrDefault(confidences, 0.5))

		for _, s := range zoneSummaries {
			fmt.Fprintf(&sb, "\nZone: %s\n", s.Zone)
			fmt.Fprintf(&sb, "  Frames analyzed: %d\n", s.SuccessfulAnalyses)
			fmt.Fprintf(&sb, "  Crowd density: %s\n", s.PredominantDensity)
			fmt.Fprintf(&sb, "  Behaviors: %s\n", strings.Join(s.ObservedBehaviors, ", "))
			fmt.Fprintf(&sb, "  Risks: %s\n", strings.Join(s.IdentifiedRisks, ", "))
		}
	}

	if !report.Error {
		sb.WriteString("\n=== FIELD REPORT INSIGHTS ===\n")
		fmt.Fprintf(&sb, "Event status: %s\n", report.EventOverview.OverallStatus)
		fmt.Fprintf(&sb, "Confidence level: %.2f\n", report.ConfidenceAssessment.ReliabilityScore)

		if len(report.PriorityIssues) > 0 {
			sb.WriteString("\nPriority Issues:\n")
			for i, issue := range report.PriorityIssues {
				if i >= 5 {
					break
				}
				fmt.Fprintf(&sb, "  - %s (Zone: %s, Severity: %s)\n", issue.Issue, issue.Zone, issue.Severity)
			}
		}

		if len(report.ZoneSummaries) > 0 {
			sb.WriteString("\nZone Reports:\n")
			for _, zone := range report.ZoneSummaries {
				fmt.Fprintf(&sb, "  %s: %s\n", mapString(zone, "zone_name", "Unknown"), mapString(zone, "status", "Unknown status"))
				if issues := mapStrings(zone, "key_issues"); len(issues) > 0 {
					fmt.Fprintf(&sb, "    Issues: %s\n", strings.Join(issues, ", "))
				}
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func fallbackFusionSummary(raw string) core.FusionSummary {
	return core.FusionSummary{
		ExecutiveSummary: core.ExecutiveSummary{
			OverallSituation:      "Analysis parsing incomplete - manual review required",
			ThreatLevel:           "yellow",
			ImmediateConcerns:     []string{"Fusion analysis system error"},
			RecommendationUrgency: "medium",
		},
		ZoneAnalysis: []core.FusionZone{},
		CrossValidation: core.CrossValidation{
			VisionReportAlignment: "unable to assess",
			Discrepancies:         []string{"System parsing error"},
			ConfidenceAssessment:  "low",
			DataGaps:              []string{"Complete analysis unavailable"},
		},
		OperationalPriorities: []map[string]any{{
			"priority":              "Restore fusion analysis system",
			"urgency":               "immediate",
			"zone_focus":            "system",
			"resource_requirements": "Technical support",
			"success_metrics":       "System operational",
		}},
		ConfidenceMetrics: core.ConfidenceMetrics{
			OverallConfidence:    0.3,
			VisionDataQuality:    "available",
			ReportDataQuality:    "available",
			SynthesisReliability: "compromised",
		},
		RawAnalysis:  core.Truncate(raw, 1500),
		ParsingError: true,
	}
}

func errorFusionSummary(errorMessage string) core.FusionSummary {
	return core.FusionSummary{
		ExecutiveSummary: core.ExecutiveSummary{
			OverallSituation:      "System error - manual assessment required",
			ThreatLevel:           "red",
			ImmediateConcerns:     []string{"Fusion analysis system failure"},
			RecommendationUrgency: "critical",
		},
		ZoneAnalysis: []core.FusionZone{},
		CrossValidation: core.CrossValidation{
			VisionReportAlignment: "system error",
			Discrepancies:         []string{"Analysis system offline"},
			ConfidenceAssessment:  "none",
			DataGaps:              []string{"Complete system failure"},
		},
		OperationalPriorities: []map[string]any{{
			"priority":              "Restore situational awareness system",
			"urgency":               "immediate",
			"zone_focus":            "all",
			"resource_requirements": "Technical team and manual assessment",
			"success_metrics":       "System restored and operational",
		}},
		ConfidenceMetrics: core.ConfidenceMetrics{
			OverallConfidence:    0.0,
			VisionDataQuality:    "error",
			ReportDataQuality:    "error",
			SynthesisReliability: "failed",
		},
		Error:        true,
		ErrorMessage: errorMessage,
		AnalyzedAt:   time.Now().Format(time.RFC3339),
	}
}

func mapString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, isString := v.(string); isString && s != "" {
			return s
		}
	}
	return def
}

func mapStrings(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, isString := it.(string); isString {
			out = append(out, s)
		}
	}
	return out
}
