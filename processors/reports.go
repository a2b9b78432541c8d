package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"eventAwareness/core"
)

// reportSchema declares the shape of the field-report analysis reply. Nested
// objects carry their own defaults so partially filled replies still decode
// into a complete record.
var reportSchema = Schema{
	Name: "report_analysis",
	Fields: []Field{
		{Name: "event_overview", Kind: KindObject, Children: []Field{
			{Name: "event_type", Kind: KindText, Default: "unknown"},
			{Name: "date", Kind: KindText, Default: "unknown"},
			{Name: "time", Kind: KindText, Default: "unknown"},
			{Name: "overall_status", Kind: KindText, Default: "yellow"},
		}},
		{Name: "zone_summaries", Kind: KindObjectList},
		{Name: "priority_issues", Kind: KindObjectList, Children: []Field{
			{Name: "issue", Kind: KindText, Default: ""},
			{Name: "zone", Kind: KindText, Default: ""},
			{Name: "severity", Kind: KindText, Default: ""},
			{Name: "recommended_action", Kind: KindText, Default: ""},
			{Name: "timeline", Kind: KindText, Default: ""},
		}},
		{Name: "resource_status", Kind: KindObject},
		{Name: "environmental_factors", Kind: KindObject},
		{Name: "operational_recommendations", Kind: KindObjectList},
		{Name: "key_metrics", Kind: KindObject},
		{Name: "next_actions", Kind: KindList},
		{Name: "confidence_assessment", Kind: KindObject, Children: []Field{
			{Name: "data_quality", Kind: KindText, Default: "medium"},
			{Name: "information_completeness", Kind: KindText, Default: "partial"},
			{Name: "reliability_score", Kind: KindScore, Default: 0.5},
		}},
	},
}

const reportPromptTemplate = `You are an expert situational awareness analyst examining field reports from an event.

Please analyze the field reports and provide a structured assessment in JSON format with the following information:

{
    "event_overview": {
        "event_type": "type of event",
        "date": "event date",
        "time": "report time",
        "overall_status": "green|yellow|orange|red"
    },
    "zone_summaries": [
        {
            "zone_name": "zone identifier",
            "status": "operational status",
            "crowd_density": "low|moderate|high|critical",
            "crowd_estimate": "number of people",
            "key_issues": ["list of issues"],
            "infrastructure_status": "condition description",
            "security_alerts": ["any security concerns"]
        }
    ],
    "priority_issues": [
        {
            "issue": "description of issue",
            "zone": "affected zone",
            "severity": "low|medium|high|critical",
            "recommended_action": "suggested response",
            "timeline": "urgency indicator"
        }
    ],
    "resource_status": {
        "medical_teams": "status and capacity",
        "security_personnel": "deployment status",
        "emergency_services": "readiness level",
        "communication_systems": "operational status"
    },
    "environmental_factors": {
        "weather_conditions": "current weather",
        "weather_forecast": "upcoming conditions",
        "visibility": "lighting conditions",
        "environmental_risks": ["weather-related concerns"]
    },
    "operational_recommendations": [
        {
            "recommendation": "specific action",
            "priority": "high|medium|low",
            "target_zone": "affected area",
            "estimated_impact": "expected outcome"
        }
    ],
    "key_metrics": {
        "total_crowd_estimate": "overall attendance",
        "incident_count": "number of incidents",
        "medical_cases": "medical interventions",
        "security_incidents": "security events"
    },
    "next_actions": [
        "immediate actions needed"
    ],
    "confidence_assessment": {
        "data_quality": "high|medium|low",
        "information_completeness": "percentage or description",
        "reliability_score": 0.0-1.0
    }
}

Focus on:
1. Extracting key operational data from each zone
2. Identifying priority issues and risks
3. Assessing resource deployment and needs
4. Environmental factors affecting operations
5. Providing actionable recommendations
6. Quantifying crowd estimates and incident counts

Be specific and actionable in your analysis. If certain information is not available in the reports, indicate this clearly.`

// ReportAnalyzer turns the free-text field reports file into a structured
// ReportAnalysis.
type ReportAnalyzer struct {
	provider ModelProvider
	path     string
}

func NewReportAnalyzer(provider ModelProvider, path string) *ReportAnalyzer {
	return &ReportAnalyzer{provider: provider, path: path}
}

// AnalyzeFieldReports reads and analyzes the reports file. A missing or
// empty file yields an error-flagged record, never a failure.
func (ra *ReportAnalyzer) AnalyzeFieldReports(ctx context.Context) core.ReportAnalysis {
	content, ok := ra.readReportsFile()
	if !ok {
		return errorReportAnalysis("Could not read field reports")
	}

	prompt := fmt.Sprintf("%s\n\nFIELD REPORTS TO ANALYZE:\n%s", reportPromptTemplate, content)
	raw, err := ra.provider.AnalyzeText(ctx, prompt)
	if err != nil {
		log.Printf("Error analyzing field reports: %v", err)
		return errorReportAnalysis(fmt.Sprintf("Analysis failed: %v", err))
	}

	var analysis core.ReportAnalysis
	if rec, found := ExtractJSON(raw); found {
		if err := decodeInto(reportSchema.Repair(rec), &analysis); err != nil {
			analysis = fallbackReportAnalysis(raw)
		}
	} else {
		analysis = fallbackReportAnalysis(raw)
	}
	analysis.AnalyzedAt = time.Now().Format(time.RFC3339)
	return analysis
}

func (ra *ReportAnalyzer) readReportsFile() (string, bool) {
	data, err := os.ReadFile(ra.path)
	if err != nil {
		log.Printf("Field reports file not found: %s", ra.path)
		return "", false
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		log.Printf("Field reports file is empty: %s", ra.path)
		return "", false
	}
	log.Printf("Successfully read field reports: %d characters", len(content))
	return content, true
}

func fallbackReportAnalysis(raw string) core.ReportAnalysis {
	return core.ReportAnalysis{
		EventOverview: core.EventOverview{
			EventType:     "unknown",
			Date:          "unknown",
			Time:          "unknown",
			OverallStatus: "yellow",
		},
		ZoneSummaries: []map[string]any{},
		PriorityIssues: []core.PriorityIssue{{
			Issue:             "Report analysis parsing incomplete",
			Zone:              "system",
			Severity:          "medium",
			RecommendedAction: "Manual review of field reports",
			Timeline:          "immediate",
		}},
		ResourceStatus: map[string]any{
			"medical_teams":         "status unknown",
			"security_personnel":    "status unknown",
			"emergency_services":    "status unknown",
			"communication_systems": "status unknown",
		},
		EnvironmentalFactors: map[string]any{
			"weather_conditions":  "unknown",
			"weather_forecast":    "unknown",
			"visibility":          "unknown",
			"environmental_risks": []string{},
		},
		OperationalRecommendations: []map[string]any{},
		KeyMetrics: map[string]any{
			"total_crowd_estimate": "unknown",
			"incident_count":       "unknown",
			"medical_cases":        "unknown",
			"security_incidents":   "unknown",
		},
		NextActions: []string{"Review raw field reports manually"},
		ConfidenceAssessment: core.ConfidenceAssessment{
			DataQuality:             "low",
			InformationCompleteness: "incomplete",
			ReliabilityScore:        0.3,
		},
		RawAnalysis:  core.Truncate(raw, 1000),
		ParsingError: true,
	}
}

func errorReportAnalysis(errorMessage string) core.ReportAnalysis {
	return core.ReportAnalysis{
		EventOverview: core.EventOverview{
			EventType:     "error",
			Date:          "unknown",
			Time:          "unknown",
			OverallStatus: "red",
		},
		ZoneSummaries: []map[string]any{},
		PriorityIssues: []core.PriorityIssue{{
			Issue:             "Report analysis system error",
			Zone:              "system",
			Severity:          "critical",
			RecommendedAction: "Check system configuration and API access",
			Timeline:          "immediate",
		}},
		ResourceStatus: map[string]any{
			"medical_teams":         "system error",
			"security_personnel":    "system error",
			"emergency_services":    "system error",
			"communication_systems": "system error",
		},
		EnvironmentalFactors: map[string]any{
			"weather_conditions":  "unknown",
			"weather_forecast":    "unknown",
			"visibility":          "unknown",
			"environmental_risks": []string{"System analysis unavailable"},
		},
		OperationalRecommendations: []map[string]any{{
			"recommendation":   "Restore report analysis system",
			"priority":         "high",
			"target_zone":      "system",
			"estimated_impact": "critical for situational awareness",
		}},
		KeyMetrics: map[string]any{
			"total_crowd_estimate": "error",
			"incident_count":       "error",
			"medical_cases":        "error",
			"security_incidents":   "error",
		},
		NextActions: []string{"Resolve system error", "Manual report review"},
		ConfidenceAssessment: core.ConfidenceAssessment{
			DataQuality:             "low",
			InformationCompleteness: "error",
			ReliabilityScore:        0.0,
		},
		Error:        true,
		ErrorMessage: errorMessage,
		AnalyzedAt:   time.Now().Format(time.RFC3339),
	}
}
