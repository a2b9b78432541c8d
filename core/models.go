package core

import "time"

// ========== Video and frame records ==========

// VideoInfo describes a discovered video file and the zone assigned to it.
type VideoInfo struct {
	Filename        string  `json:"filename"`
	Path            string  `json:"path"`
	Zone            string  `json:"zone"`
	DurationSeconds float64 `json:"duration_seconds"`
	Duration        string  `json:"duration"`
	SizeBytes       int64   `json:"size_bytes"`
}

// FrameRecord is one selected frame ready for model analysis. ImageBytes is
// JPEG-encoded and discarded after the frame has been analyzed.
type FrameRecord struct {
	Zone        string  `json:"zone"`
	FrameIndex  int     `json:"frame_index"`
	ImageBytes  []byte  `json:"-"`
	SourceFile  string  `json:"video_source"`
	Timestamp   string  `json:"timestamp"`
	MotionScore float64 `json:"motion_score"`
}

// ========== Vision analysis ==========

// PerFrameAnalysis is the validated result of one frame's model call. After
// repair every field is present regardless of what the model returned.
type PerFrameAnalysis struct {
	Zone                 string   `json:"zone"`
	CrowdDensity         string   `json:"crowd_density"`
	CrowdCountEstimate   string   `json:"crowd_count_estimate"`
	CrowdBehavior        string   `json:"crowd_behavior"`
	PotentialRisks       []string `json:"potential_risks"`
	SafetyObservations   []string `json:"safety_observations"`
	InfrastructureStatus []string `json:"infrastructure_status"`
	WeatherConditions    string   `json:"weather_conditions"`
	LightingConditions   string   `json:"lighting_conditions"`
	AccessibilityIssues  []string `json:"accessibility_issues"`
	RecommendedActions   []string `json:"recommended_actions"`
	ConfidenceScore      float64  `json:"confidence_score"`
	AdditionalNotes      string   `json:"additional_notes"`

	FrameIndex   int    `json:"frame_index"`
	Timestamp    string `json:"frame_timestamp"`
	SourceFile   string `json:"video_source"`
	AnalyzedAt   string `json:"analyzed_at"`
	ParsingError bool   `json:"parsing_error,omitempty"`
	Error        bool   `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ZoneVisionSummary aggregates one zone's frame analyses. Recomputed from
// scratch every run, never updated incrementally.
type ZoneVisionSummary struct {
	Zone                string         `json:"zone"`
	FramesAnalyzed      int            `json:"frames_analyzed"`
	SuccessfulAnalyses  int            `json:"successful_analyses"`
	PredominantDensity  string         `json:"predominant_crowd_density"`
	DensityDistribution map[string]int `json:"density_distribution"`
	PredominantBehavior string         `json:"predominant_behavior"`
	ObservedBehaviors   []string       `json:"observed_behaviors"`
	IdentifiedRisks     []string       `json:"identified_risks"`
	RecommendedActions  []string       `json:"recommended_actions"`
	AverageConfidence   float64        `json:"average_confidence"`
}

// ========== Field report analysis ==========

type EventOverview struct {
	EventType     string `json:"event_type"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	OverallStatus string `json:"overall_status"`
}

type PriorityIssue struct {
	Issue             string `json:"issue"`
	Zone              string `json:"zone"`
	Severity          string `json:"severity"`
	RecommendedAction string `json:"recommended_action"`
	Timeline          string `json:"timeline"`
}

type ConfidenceAssessment struct {
	DataQuality             string  `json:"data_quality"`
	InformationCompleteness string  `json:"information_completeness"`
	ReliabilityScore        float64 `json:"reliability_score"`
}

// ReportAnalysis is the structured extraction from the free-text field
// reports, with the same validate-and-default contract as PerFrameAnalysis.
type ReportAnalysis struct {
	EventOverview              EventOverview        `json:"event_overview"`
	ZoneSummaries              []map[string]any     `json:"zone_summaries"`
	PriorityIssues             []PriorityIssue      `json:"priority_issues"`
	ResourceStatus             map[string]any       `json:"resource_status"`
	EnvironmentalFactors       map[string]any       `json:"environmental_factors"`
	OperationalRecommendations []map[string]any     `json:"operational_recommendations"`
	KeyMetrics                 map[string]any       `json:"key_metrics"`
	NextActions                []string             `json:"next_actions"`
	ConfidenceAssessment       ConfidenceAssessment `json:"confidence_assessment"`

	AnalyzedAt   string `json:"analyzed_at,omitempty"`
	ParsingError bool   `json:"parsing_error,omitempty"`
	RawAnalysis  string `json:"raw_analysis,omitempty"`
	Error        bool   `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ========== Fusion summary ==========

type ExecutiveSummary struct {
	OverallSituation      string   `json:"overall_situation"`
	ThreatLevel           string   `json:"threat_level"`
	ImmediateConcerns     []string `json:"immediate_concerns"`
	RecommendationUrgency string   `json:"recommendation_urgency"`
}

// FusionZone is one zone's reconciled assessment inside the fusion summary.
type FusionZone struct {
	ZoneName             string         `json:"zone_name"`
	StatusAssessment     string         `json:"status_assessment"`
	CrowdSituation       map[string]any `json:"crowd_situation"`
	RiskAssessment       map[string]any `json:"risk_assessment"`
	InfrastructureStatus string         `json:"infrastructure_status"`
	RecommendedActions   []string       `json:"recommended_actions"`
}

type CrossValidation struct {
	VisionReportAlignment string   `json:"vision_report_alignment"`
	Discrepancies         []string `json:"discrepancies"`
	ConfidenceAssessment  string   `json:"confidence_assessment"`
	DataGaps              []string `json:"data_gaps"`
}

type ConfidenceMetrics struct {
	OverallConfidence    float64 `json:"overall_confidence"`
	VisionDataQuality    string  `json:"vision_data_quality"`
	ReportDataQuality    string  `json:"report_data_quality"`
	SynthesisReliability string  `json:"synthesis_reliability"`
}

// FusionSummary is the single materialized current state of the event,
// replaced wholesale on each analysis run.
type FusionSummary struct {
	ExecutiveSummary      ExecutiveSummary  `json:"executive_summary"`
	ZoneAnalysis          []FusionZone      `json:"zone_analysis"`
	CrossValidation       CrossValidation   `json:"cross_validation"`
	OperationalPriorities []map[string]any  `json:"operational_priorities"`
	ConfidenceMetrics     ConfidenceMetrics `json:"confidence_metrics"`

	AnalyzedAt   string `json:"analyzed_at,omitempty"`
	ParsingError bool   `json:"parsing_error,omitempty"`
	RawAnalysis  string `json:"raw_analysis,omitempty"`
	Error        bool   `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ========== Query answering ==========

// AnswerRecord is the schema-enforced reply to one operator question.
type AnswerRecord struct {
	Answer             string   `json:"answer"`
	Confidence         float64  `json:"confidence"`
	SupportingEvidence []string `json:"supporting_evidence"`
	DataSources        []string `json:"data_sources"`
	AdditionalContext  string   `json:"additional_context"`
	Limitations        []string `json:"limitations"`
	RelatedInformation []string `json:"related_information"`
	Recommendations    []string `json:"recommendations"`
	FollowUpQuestions  []string `json:"follow_up_questions"`

	Question     string `json:"question,omitempty"`
	AnsweredAt   string `json:"answered_at,omitempty"`
	ParsingError bool   `json:"parsing_error,omitempty"`
	RawResponse  string `json:"raw_response,omitempty"`
	Error        bool   `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// QueryContext is the immutable snapshot read by the query layer. A new
// snapshot replaces the previous one atomically after each run.
type QueryContext struct {
	VisionAnalyses []PerFrameAnalysis  `json:"vision_analyses"`
	ZoneSummaries  []ZoneVisionSummary `json:"zone_summaries"`
	ReportAnalysis ReportAnalysis      `json:"report_analysis"`
	FusionSummary  FusionSummary       `json:"fusion_summary"`
	Videos         []VideoInfo         `json:"videos"`
	LastUpdate     time.Time           `json:"last_update"`
}

// ========== Run accounting ==========

type Step struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "completed", "failed", "skipped"
	Error  string `json:"error,omitempty"`
}

// RunResult is the outcome of one full analysis run.
type RunResult struct {
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"` // "in_progress", "completed", "failed"
	Steps          []Step    `json:"steps"`
	Warnings       []string  `json:"warnings"`
	Errors         []string  `json:"errors"`
	FramesAnalyzed int       `json:"frames_analyzed"`
	ZonesAnalyzed  int       `json:"zones_analyzed"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// CurrentSummary is the dashboard-facing view of the latest fusion state.
type CurrentSummary struct {
	Status            string       `json:"status"` // "success", "no_data", "error"
	Message           string       `json:"message,omitempty"`
	ErrorMessage      string       `json:"error,omitempty"`
	OverallSituation  string       `json:"overall_situation,omitempty"`
	ThreatLevel       string       `json:"threat_level,omitempty"`
	ImmediateConcerns []string     `json:"immediate_concerns,omitempty"`
	ZoneCount         int          `json:"zone_count"`
	Zones             []FusionZone `json:"zones,omitempty"`
	Confidence        float64      `json:"confidence"`
	LastUpdate        string       `json:"last_update,omitempty"`
}

// ZoneDetail combines the fusion assessment and the vision summary for one zone.
type ZoneDetail struct {
	ZoneName             string             `json:"zone_name"`
	Status               string             `json:"status"`
	DataAvailable        bool               `json:"data_available"`
	CrowdSituation       map[string]any     `json:"crowd_situation,omitempty"`
	RiskAssessment       map[string]any     `json:"risk_assessment,omitempty"`
	InfrastructureStatus string             `json:"infrastructure_status,omitempty"`
	RecommendedActions   []string           `json:"recommended_actions,omitempty"`
	VisionSummary        *ZoneVisionSummary `json:"vision_summary,omitempty"`
}

// ========== Threat levels ==========

var threatOrder = map[string]int{"green": 0, "yellow": 1, "orange": 2, "red": 3}

// ThreatSeverity maps a threat level to its ordinal rank. Unknown levels rank
// as yellow so a garbled level is never treated as all-clear.
func ThreatSeverity(level string) int {
	if n, ok := threatOrder[level]; ok {
		return n
	}
	return threatOrder["yellow"]
}

// MaxThreat returns the more severe of two threat levels.
func MaxThreat(a, b string) string {
	if ThreatSeverity(b) > ThreatSeverity(a) {
		return b
	}
	return a
}
