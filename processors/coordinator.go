package processors

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"eventAwareness/config"
	"eventAwareness/core"
)

// ========== Coordinator ==========

// RunRecorder persists completed run results for later inspection.
type RunRecorder interface {
	RecordRun(result core.RunResult) error
	RecentRuns(limit int) ([]core.RunResult, error)
}

// InsightIndexer stores zone-level insight text so it can be searched later.
// SearchRun returns digest-ready evidence lines for a question.
type InsightIndexer interface {
	IndexRun(runID string, summaries []core.ZoneVisionSummary, fusion core.FusionSummary) error
	SearchRun(runID, query string, topK int) []string
}

// SystemStatus reports coordinator health and how much data is loaded.
type SystemStatus struct {
	CoordinatorStatus string `json:"coordinator_status"`
	Provider          string `json:"provider"`
	APIConfigured     bool   `json:"api_key_configured"`
	LastAnalysis      string `json:"last_analysis,omitempty"`
	VisionAnalyses    int    `json:"vision_analyses"`
	ZonesTracked      int    `json:"zones_tracked"`
	VideosDiscovered  int    `json:"videos_discovered"`
	ReportLoaded      bool   `json:"report_analysis_loaded"`
	FusionLoaded      bool   `json:"fusion_summary_loaded"`
	AlertLevel        string `json:"alert_level,omitempty"`
}

// Coordinator owns the full analysis pipeline and the snapshot it publishes.
// A single Coordinator serves all read endpoints while at most one analysis
// run executes at a time.
type Coordinator struct {
	cfg      *config.Config
	provider ModelProvider
	frames   *FrameSelector
	vision   *VisionAnalyzer
	reports  *ReportAnalyzer
	fusion   *FusionEngine
	query    *QueryEngine

	recorder RunRecorder
	insights InsightIndexer

	snapshot atomic.Pointer[core.QueryContext]

	mu      sync.Mutex
	running bool
	status  string
	lastRun *core.RunResult
}

// NewCoordinator wires the processing stages around a shared model provider.
func NewCoordinator(cfg *config.Config) *Coordinator {
	provider := NewProvider(cfg)
	return &Coordinator{
		cfg:      cfg,
		provider: provider,
		frames:   NewFrameSelector(cfg),
		vision:   NewVisionAnalyzer(provider, cfg.MaxWorkers),
		reports:  NewReportAnalyzer(provider, cfg.ReportPath),
		fusion:   NewFusionEngine(provider),
		query:    NewQueryEngine(provider),
		status:   "ready",
	}
}

// SetRunRecorder attaches an optional run history sink.
func (c *Coordinator) SetRunRecorder(r RunRecorder) { c.recorder = r }

// SetInsightIndexer attaches an optional insight search index.
func (c *Coordinator) SetInsightIndexer(i InsightIndexer) { c.insights = i }

// Provider exposes the active model provider.
func (c *Coordinator) Provider() ModelProvider { return c.provider }

// Snapshot returns the most recently published query context, or nil before
// the first completed run.
func (c *Coordinator) Snapshot() *core.QueryContext { return c.snapshot.Load() }

// RunFullAnalysis executes the four-stage pipeline: video frame analysis,
// field report analysis, cross-source fusion, and snapshot publication.
// Degraded stages produce warnings and error-flagged records rather than
// aborting the run. Only one run may be active at a time.
func (c *Coordinator) RunFullAnalysis(ctx context.Context) (core.RunResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return core.RunResult{}, core.ErrRunInProgress
	}
	c.running = true
	c.status = "processing"
	c.mu.Unlock()

	result := core.RunResult{
		RunID:     core.NewID(),
		Status:    "in_progress",
		StartTime: time.Now(),
	}
	log.Printf("Starting full analysis run %s", result.RunID)

	// Step 1: discover videos, select frames, analyze them.
	log.Println("Step 1: Analyzing video footage...")
	videos := DiscoverVideos(c.cfg)
	var visionResults []core.PerFrameAnalysis
	if len(videos) == 0 {
		log.Println("No video files found - using sample vision data")
		visionResults = SampleVisionData(c.cfg.ZoneNames)
		result.Warnings = append(result.Warnings, "No video files found, using sample vision data")
	} else {
		for _, video := range videos {
			frames, err := c.frames.ExtractFrames(video)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("Frame extraction failed for %s: %v", video.Filename, err))
				continue
			}
			if len(frames) == 0 {
				result.Warnings = append(result.Warnings, fmt.Sprintf("No frames extracted from %s", video.Filename))
				continue
			}
			visionResults = append(visionResults, c.vision.AnalyzeFrames(ctx, frames)...)
		}
	}
	if len(visionResults) == 0 {
		result.Warnings = append(result.Warnings, "No video analysis results available")
	}
	zoneSummaries := AggregateZones(visionResults)
	result.FramesAnalyzed = len(visionResults)
	result.ZonesAnalyzed = len(zoneSummaries)
	result.Steps = append(result.Steps, core.Step{Name: "vision_analysis", Status: "completed"})

	// Step 2: analyze field reports.
	log.Println("Step 2: Analyzing field reports...")
	reportResults := c.reports.AnalyzeFieldReports(ctx)
	if reportResults.Error {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Report analysis issue: %s", reportResults.ErrorMessage))
		result.Steps = append(result.Steps, core.Step{Name: "report_analysis", Status: "failed", Error: reportResults.ErrorMessage})
	} else {
		result.Steps = append(result.Steps, core.Step{Name: "report_analysis", Status: "completed"})
	}

	// Step 3: fuse the two sources.
	log.Println("Step 3: Fusing analysis sources...")
	fusionResults := c.fusion.FuseSources(ctx, visionResults, zoneSummaries, reportResults)
	if fusionResults.Error {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Fusion analysis issue: %s", fusionResults.ErrorMessage))
		result.Steps = append(result.Steps, core.Step{Name: "fusion", Status: "failed", Error: fusionResults.ErrorMessage})
	} else {
		result.Steps = append(result.Steps, core.Step{Name: "fusion", Status: "completed"})
	}

	// Step 4: publish the snapshot for query endpoints. Readers always see
	// either the previous complete snapshot or this one, never a mix.
	log.Println("Step 4: Publishing query context...")
	snap := &core.QueryContext{
		VisionAnalyses: visionResults,
		ZoneSummaries:  zoneSummaries,
		ReportAnalysis: reportResults,
		FusionSummary:  fusionResults,
		Videos:         videos,
		LastUpdate:     time.Now(),
	}
	c.snapshot.Store(snap)
	result.Steps = append(result.Steps, core.Step{Name: "context_update", Status: "completed"})

	if c.insights != nil {
		if err := c.insights.IndexRun(result.RunID, zoneSummaries, fusionResults); err != nil {
			log.Printf("Warning: insight indexing failed: %v", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("Insight indexing failed: %v", err))
		}
	}

	successfulVision := 0
	for _, a := range visionResults {
		if !a.Error {
			successfulVision++
		}
	}
	allDegraded := successfulVision == 0 && reportResults.Error && fusionResults.Error
	if allDegraded {
		result.Status = "failed"
		result.Errors = append(result.Errors, "All analysis stages degraded; no usable results produced")
	} else {
		result.Status = "completed"
	}
	result.EndTime = time.Now()
	log.Printf("Analysis run %s %s: %d frames, %d zones, %d warnings",
		result.RunID, result.Status, result.FramesAnalyzed, result.ZonesAnalyzed, len(result.Warnings))

	if c.recorder != nil {
		if err := c.recorder.RecordRun(result); err != nil {
			log.Printf("Warning: run history recording failed: %v", err)
		}
	}

	c.mu.Lock()
	c.running = false
	if allDegraded {
		c.status = "error"
	} else {
		c.status = "ready"
	}
	c.lastRun = &result
	c.mu.Unlock()
	return result, nil
}

// GetCurrentSummary returns the dashboard view of the latest fusion state.
func (c *Coordinator) GetCurrentSummary() core.CurrentSummary {
	snap := c.snapshot.Load()
	if snap == nil {
		return core.CurrentSummary{
			Status:  "no_data",
			Message: "No analysis data available. Run analysis first.",
		}
	}
	fusion := snap.FusionSummary
	if fusion.Error {
		return core.CurrentSummary{
			Status:       "error",
			Message:      "Analysis error occurred",
			ErrorMessage: fusion.ErrorMessage,
			LastUpdate:   fusion.AnalyzedAt,
		}
	}
	return core.CurrentSummary{
		Status:            "success",
		OverallSituation:  fusion.ExecutiveSummary.OverallSituation,
		ThreatLevel:       fusion.ExecutiveSummary.ThreatLevel,
		ImmediateConcerns: fusion.ExecutiveSummary.ImmediateConcerns,
		ZoneCount:         len(fusion.ZoneAnalysis),
		Zones:             fusion.ZoneAnalysis,
		Confidence:        fusion.ConfidenceMetrics.OverallConfidence,
		LastUpdate:        fusion.AnalyzedAt,
	}
}

// GetZoneDetail returns the merged fusion and vision view for one zone.
// core.ErrZoneNotFound is returned when neither source knows the zone; the
// partial detail record is still populated for the caller.
func (c *Coordinator) GetZoneDetail(zoneName string) (core.ZoneDetail, error) {
	detail := core.ZoneDetail{ZoneName: zoneName, Status: "unknown"}
	snap := c.snapshot.Load()
	if snap == nil {
		return detail, fmt.Errorf("%w: %s", core.ErrZoneNotFound, zoneName)
	}

	if !snap.FusionSummary.Error {
		for _, zone := range snap.FusionSummary.ZoneAnalysis {
			if zone.ZoneName == zoneName {
				detail.Status = zone.StatusAssessment
				detail.DataAvailable = true
				detail.CrowdSituation = zone.CrowdSituation
				detail.RiskAssessment = zone.RiskAssessment
				detail.InfrastructureStatus = zone.InfrastructureStatus
				detail.RecommendedActions = zone.RecommendedActions
				break
			}
		}
	}
	if summary, ok := FindZoneSummary(snap.ZoneSummaries, zoneName); ok {
		detail.VisionSummary = &summary
	}
	if !detail.DataAvailable && detail.VisionSummary == nil {
		return detail, fmt.Errorf("%w: %s", core.ErrZoneNotFound, zoneName)
	}
	return detail, nil
}

// AnswerQuestion answers a natural-language question against the snapshot.
// When an insight index is attached, the most relevant indexed zone insights
// are retrieved and added to the question context.
func (c *Coordinator) AnswerQuestion(ctx context.Context, question string) core.AnswerRecord {
	var evidence []string
	if c.insights != nil {
		if last := c.LastRun(); last != nil {
			evidence = c.insights.SearchRun(last.RunID, question, 3)
		}
	}
	return c.query.AnswerQuestion(ctx, c.snapshot.Load(), question, evidence)
}

// SuggestedQuestions returns question prompts appropriate to the snapshot.
func (c *Coordinator) SuggestedQuestions() []string {
	return SuggestedQuestions(c.snapshot.Load())
}

// LastRun returns the result of the most recent analysis run, if any.
func (c *Coordinator) LastRun() *core.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// RecentRuns lists run history, newest first, when a recorder is attached.
func (c *Coordinator) RecentRuns(limit int) ([]core.RunResult, error) {
	if c.recorder == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastRun == nil {
			return nil, nil
		}
		return []core.RunResult{*c.lastRun}, nil
	}
	return c.recorder.RecentRuns(limit)
}

// GetSystemStatus reports coordinator state and loaded data volumes.
func (c *Coordinator) GetSystemStatus() SystemStatus {
	c.mu.Lock()
	status := c.status
	lastRun := c.lastRun
	c.mu.Unlock()

	st := SystemStatus{
		CoordinatorStatus: status,
		Provider:          c.provider.Name(),
		APIConfigured:     c.cfg.HasValidAPI(),
	}
	if lastRun != nil {
		st.LastAnalysis = lastRun.EndTime.Format(time.RFC3339)
	}
	if snap := c.snapshot.Load(); snap != nil {
		st.VisionAnalyses = len(snap.VisionAnalyses)
		st.ZonesTracked = len(snap.ZoneSummaries)
		st.VideosDiscovered = len(snap.Videos)
		st.ReportLoaded = snap.ReportAnalysis.AnalyzedAt != "" && !snap.ReportAnalysis.Error
		st.FusionLoaded = snap.FusionSummary.AnalyzedAt != "" && !snap.FusionSummary.Error

		// The alert level is the worse of the two source assessments, so a
		// red field report is never hidden behind a calmer fusion reply.
		if st.FusionLoaded {
			st.AlertLevel = snap.FusionSummary.ExecutiveSummary.ThreatLevel
		}
		if st.ReportLoaded {
			if st.AlertLevel == "" {
				st.AlertLevel = snap.ReportAnalysis.EventOverview.OverallStatus
			} else {
				st.AlertLevel = core.MaxThreat(st.AlertLevel, snap.ReportAnalysis.EventOverview.OverallStatus)
			}
		}
	}
	return st
}
