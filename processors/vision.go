package processors

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"eventAwareness/core"
)

// visionSchema declares the expected shape of a frame analysis reply.
// Defaults match the prompt's instructions so a partially filled reply still
// yields a complete record.
var visionSchema = Schema{
	Name: "frame_analysis",
	Fields: []Field{
		{Name: "zone", Kind: KindText, Default: "unknown"},
		{Name: "crowd_density", Kind: KindText, Default: "moderate"},
		{Name: "crowd_count_estimate", Kind: KindText, Default: "unknown"},
		{Name: "crowd_behavior", Kind: KindText, Default: "calm"},
		{Name: "potential_risks", Kind: KindList},
		{Name: "safety_observations", Kind: KindList},
		{Name: "infrastructure_status", Kind: KindList},
		{Name: "weather_conditions", Kind: KindText, Default: "unknown"},
		{Name: "lighting_conditions", Kind: KindText, Default: "fair"},
		{Name: "accessibility_issues", Kind: KindList},
		{Name: "recommended_actions", Kind: KindList},
		{Name: "confidence_score", Kind: KindScore, Default: 0.5},
		{Name: "additional_notes", Kind: KindText, Default: ""},
	},
}

const visionPromptTemplate = `You are an expert situational awareness analyst examining a video frame from %s at an event.

Please analyze this image and provide a structured assessment in JSON format with the following information:

{
    "zone": "%s",
    "crowd_density": "low|moderate|high|critical",
    "crowd_count_estimate": "estimated number of people visible",
    "crowd_behavior": "calm|excited|restless|agitated|dispersing|gathering",
    "potential_risks": ["list of identified risks or concerns"],
    "safety_observations": ["list of safety-related observations"],
    "infrastructure_status": ["observations about facilities, barriers, exits"],
    "weather_conditions": "description if visible",
    "lighting_conditions": "good|fair|poor|dark",
    "accessibility_issues": ["any accessibility concerns observed"],
    "recommended_actions": ["suggested immediate actions if any"],
    "confidence_score": 0.0-1.0,
    "additional_notes": "any other relevant observations"
}

Focus on:
1. Crowd density and movement patterns
2. Potential safety hazards or bottlenecks
3. Infrastructure conditions (barriers, exits, facilities)
4. Any unusual behaviors or situations
5. Environmental factors affecting safety

Provide specific, actionable insights that would help event managers make informed decisions.`

// VisionAnalyzer runs frame analyses against the model provider with a
// bounded number of concurrent calls.
type VisionAnalyzer struct {
	provider ModelProvider
	workers  int
}

func NewVisionAnalyzer(provider ModelProvider, workers int) *VisionAnalyzer {
	if workers < 1 {
		workers = 1
	}
	return &VisionAnalyzer{provider: provider, workers: workers}
}

// AnalyzeFrames analyzes every frame and returns one record per frame in
// input order. Individual failures become error-flagged records; the batch
// itself never fails.
func (va *VisionAnalyzer) AnalyzeFrames(ctx context.Context, frames []core.FrameRecord) []core.PerFrameAnalysis {
	results := make([]core.PerFrameAnalysis, len(frames))
	sem := make(chan struct{}, va.workers)
	var wg sync.WaitGroup

	for i, frame := range frames {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, frame core.FrameRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			log.Printf("Analyzing frame %d/%d for %s", i+1, len(frames), frame.Zone)
			results[i] = va.analyzeFrame(ctx, frame)
		}(i, frame)
	}
	wg.Wait()

	return results
}

func (va *VisionAnalyzer) analyzeFrame(ctx context.Context, frame core.FrameRecord) core.PerFrameAnalysis {
	prompt := fmt.Sprintf(visionPromptTemplate, frame.Zone, frame.Zone)

	raw, err := va.provider.AnalyzeImage(ctx, prompt, frame.ImageBytes)
	if err != nil {
		log.Printf("Error analyzing frame %d of %s: %v", frame.FrameIndex, frame.SourceFile, err)
		return errorFrameAnalysis(frame, fmt.Sprintf("Analysis failed: %v", err))
	}

	var analysis core.PerFrameAnalysis
	if rec, ok := ExtractJSON(raw); ok {
		if err := decodeInto(visionSchema.Repair(rec), &analysis); err != nil {
			analysis = fallbackFrameAnalysis(raw, frame.Zone)
		}
	} else {
		analysis = fallbackFrameAnalysis(raw, frame.Zone)
	}

	// Models occasionally drop the zone echo; the frame knows where it
	// came from.
	if analysis.Zone == "" || analysis.Zone == "unknown" {
		analysis.Zone = frame.Zone
	}
	analysis.FrameIndex = frame.FrameIndex
	analysis.Timestamp = frame.Timestamp
	analysis.SourceFile = frame.SourceFile
	analysis.AnalyzedAt = time.Now().Format(time.RFC3339)
	return analysis
}

// fallbackFrameAnalysis is the schema-complete record produced when the
// reply carried no parseable JSON. The raw text is preserved, truncated, in
// the notes for manual review.
func fallbackFrameAnalysis(raw, zone string) core.PerFrameAnalysis {
	if len(raw) > 500 {
		raw = raw[:500]
	}
	return core.PerFrameAnalysis{
		Zone:                 zone,
		CrowdDensity:         "moderate",
		CrowdCountEstimate:   "unknown",
		CrowdBehavior:        "calm",
		PotentialRisks:       []string{"Analysis parsing incomplete"},
		SafetyObservations:   []string{"Manual review recommended"},
		InfrastructureStatus: []string{"Status unclear"},
		WeatherConditions:    "unknown",
		LightingConditions:   "fair",
		AccessibilityIssues:  []string{},
		RecommendedActions:   []string{"Review raw analysis output"},
		ConfidenceScore:      0.3,
		AdditionalNotes:      fmt.Sprintf("Raw analysis: %s...", raw),
		ParsingError:         true,
	}
}

// errorFrameAnalysis is the record produced when the model call itself
// failed. Confidence is zero and the error flag excludes it from zone
// statistics.
func errorFrameAnalysis(frame core.FrameRecord, errorMessage string) core.PerFrameAnalysis {
	return core.PerFrameAnalysis{
		Zone:                 frame.Zone,
		CrowdDensity:         "unknown",
		CrowdCountEstimate:   "error",
		CrowdBehavior:        "unknown",
		PotentialRisks:       []string{"Analysis system error"},
		SafetyObservations:   []string{"System malfunction detected"},
		InfrastructureStatus: []string{"Unable to assess"},
		WeatherConditions:    "unknown",
		LightingConditions:   "unknown",
		AccessibilityIssues:  []string{},
		RecommendedActions:   []string{"Check system configuration"},
		ConfidenceScore:      0.0,
		AdditionalNotes:      errorMessage,
		Error:                true,
		ErrorMessage:         errorMessage,
	}
}

// SampleVisionData fabricates plausible analyses for the first two zones so
// the rest of the pipeline can be exercised when no footage is present.
func SampleVisionData(zoneNames []string) []core.PerFrameAnalysis {
	zones := ZonesForCount(zoneNames, 2)
	densities := []string{"moderate", "high"}
	behaviors := []string{"excited", "calm"}

	analyses := make([]core.PerFrameAnalysis, 0, len(zones))
	for i, zone := range zones {
		density := densities[i%len(densities)]
		count := "1200"
		risks := []string{}
		actions := []string{"Continue monitoring"}
		if density == "high" {
			count = "2500"
			risks = []string{"Bottleneck near entrance"}
			actions = []string{"Monitor crowd levels"}
		}
		analyses = append(analyses, core.PerFrameAnalysis{
			Zone:                 zone,
			CrowdDensity:         density,
			CrowdCountEstimate:   count,
			CrowdBehavior:        behaviors[i%len(behaviors)],
			PotentialRisks:       risks,
			SafetyObservations:   []string{"Normal crowd flow", "Exits clearly visible"},
			InfrastructureStatus: []string{"Barriers functioning", "Signage clear"},
			WeatherConditions:    "Clear and sunny",
			LightingConditions:   "good",
			AccessibilityIssues:  []string{},
			RecommendedActions:   actions,
			ConfidenceScore:      0.8,
			AdditionalNotes:      fmt.Sprintf("Sample analysis for %s", zone),
			FrameIndex:           i,
			Timestamp:            fmt.Sprintf("Frame_%03d", i),
			SourceFile:           "sample",
			AnalyzedAt:           time.Now().Format(time.RFC3339),
		})
	}
	log.Printf("Created %d sample vision analyses", len(analyses))
	return analyses
}
