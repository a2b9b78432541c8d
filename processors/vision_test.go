package processors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eventAwareness/core"
)

func TestAnalyzeFramesWithMockProvider(t *testing.T) {
	frames := []core.FrameRecord{
		{Zone: "North Plaza", FrameIndex: 0, Timestamp: "Frame_000", SourceFile: "north.mp4"},
		{Zone: "Main Stage", FrameIndex: 3, Timestamp: "Frame_003", SourceFile: "stage.mp4"},
	}

	va := NewVisionAnalyzer(&MockProvider{}, 2)
	results := va.AnalyzeFrames(context.Background(), frames)

	if len(results) != len(frames) {
		t.Fatalf("expected %d results, got %d", len(frames), len(results))
	}
	for i, rec := range results {
		if rec.Error || rec.ParsingError {
			t.Errorf("result %d flagged as degraded: %+v", i, rec)
		}
		// The mock reply carries no zone, so the frame's zone wins.
		if rec.Zone != frames[i].Zone {
			t.Errorf("result %d zone = %q, want %q", i, rec.Zone, frames[i].Zone)
		}
		if rec.FrameIndex != frames[i].FrameIndex || rec.Timestamp != frames[i].Timestamp {
			t.Errorf("result %d lost frame identity: %+v", i, rec)
		}
		if rec.SourceFile != frames[i].SourceFile {
			t.Errorf("result %d source = %q, want %q", i, rec.SourceFile, frames[i].SourceFile)
		}
		if rec.AnalyzedAt == "" {
			t.Errorf("result %d missing analysis timestamp", i)
		}
		if rec.CrowdDensity != "moderate" {
			t.Errorf("result %d density = %q, want moderate", i, rec.CrowdDensity)
		}
	}
}

func TestAnalyzeFrameKeepsModelZone(t *testing.T) {
	va := NewVisionAnalyzer(&stubProvider{imageResponse: `{"zone": "VIP Area", "crowd_density": "low"}`}, 1)
	rec := va.analyzeFrame(context.Background(), core.FrameRecord{Zone: "North Plaza"})
	if rec.Zone != "VIP Area" {
		t.Errorf("explicit zone in reply should be kept, got %q", rec.Zone)
	}
	if rec.CrowdDensity != "low" {
		t.Errorf("density = %q, want low", rec.CrowdDensity)
	}
}

func TestAnalyzeFrameProviderError(t *testing.T) {
	va := NewVisionAnalyzer(&stubProvider{err: errors.New("connection refused")}, 1)
	rec := va.analyzeFrame(context.Background(), core.FrameRecord{
		Zone: "Food Court", FrameIndex: 2, SourceFile: "food.mp4",
	})

	if !rec.Error {
		t.Fatal("expected error flag on provider failure")
	}
	if rec.Zone != "Food Court" {
		t.Errorf("zone = %q, want Food Court", rec.Zone)
	}
	if rec.ConfidenceScore != 0.0 {
		t.Errorf("confidence = %v, want 0", rec.ConfidenceScore)
	}
	if !strings.Contains(rec.ErrorMessage, "connection refused") {
		t.Errorf("error message should carry the cause, got %q", rec.ErrorMessage)
	}
	if rec.CrowdCountEstimate != "error" {
		t.Errorf("count estimate = %q, want error", rec.CrowdCountEstimate)
	}
}

func TestAnalyzeFrameUnparseableReply(t *testing.T) {
	va := NewVisionAnalyzer(&stubProvider{imageResponse: "The crowd looks fine to me."}, 1)
	rec := va.analyzeFrame(context.Background(), core.FrameRecord{Zone: "Main Stage"})

	if !rec.ParsingError {
		t.Fatal("expected parsing error flag for prose reply")
	}
	if rec.Error {
		t.Error("parsing fallback should not set the hard error flag")
	}
	if rec.Zone != "Main Stage" {
		t.Errorf("zone = %q, want Main Stage", rec.Zone)
	}
	if rec.ConfidenceScore != 0.3 {
		t.Errorf("confidence = %v, want 0.3", rec.ConfidenceScore)
	}
	if !strings.HasPrefix(rec.AdditionalNotes, "Raw analysis: The crowd looks fine") {
		t.Errorf("raw reply should be preserved in notes, got %q", rec.AdditionalNotes)
	}
}

func TestSampleVisionData(t *testing.T) {
	analyses := SampleVisionData([]string{"North Plaza", "Main Stage", "Food Court"})
	if len(analyses) != 2 {
		t.Fatalf("expected 2 sample analyses, got %d", len(analyses))
	}

	first, second := analyses[0], analyses[1]
	if first.Zone != "North Plaza" || second.Zone != "Main Stage" {
		t.Errorf("zones = %q, %q", first.Zone, second.Zone)
	}
	if first.CrowdDensity != "moderate" || second.CrowdDensity != "high" {
		t.Errorf("densities = %q, %q", first.CrowdDensity, second.CrowdDensity)
	}
	if second.CrowdCountEstimate != "2500" {
		t.Errorf("high density count = %q, want 2500", second.CrowdCountEstimate)
	}
	if len(second.PotentialRisks) == 0 {
		t.Error("high density sample should carry a risk")
	}
	for i, a := range analyses {
		if a.ConfidenceScore != 0.8 {
			t.Errorf("sample %d confidence = %v, want 0.8", i, a.ConfidenceScore)
		}
		if a.SourceFile != "sample" {
			t.Errorf("sample %d source = %q, want sample", i, a.SourceFile)
		}
		if a.Error || a.ParsingError {
			t.Errorf("sample %d should be clean: %+v", i, a)
		}
	}
}

func TestSampleVisionDataPadsZoneNames(t *testing.T) {
	analyses := SampleVisionData(nil)
	if len(analyses) != 2 {
		t.Fatalf("expected 2 sample analyses, got %d", len(analyses))
	}
	if analyses[0].Zone != "Zone A" || analyses[1].Zone != "Zone B" {
		t.Errorf("default zones = %q, %q", analyses[0].Zone, analyses[1].Zone)
	}
}
