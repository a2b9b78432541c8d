package processors

import (
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"eventAwareness/config"
	"eventAwareness/core"
)

func grayFrame(w, h int, value uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = value
	}
	return g
}

func TestMotionScoreIdenticalFrames(t *testing.T) {
	a := grayFrame(8, 8, 120)
	b := grayFrame(8, 8, 120)
	if score := motionScore(a, b); score != 0 {
		t.Errorf("identical frames should score 0, got %f", score)
	}
}

func TestMotionScoreFullChange(t *testing.T) {
	a := grayFrame(8, 8, 0)
	b := grayFrame(8, 8, 255)
	if score := motionScore(a, b); score != 1.0 {
		t.Errorf("fully changed frame should score 1.0, got %f", score)
	}
}

func TestMotionScorePartialChange(t *testing.T) {
	a := grayFrame(4, 4, 100)
	b := grayFrame(4, 4, 100)
	// Change half the pixels by more than the 30-intensity threshold.
	for i := 0; i < 8; i++ {
		b.Pix[i] = 200
	}
	score := motionScore(a, b)
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("expected score 0.5, got %f", score)
	}
}

func TestMotionScoreThresholdIsStrict(t *testing.T) {
	a := grayFrame(4, 4, 100)
	b := grayFrame(4, 4, 130) // delta exactly 30 does not count
	if score := motionScore(a, b); score != 0 {
		t.Errorf("delta of exactly 30 should not count as change, got %f", score)
	}
	c := grayFrame(4, 4, 131)
	if score := motionScore(a, c); score != 1.0 {
		t.Errorf("delta of 31 should count on every pixel, got %f", score)
	}
}

func TestMotionScoreMismatchedDimensions(t *testing.T) {
	a := grayFrame(4, 4, 0)
	b := grayFrame(8, 8, 0)
	if score := motionScore(a, b); score != 1.0 {
		t.Errorf("mismatched dimensions should score 1.0, got %f", score)
	}
}

func TestSelectByMotionZeroMotion(t *testing.T) {
	frames := []*image.Gray{
		grayFrame(8, 8, 90), grayFrame(8, 8, 90), grayFrame(8, 8, 90),
		grayFrame(8, 8, 90), grayFrame(8, 8, 90),
	}
	picks := selectByMotion(frames, 0.3, 10)
	if len(picks) != 1 || picks[0] != 0 {
		t.Errorf("a static video should yield only the baseline frame, got %v", picks)
	}
}

func TestSelectByMotionAlternatingFrames(t *testing.T) {
	var frames []*image.Gray
	for i := 0; i < 6; i++ {
		value := uint8(0)
		if i%2 == 1 {
			value = 255
		}
		frames = append(frames, grayFrame(8, 8, value))
	}

	picks := selectByMotion(frames, 0.3, 10)
	if len(picks) != 6 {
		t.Errorf("every alternating frame should be selected, got %v", picks)
	}

	capped := selectByMotion(frames, 0.3, 4)
	if len(capped) != 4 {
		t.Errorf("selection should stop at the frame cap, got %v", capped)
	}
	for i, pick := range capped {
		if pick != i {
			t.Errorf("expected the first four frames, got %v", capped)
		}
	}
}

func TestSelectByMotionBaselineAdvances(t *testing.T) {
	// The baseline is the previously examined frame, not the previously
	// selected one. Frame 1 changes 20% of pixels against frame 0 and frame 2
	// changes 35% against frame 0, but only 15% against frame 1, so neither
	// clears a 0.3 threshold.
	f0 := grayFrame(10, 10, 0)
	f1 := grayFrame(10, 10, 0)
	for i := 0; i < 20; i++ {
		f1.Pix[i] = 100
	}
	f2 := grayFrame(10, 10, 0)
	for i := 0; i < 35; i++ {
		f2.Pix[i] = 100
	}

	picks := selectByMotion([]*image.Gray{f0, f1, f2}, 0.3, 10)
	if len(picks) != 1 || picks[0] != 0 {
		t.Errorf("expected only the baseline frame, got %v", picks)
	}
}

func TestSelectByMotionEmptyInput(t *testing.T) {
	if picks := selectByMotion(nil, 0.3, 10); picks != nil {
		t.Errorf("no frames should yield no picks, got %v", picks)
	}
	frames := []*image.Gray{grayFrame(4, 4, 0)}
	if picks := selectByMotion(frames, 0.3, 0); picks != nil {
		t.Errorf("a zero frame cap should yield no picks, got %v", picks)
	}
}

func TestToGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	rgba.Set(1, 1, color.RGBA{A: 255})

	gray := toGray(rgba)
	if gray.GrayAt(0, 0).Y < 200 {
		t.Errorf("white pixel should stay bright, got %d", gray.GrayAt(0, 0).Y)
	}
	if gray.GrayAt(1, 1).Y > 50 {
		t.Errorf("black pixel should stay dark, got %d", gray.GrayAt(1, 1).Y)
	}

	// Already-gray images pass through unchanged.
	g := grayFrame(2, 2, 42)
	if toGray(g) != g {
		t.Error("expected gray image to be returned as-is")
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := parseFrameRate(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("parseFrameRate(%q): expected %f, got %f", c.in, c.want, got)
		}
	}
}

func TestExtractFramesMissingFile(t *testing.T) {
	fs := NewFrameSelector(&config.Config{FrameInterval: 30, MotionThreshold: 0.3, MaxFrames: 10})
	video := core.VideoInfo{
		Filename: "missing.mp4",
		Path:     filepath.Join(t.TempDir(), "missing.mp4"),
		Zone:     "Zone A",
	}
	frames, err := fs.ExtractFrames(video)
	if err != nil {
		t.Fatalf("missing file should degrade without error, got %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("missing file should yield no frames, got %d", len(frames))
	}
}

func TestProbeVideoStatsMissingFile(t *testing.T) {
	_, err := ProbeVideoStats(filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, core.ErrInputUnavailable) {
		t.Errorf("expected ErrInputUnavailable for a missing video file, got %v", err)
	}
}
