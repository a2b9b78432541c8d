package processors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"eventAwareness/config"
	"eventAwareness/core"
)

// FrameSelector extracts analysis-worthy frames from zone footage. Every
// k-th frame is examined; a frame is selected when enough pixels changed
// against the previously examined frame. The first examined frame is always
// selected to establish a baseline.
type FrameSelector struct {
	Interval  int
	Threshold float64
	MaxFrames int
}

func NewFrameSelector(cfg *config.Config) *FrameSelector {
	return &FrameSelector{
		Interval:  cfg.FrameInterval,
		Threshold: cfg.MotionThreshold,
		MaxFrames: cfg.MaxFrames,
	}
}

// ExtractFrames returns at most MaxFrames selected frames from the video.
// A missing or undecodable file yields an empty result, not an error; the
// caller records the gap as a warning and the run continues.
func (fs *FrameSelector) ExtractFrames(video core.VideoInfo) ([]core.FrameRecord, error) {
	if _, err := os.Stat(video.Path); err != nil {
		log.Printf("Warning: video file not found: %s", video.Path)
		return nil, nil
	}

	scratch := core.ScratchDir(core.NewID())
	defer os.RemoveAll(scratch)

	pattern := filepath.Join(scratch, "frame_%05d.jpg")
	filter := fmt.Sprintf("select='not(mod(n,%d))'", fs.Interval)
	err := runFFmpeg([]string{
		"-y", "-i", video.Path,
		"-vf", filter, "-vsync", "vfr",
		"-q:v", "4",
		pattern,
	})
	if err != nil {
		log.Printf("Warning: could not decode video %s: %v", video.Filename, err)
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(scratch, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var examined []*image.Gray
	var raw [][]byte
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			log.Printf("Warning: skipping undecodable frame %s: %v", filepath.Base(file), err)
			continue
		}
		examined = append(examined, toGray(img))
		raw = append(raw, data)
	}

	var selected []core.FrameRecord
	for _, pick := range selectByMotion(examined, fs.Threshold, fs.MaxFrames) {
		score := 1.0
		if pick > 0 {
			score = motionScore(examined[pick-1], examined[pick])
		}
		idx := len(selected)
		selected = append(selected, core.FrameRecord{
			Zone:        video.Zone,
			FrameIndex:  idx,
			ImageBytes:  raw[pick],
			SourceFile:  video.Filename,
			Timestamp:   fmt.Sprintf("Frame_%03d", idx),
			MotionScore: score,
		})
		if pick == 0 {
			log.Printf("Selected first frame from %s", video.Filename)
		} else {
			log.Printf("Selected frame %d from %s (motion score %.3f)", idx, video.Filename, score)
		}
	}

	log.Printf("Extracted %d frames from %s", len(selected), video.Filename)
	return selected, nil
}

// selectByMotion picks which examined frames to keep. The first frame is
// always kept to establish a baseline; each later frame is kept when its
// motion score against the immediately preceding examined frame exceeds the
// threshold. The baseline advances to every examined frame whether or not
// it was selected. Selection stops once maxFrames frames are kept.
func selectByMotion(examined []*image.Gray, threshold float64, maxFrames int) []int {
	if len(examined) == 0 || maxFrames <= 0 {
		return nil
	}
	picks := []int{0}
	for i := 1; i < len(examined) && len(picks) < maxFrames; i++ {
		if motionScore(examined[i-1], examined[i]) > threshold {
			picks = append(picks, i)
		}
	}
	return picks
}

// motionScore returns the fraction of pixels whose intensity changed by more
// than 30 between two grayscale frames. Mismatched dimensions count as full
// change.
func motionScore(prev, cur *image.Gray) float64 {
	if !prev.Rect.Eq(cur.Rect) || prev.Stride != cur.Stride {
		return 1.0
	}
	if len(cur.Pix) == 0 {
		return 0
	}
	changed := 0
	for i := range cur.Pix {
		d := int(cur.Pix[i]) - int(prev.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > 30 {
			changed++
		}
	}
	return float64(changed) / float64(len(cur.Pix))
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Rect, img, img.Bounds().Min, draw.Src)
	return gray
}

func runFFmpeg(args []string) error {
	cmd := exec.Command("ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %v: %s", err, core.Truncate(strings.TrimSpace(stderr.String()), 300))
	}
	return nil
}

// VideoStats holds the probe results for a video file.
type VideoStats struct {
	Filename        string  `json:"filename"`
	DurationSeconds float64 `json:"duration_seconds"`
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Resolution      string  `json:"resolution"`
	SizeBytes       int64   `json:"size_bytes"`
}

// ProbeVideoStats inspects a video with ffprobe.
func ProbeVideoStats(path string) (VideoStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return VideoStats{}, fmt.Errorf("%w: %s", core.ErrInputUnavailable, path)
	}

	cmd := exec.Command("ffprobe", "-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return VideoStats{}, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Streams []struct {
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return VideoStats{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	stats := VideoStats{Filename: filepath.Base(path), SizeBytes: info.Size()}
	stats.DurationSeconds, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	if len(probe.Streams) > 0 {
		s := probe.Streams[0]
		stats.Width, stats.Height = s.Width, s.Height
		stats.Resolution = fmt.Sprintf("%dx%d", s.Width, s.Height)
		stats.FPS = parseFrameRate(s.RFrameRate)
	}
	if stats.FPS > 0 {
		stats.TotalFrames = int(stats.DurationSeconds * stats.FPS)
	}
	return stats, nil
}

// parseFrameRate parses ffprobe's rational rate notation ("30000/1001").
func parseFrameRate(rate string) float64 {
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, _ := strconv.ParseFloat(rate, 64)
	return f
}
