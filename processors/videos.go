package processors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"eventAwareness/config"
	"eventAwareness/core"
)

var videoExtensions = []string{"*.mp4", "*.avi", "*.mov", "*.mkv"}

// DiscoverVideos scans the footage directory and assigns each file a zone
// name by position. Files are grouped by extension in a fixed order so the
// zone assignment is stable between runs.
func DiscoverVideos(cfg *config.Config) []core.VideoInfo {
	var paths []string
	for _, ext := range videoExtensions {
		matches, err := filepath.Glob(filepath.Join(cfg.VideoDir, ext))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}

	zones := ZonesForCount(cfg.ZoneNames, len(paths))
	videos := make([]core.VideoInfo, 0, len(paths))
	for i, path := range paths {
		v := core.VideoInfo{
			Filename: filepath.Base(path),
			Path:     path,
			Zone:     zones[i],
		}
		if stats, err := ProbeVideoStats(path); err == nil {
			v.DurationSeconds = stats.DurationSeconds
			v.Duration = core.FormatTime(stats.DurationSeconds)
			v.SizeBytes = stats.SizeBytes
		} else if info, statErr := os.Stat(path); statErr == nil {
			v.SizeBytes = info.Size()
		}
		videos = append(videos, v)
	}
	return videos
}

// ZonesForCount returns n zone names: the configured list truncated or
// extended with generated names when more videos than names exist.
func ZonesForCount(names []string, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(names):
			out = append(out, names[i])
		case i < 26:
			out = append(out, fmt.Sprintf("Zone %c", 'A'+i))
		default:
			out = append(out, fmt.Sprintf("Zone %d", i+1))
		}
	}
	return out
}
