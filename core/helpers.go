package core

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// DataRoot returns the working data directory, creating it if needed.
func DataRoot() string {
	root := os.Getenv("DATA_ROOT")
	if root == "" {
		root = "./data"
	}
	_ = os.MkdirAll(root, 0o755)
	return root
}

// ScratchDir returns a per-run scratch directory under the data root.
func ScratchDir(runID string) string {
	dir := filepath.Join(DataRoot(), "frames", runID)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// NewID returns a random 128-bit hex identifier.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// WriteJSON writes v as a JSON response without HTML escaping.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// Truncate shortens s to max bytes, appending "..." only when it was cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// FormatTime renders a duration in seconds as mm:ss.
func FormatTime(seconds float64) string {
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// UniqueStrings returns the distinct non-empty values of items in first-seen
// order.
func UniqueStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
