package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable of the awareness service. Values come from
// config.json with environment variables taking precedence, so deployments
// can override single fields without editing the file.
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	ChatModel      string `json:"chat_model"`
	VisionModel    string `json:"vision_model"`
	EmbeddingModel string `json:"embedding_model"`

	LLMProvider  string `json:"llm_provider"` // "openai", "gemini", "mock"
	GeminiAPIKey string `json:"gemini_api_key"`
	GeminiModel  string `json:"gemini_model"`

	VideoDir   string   `json:"video_dir"`
	ReportPath string   `json:"report_path"`
	ZoneNames  []string `json:"zone_names"`

	MotionThreshold float64 `json:"motion_threshold"`
	FrameInterval   int     `json:"frame_interval"`
	MaxFrames       int     `json:"max_frames"`
	MaxWorkers      int     `json:"max_workers"`

	PostgresURL string `json:"postgres_url"`
	HistoryDB   string `json:"history_db"`
}

var globalConfig *Config

// Load returns the cached configuration, reading config.json and the
// environment on first call.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config := defaults()

	// Try to load from config.json first
	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config.json: %w", err)
		}
	}

	// Override with environment variables if present
	applyEnv(config)
	fillMissing(config)

	globalConfig = config
	return globalConfig, nil
}

// Reset drops the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
}

func defaults() *Config {
	return &Config{
		BaseURL:         "https://api.openai.com/v1",
		ChatModel:       "gpt-4o-mini",
		VisionModel:     "gpt-4o",
		EmbeddingModel:  "text-embedding-3-small",
		LLMProvider:     "openai",
		GeminiModel:     "gemini-1.5-flash",
		VideoDir:        "videos",
		ReportPath:      "data/field_reports.txt",
		ZoneNames:       []string{"Zone A", "Zone B", "Zone C", "Zone D"},
		MotionThreshold: 0.3,
		FrameInterval:   30,
		MaxFrames:       10,
		MaxWorkers:      4,
		HistoryDB:       "data/runs.db",
	}
}

func applyEnv(config *Config) {
	if key := os.Getenv("API_KEY"); key != "" {
		config.APIKey = key
	}
	if url := os.Getenv("BASE_URL"); url != "" {
		config.BaseURL = url
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		config.ChatModel = model
	}
	if model := os.Getenv("VISION_MODEL"); model != "" {
		config.VisionModel = model
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		config.EmbeddingModel = model
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLMProvider = provider
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.GeminiAPIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}
	if dir := os.Getenv("VIDEOS_DIR"); dir != "" {
		config.VideoDir = dir
	}
	if path := os.Getenv("FIELD_REPORTS_FILE"); path != "" {
		config.ReportPath = path
	}
	if zones := os.Getenv("ZONES"); zones != "" {
		config.ZoneNames = splitZones(zones)
	}
	if v := os.Getenv("MOTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.MotionThreshold = f
		}
	}
	if v := os.Getenv("FRAME_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.FrameInterval = n
		}
	}
	if v := os.Getenv("MAX_FRAMES_PER_VIDEO"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxFrames = n
		}
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxWorkers = n
		}
	}
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		config.PostgresURL = url
	}
	if path := os.Getenv("HISTORY_DB"); path != "" {
		config.HistoryDB = path
	}
}

// fillMissing restores defaults for fields an explicit config.json may have
// zeroed out, so a sparse file never disables frame selection outright.
func fillMissing(config *Config) {
	def := defaults()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.ChatModel == "" {
		config.ChatModel = def.ChatModel
	}
	if config.VisionModel == "" {
		config.VisionModel = def.VisionModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = def.EmbeddingModel
	}
	if config.LLMProvider == "" {
		config.LLMProvider = def.LLMProvider
	}
	if config.GeminiModel == "" {
		config.GeminiModel = def.GeminiModel
	}
	if config.VideoDir == "" {
		config.VideoDir = def.VideoDir
	}
	if config.ReportPath == "" {
		config.ReportPath = def.ReportPath
	}
	if len(config.ZoneNames) == 0 {
		config.ZoneNames = def.ZoneNames
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = def.MotionThreshold
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = def.FrameInterval
	}
	if config.MaxFrames <= 0 {
		config.MaxFrames = def.MaxFrames
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.HistoryDB == "" {
		config.HistoryDB = def.HistoryDB
	}
}

func splitZones(zones string) []string {
	var out []string
	for _, z := range strings.Split(zones, ",") {
		if z = strings.TrimSpace(z); z != "" {
			out = append(out, z)
		}
	}
	return out
}

// Validate reports what is missing for the configured provider.
func (c *Config) Validate() error {
	var errors []string

	switch c.LLMProvider {
	case "openai":
		if strings.TrimSpace(c.APIKey) == "" {
			errors = append(errors, "API Key is required for the openai provider")
		}
		if strings.TrimSpace(c.BaseURL) == "" {
			errors = append(errors, "Base URL is required")
		}
	case "gemini":
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			errors = append(errors, "Gemini API Key is required for the gemini provider")
		}
	case "mock":
		// Nothing to check, runs fully offline.
	default:
		errors = append(errors, fmt.Sprintf("unknown llm_provider %q (expected openai, gemini or mock)", c.LLMProvider))
	}

	if c.FrameInterval <= 0 {
		errors = append(errors, "frame_interval must be positive")
	}
	if c.MaxFrames <= 0 {
		errors = append(errors, "max_frames must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// HasValidAPI reports whether the active provider has credentials. When it
// returns false the service falls back to the mock provider.
func (c *Config) HasValidAPI() bool {
	switch c.LLMProvider {
	case "gemini":
		return strings.TrimSpace(c.GeminiAPIKey) != ""
	case "mock":
		return true
	default:
		return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseURL) != ""
	}
}

// PrintConfigInstructions explains how to fill config.json when validation
// fails at startup.
func PrintConfigInstructions() {
	fmt.Println("\n=== Configuration ===")
	fmt.Println("Fill in config.json (or the matching environment variables):")
	fmt.Println("1. api_key: your OpenAI-compatible API key (env: API_KEY)")
	fmt.Println("2. base_url: API base URL (default: https://api.openai.com/v1)")
	fmt.Println("3. vision_model: model used for frame analysis (default: gpt-4o)")
	fmt.Println("4. chat_model: model used for reports, fusion and questions (default: gpt-4o-mini)")
	fmt.Println("5. llm_provider: openai, gemini or mock (default: openai)")
	fmt.Println("6. gemini_api_key: only needed when llm_provider is gemini (env: GEMINI_API_KEY)")
	fmt.Println("7. video_dir: directory scanned for zone footage (default: videos)")
	fmt.Println("8. report_path: free-text field reports file (default: data/field_reports.txt)")
	fmt.Println("\nExample:")
	fmt.Println(`{
  "api_key": "your-api-key-here",
  "base_url": "https://api.openai.com/v1",
  "vision_model": "gpt-4o",
  "chat_model": "gpt-4o-mini",
  "llm_provider": "openai",
  "video_dir": "videos",
  "report_path": "data/field_reports.txt",
  "zone_names": ["Zone A", "Zone B", "Zone C", "Zone D"],
  "motion_threshold": 0.3,
  "frame_interval": 30,
  "max_frames": 10
}`)
	fmt.Println("\nRestart the service after updating the configuration.")
	fmt.Println("==================")
}
