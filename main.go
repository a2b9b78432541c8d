package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"eventAwareness/config"
	"eventAwareness/core"
	"eventAwareness/processors"
	"eventAwareness/server"
	"eventAwareness/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		config.PrintConfigInstructions()
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		config.PrintConfigInstructions()
		log.Printf("Warning: configuration incomplete: %v", err)
	}

	if err := os.MkdirAll(core.DataRoot(), 0755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	coordinator := processors.NewCoordinator(cfg)

	insights := storage.NewInsightStore(cfg)
	backend := os.Getenv("STORE")
	if backend == "" {
		backend = "memory"
	}
	log.Printf("Insight store initialized: %s", backend)
	coordinator.SetInsightIndexer(storage.NewRunIndexer(insights))

	history, err := storage.OpenRunHistory(cfg.HistoryDB)
	if err != nil {
		log.Printf("Warning: run history disabled (%v)", err)
		history = nil
	} else {
		defer history.Close()
		coordinator.SetRunRecorder(history)
		log.Printf("Run history initialized: %s", cfg.HistoryDB)
	}

	handlers := server.NewHandlers(coordinator, insights, history, cfg)
	monitoring := server.NewMonitoringHandlers(coordinator, insights, history)

	// Analysis and query endpoints
	http.HandleFunc("/analyze", handlers.AnalyzeHandler)
	http.HandleFunc("/summary", handlers.SummaryHandler)
	http.HandleFunc("/zones", handlers.ZonesHandler)
	http.HandleFunc("/zone-detail", handlers.ZoneDetailHandler)
	http.HandleFunc("/question", handlers.QuestionHandler)
	http.HandleFunc("/suggested-questions", handlers.SuggestedQuestionsHandler)

	// Inventory and history endpoints
	http.HandleFunc("/status", handlers.StatusHandler)
	http.HandleFunc("/runs", handlers.RunsHandler)
	http.HandleFunc("/videos", handlers.VideosHandler)
	http.HandleFunc("/search-insights", handlers.SearchInsightsHandler)

	// Health monitoring endpoints
	http.HandleFunc("/health", monitoring.HealthCheckHandler)
	http.HandleFunc("/stats", monitoring.StatsHandler)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
