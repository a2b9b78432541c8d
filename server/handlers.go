package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"eventAwareness/config"
	"eventAwareness/core"
	"eventAwareness/processors"
	"eventAwareness/storage"
)

// Handlers bundles the HTTP endpoints around the coordinator and its stores.
type Handlers struct {
	coordinator *processors.Coordinator
	insights    storage.InsightStore
	history     *storage.RunHistory
	cfg         *config.Config
}

// NewHandlers creates the endpoint set. history may be nil when run history
// is disabled.
func NewHandlers(coordinator *processors.Coordinator, insights storage.InsightStore, history *storage.RunHistory, cfg *config.Config) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		insights:    insights,
		history:     history,
		cfg:         cfg,
	}
}

type QuestionRequest struct {
	Question string `json:"question"`
}

type SearchInsightsRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type SearchInsightsResponse struct {
	RunID   string               `json:"run_id,omitempty"`
	Query   string               `json:"query"`
	Hits    []storage.InsightHit `json:"hits"`
	Message string               `json:"message,omitempty"`
}

// AnalyzeHandler triggers a full analysis run. The run executes synchronously
// and survives client disconnects; a second trigger while one is active is
// rejected with 409.
func (h *Handlers) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	result, err := h.coordinator.RunFullAnalysis(context.Background())
	if err != nil {
		if errors.Is(err, core.ErrRunInProgress) {
			core.WriteJSON(w, http.StatusConflict, map[string]string{"error": "analysis already in progress"})
			return
		}
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// SummaryHandler returns the dashboard summary of the latest fusion state.
func (h *Handlers) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	core.WriteJSON(w, http.StatusOK, h.coordinator.GetCurrentSummary())
}

// ZonesHandler lists the per-zone vision summaries from the latest snapshot.
func (h *Handlers) ZonesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snap := h.coordinator.Snapshot()
	if snap == nil {
		core.WriteJSON(w, http.StatusOK, map[string]any{"zones": []core.ZoneVisionSummary{}, "count": 0})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"zones": snap.ZoneSummaries, "count": len(snap.ZoneSummaries)})
}

// ZoneDetailHandler returns the merged fusion and vision view for one zone.
func (h *Handlers) ZoneDetailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	zone := strings.TrimSpace(r.URL.Query().Get("zone"))
	if zone == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "zone parameter required"})
		return
	}
	detail, err := h.coordinator.GetZoneDetail(zone)
	if err != nil {
		if errors.Is(err, core.ErrZoneNotFound) {
			core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, detail)
}

// QuestionHandler answers a natural-language question against the snapshot.
func (h *Handlers) QuestionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return
	}
	answer := h.coordinator.AnswerQuestion(r.Context(), question)
	core.WriteJSON(w, http.StatusOK, answer)
}

// SuggestedQuestionsHandler returns question prompts fitting the snapshot.
func (h *Handlers) SuggestedQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	questions := h.coordinator.SuggestedQuestions()
	core.WriteJSON(w, http.StatusOK, map[string]any{"questions": questions, "count": len(questions)})
}

// StatusHandler reports coordinator state and loaded data volumes.
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	core.WriteJSON(w, http.StatusOK, h.coordinator.GetSystemStatus())
}

// RunsHandler lists recent analysis runs, newest first.
func (h *Handlers) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := h.coordinator.RecentRuns(limit)
	if err != nil {
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []core.RunResult{}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// VideosHandler lists the video files currently discoverable, with probe
// metadata where ffprobe is available.
func (h *Handlers) VideosHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	videos := processors.DiscoverVideos(h.cfg)
	if videos == nil {
		videos = []core.VideoInfo{}
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"videos": videos, "count": len(videos)})
}

// SearchInsightsHandler searches the indexed zone insights of the latest run.
func (h *Handlers) SearchInsightsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req SearchInsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "query required"})
		return
	}
	lastRun := h.coordinator.LastRun()
	if lastRun == nil {
		core.WriteJSON(w, http.StatusOK, SearchInsightsResponse{
			Query:   query,
			Hits:    []storage.InsightHit{},
			Message: "No analysis data available. Run analysis first.",
		})
		return
	}
	hits := h.insights.Search(lastRun.RunID, query, req.TopK)
	if hits == nil {
		hits = []storage.InsightHit{}
	}
	core.WriteJSON(w, http.StatusOK, SearchInsightsResponse{RunID: lastRun.RunID, Query: query, Hits: hits})
}
