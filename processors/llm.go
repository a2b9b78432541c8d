package processors

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"eventAwareness/config"
	"eventAwareness/core"
)

// ModelProvider is the boundary to the external multimodal model. Both calls
// return the model's raw text reply, which callers treat as untrusted until
// it has passed schema repair. No retries: a failed call yields one
// error-flagged record downstream instead of blocking the batch.
type ModelProvider interface {
	AnalyzeImage(ctx context.Context, prompt string, imageJPEG []byte) (string, error)
	AnalyzeText(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewProvider selects the provider from configuration, falling back to the
// mock provider when credentials are missing so the pipeline stays runnable
// offline.
func NewProvider(cfg *config.Config) ModelProvider {
	switch cfg.LLMProvider {
	case "mock":
		return &MockProvider{}
	case "gemini":
		p, err := NewGeminiProvider(cfg)
		if err != nil {
			log.Printf("Warning: gemini provider unavailable (%v), using mock provider", err)
			return &MockProvider{}
		}
		return p
	default:
		if !cfg.HasValidAPI() {
			log.Printf("Warning: API credentials not configured, using mock provider")
			return &MockProvider{}
		}
		return NewOpenAIProvider(cfg)
	}
}

// ========== OpenAI-compatible provider ==========

type OpenAIProvider struct {
	cli         *openai.Client
	chatModel   string
	visionModel string
}

func NewOpenAIProvider(cfg *config.Config) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		cli:         openai.NewClientWithConfig(clientConfig),
		chatModel:   cfg.ChatModel,
		visionModel: cfg.VisionModel,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, prompt string, imageJPEG []byte) (string, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageJPEG)
	resp, err := p.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	return completionText(resp)
}

func (p *OpenAIProvider) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	resp, err := p.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   2000,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	return completionText(resp)
}

func completionText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", core.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// ========== Gemini provider ==========

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(cfg *config.Config) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, fmt.Errorf("gemini_api_key is not set")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.GeminiModel}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) AnalyzeImage(ctx context.Context, prompt string, imageJPEG []byte) (string, error) {
	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData("jpeg", imageJPEG))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	return geminiText(resp)
}

func (p *GeminiProvider) AnalyzeText(ctx context.Context, prompt string) (string, error) {
	model := p.client.GenerativeModel(p.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	return geminiText(resp)
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", core.ErrMalformedResponse)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("%w: empty candidate content", core.ErrMalformedResponse)
	}
	return out, nil
}

// ========== Mock provider ==========

// MockProvider returns canned schema-valid responses so the full pipeline
// can run without credentials. Text responses are picked by the digest
// marker embedded in each caller's prompt.
type MockProvider struct{}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) AnalyzeImage(_ context.Context, _ string, _ []byte) (string, error) {
	return mockVisionResponse, nil
}

func (p *MockProvider) AnalyzeText(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "FIELD REPORTS TO ANALYZE"):
		return mockReportResponse, nil
	case strings.Contains(prompt, "DATA TO ANALYZE"):
		return mockFusionResponse, nil
	default:
		return mockAnswerResponse, nil
	}
}

const mockVisionResponse = `{
  "crowd_density": "moderate",
  "crowd_count_estimate": "800",
  "crowd_behavior": "calm",
  "potential_risks": [],
  "safety_observations": ["Normal crowd flow", "Exits clearly visible"],
  "infrastructure_status": ["Barriers functioning"],
  "weather_conditions": "clear",
  "lighting_conditions": "good",
  "accessibility_issues": [],
  "recommended_actions": ["Continue monitoring"],
  "confidence_score": 0.8,
  "additional_notes": "Mock analysis"
}`

const mockReportResponse = `{
  "event_overview": {"event_type": "outdoor event", "date": "unknown", "time": "unknown", "overall_status": "green"},
  "zone_summaries": [],
  "priority_issues": [],
  "resource_status": {"medical_teams": "on standby", "security_personnel": "deployed", "emergency_services": "ready", "communication_systems": "operational"},
  "environmental_factors": {"weather_conditions": "clear", "weather_forecast": "stable", "visibility": "good", "environmental_risks": []},
  "operational_recommendations": [],
  "key_metrics": {"total_crowd_estimate": "unknown", "incident_count": "0", "medical_cases": "0", "security_incidents": "0"},
  "next_actions": ["Continue routine monitoring"],
  "confidence_assessment": {"data_quality": "medium", "information_completeness": "partial", "reliability_score": 0.6}
}`

const mockFusionResponse = `{
  "executive_summary": {"overall_situation": "Situation stable across monitored zones", "threat_level": "green", "immediate_concerns": [], "recommendation_urgency": "low"},
  "zone_analysis": [],
  "cross_validation": {"vision_report_alignment": "consistent", "discrepancies": [], "confidence_assessment": "moderate", "data_gaps": []},
  "operational_priorities": [],
  "confidence_metrics": {"overall_confidence": 0.6, "vision_data_quality": "mock", "report_data_quality": "mock", "synthesis_reliability": "mock"}
}`

const mockAnswerResponse = `{
  "answer": "Mock provider active: situation appears stable based on available data.",
  "confidence": 0.5,
  "supporting_evidence": ["Mock analysis pipeline"],
  "data_sources": ["mock"],
  "additional_context": "",
  "limitations": ["Responses are canned mock data"],
  "related_information": [],
  "recommendations": [],
  "follow_up_questions": []
}`
