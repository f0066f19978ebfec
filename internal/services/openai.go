package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talekeeper/npc-agent/pkg/chat"
)

const (
	msgNoResponse = "(no response)"

	ChatTemperature = 0.75
	ChatMaxTokens   = 200

	InsightTemperature = 0.5
	InsightMaxTokens   = 100
)

// OpenAIService implements LLMService against an OpenAI-compatible chat
// completions API.
type OpenAIService struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIChatRequest represents the request structure for chat completions
type OpenAIChatRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream"`
}

// OpenAIChatChoice represents a single choice in the completion response
type OpenAIChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// OpenAIChatResponse represents the response structure for chat completions
type OpenAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIService creates a new OpenAI-compatible chat service
func NewOpenAIService(apiKey, baseURL, modelName string, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{
		apiKey:    apiKey,
		baseURL:   baseURL,
		modelName: modelName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// InitModel initializes the model (no explicit initialization required)
func (o *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

// chatCompletion makes a chat completion request with the given sampling
// parameters.
func (o *OpenAIService) chatCompletion(ctx context.Context, messages []chat.ChatMessage, temperature float64, maxTokens int) (string, error) {
	openaiReq := OpenAIChatRequest{
		Model:       o.modelName,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrUpstreamRateLimited, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if openaiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
	}

	if len(openaiResp.Choices) == 0 {
		return msgNoResponse, nil
	}

	return openaiResp.Choices[0].Message.Content, nil
}

// Chat generates the in-character reply.
func (o *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	return o.chatCompletion(ctx, messages, ChatTemperature, ChatMaxTokens)
}

// Insight generates the director's note with tighter, cooler sampling.
func (o *OpenAIService) Insight(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	return o.chatCompletion(ctx, messages, InsightTemperature, InsightMaxTokens)
}
