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
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	elevenLabsModelID        = "eleven_multilingual_v2"
	elevenLabsOutputFormat   = "mp3_44100_128"
)

// ElevenLabsService implements TTSService for the ElevenLabs API.
type ElevenLabsService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsService creates a new ElevenLabs speech-synthesis service
func NewElevenLabsService(apiKey string, logger *slog.Logger) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:  apiKey,
		baseURL: defaultElevenLabsBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API base URL (used in tests).
func (e *ElevenLabsService) WithBaseURL(baseURL string) *ElevenLabsService {
	e.baseURL = baseURL
	return e
}

// Synthesize renders text as mp3 audio using the given voice.
func (e *ElevenLabsService) Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}

	reqBody, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: elevenLabsModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, voiceID, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech synthesis failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
