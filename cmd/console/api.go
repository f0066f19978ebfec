package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/talekeeper/npc-agent/pkg/character"
	"github.com/talekeeper/npc-agent/pkg/chat"
)

func getCharacter(client *http.Client, cfg *ConsoleConfig, id uuid.UUID) (*character.Character, error) {
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/v1/characters/%s", cfg.APIBaseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chat.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var c character.Character
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("failed to parse character: %w", err)
	}
	return &c, nil
}

func sendTurn(client *http.Client, cfg *ConsoleConfig, turnReq *chat.TurnRequest) (*chat.TurnResponse, error) {
	reqBody, err := json.Marshal(turnReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", cfg.APIBaseURL+"/v1/turn", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp chat.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			if errResp.RetryAfterSeconds > 0 {
				return nil, fmt.Errorf("%s (retry in %ds)", errResp.Error, errResp.RetryAfterSeconds)
			}
			return nil, fmt.Errorf("%s", errResp.Error)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var turnResp chat.TurnResponse
	if err := json.Unmarshal(body, &turnResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &turnResp, nil
}
