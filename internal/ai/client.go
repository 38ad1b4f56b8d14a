// Package ai talks to an OpenAI-compatible chat completions endpoint
// (AgentRouter by default) and returns raw model output. Response
// validation lives with the caller.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gazp_advisor/internal/config"
)

// Completer is the slice of the client the recommendation provider
// depends on. Tests substitute a scripted implementation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

type Client struct {
	apiKey      string
	url         string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

var _ Completer = (*Client)(nil)

func NewClient(cfg *config.Config) *Client {
	return &Client{
		apiKey:      cfg.AIAPIKey,
		url:         strings.TrimRight(cfg.AIBaseURL, "/") + "/chat/completions",
		model:       cfg.AIModel,
		temperature: cfg.AITemperature,
		maxTokens:   cfg.AIMaxTokens,
		httpClient:  &http.Client{Timeout: cfg.AITimeout},
	}
}

// Complete sends one chat completion request and returns the model's
// message content verbatim. The json_object response format nudges the
// model toward parseable output but does not guarantee it.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	if c.apiKey == "" {
		return nil, &APIError{StatusCode: 401, Body: "API key not configured"}
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("AI request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("AI response decode failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no choices in AI response")
	}

	return &Completion{
		Content:    parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}
