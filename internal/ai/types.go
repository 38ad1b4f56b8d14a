package ai

import "fmt"

// chatRequest is the OpenAI-compatible chat completions payload
// AgentRouter accepts.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Completion is one model answer plus its token cost.
type Completion struct {
	Content    string
	TokensUsed int
}

// APIError is a non-2xx response from the AI endpoint. Status decides
// whether a retry can help.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("AI API error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt could succeed. Auth and
// malformed-request failures will fail identically every time.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case 400, 401, 403, 404, 422:
		return false
	}
	return true
}
