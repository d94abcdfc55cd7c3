package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/configuration"
)

// OpenAI implements the adapter for OpenAI's chat/completions API,
// handling request formatting, bearer authentication, and
// OpenAI-specific error payloads.
type OpenAI struct {
	config configuration.ProviderConfig
}

// NewOpenAI creates an OpenAI adapter, defaulting to the production
// endpoint when none is configured.
func NewOpenAI(cfg configuration.ProviderConfig) *OpenAI {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{config: cfg}
}

// Name returns the provider name.
func (a *OpenAI) Name() string { return ProviderOpenAI }

// Build constructs the chat/completions request with the review
// prompts and authentication headers.
func (a *OpenAI) Build(ctx context.Context, req *backend.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/chat/completions", a.config.Endpoint)

	body := map[string]any{
		"model": a.config.Model,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(req)},
		},
		"max_tokens":  defaultMaxTokens,
		"temperature": reviewTemperature,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.config.APIKey))
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts the model reply and usage from an OpenAI response.
func (a *OpenAI) Parse(httpResp *http.Response) (*reply, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenAIError(httpResp.StatusCode, httpResp.Header, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &backend.Error{
			Provider: ProviderOpenAI,
			Class:    backend.ClassTransient,
			Message:  backend.ErrEmptyResponse.Error(),
		}
	}

	requestID := httpResp.Header.Get("x-request-id")
	if requestID == "" {
		requestID = resp.ID
	}

	return &reply{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: int64(resp.Usage.TotalTokens),
		RequestID:  requestID,
	}, nil
}

// parseOpenAIError converts OpenAI error payloads to classified
// backend errors, honoring any Retry-After header.
func parseOpenAIError(statusCode int, header http.Header, body []byte) error {
	berr := &backend.Error{
		Provider:   ProviderOpenAI,
		StatusCode: statusCode,
		RetryAfter: retryAfterSeconds(header),
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		berr.Message = errResp.Error.Message
		berr.Code = errResp.Error.Code
		berr.Class = backend.ClassifyStatus(statusCode, errResp.Error.Type)
		return berr
	}

	berr.Message = string(body)
	berr.Class = backend.ClassifyStatus(statusCode, "")
	return berr
}
