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

// anthropicVersion is the API version header required on every request.
const anthropicVersion = "2023-06-01"

// Anthropic implements the adapter for Anthropic's messages API.
// Unlike OpenAI, the system prompt travels in a dedicated top-level
// field and authentication uses the x-api-key header.
type Anthropic struct {
	config configuration.ProviderConfig
}

// NewAnthropic creates an Anthropic adapter, defaulting to the
// production endpoint when none is configured.
func NewAnthropic(cfg configuration.ProviderConfig) *Anthropic {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	return &Anthropic{config: cfg}
}

// Name returns the provider name.
func (a *Anthropic) Name() string { return ProviderAnthropic }

// Build constructs the messages request with the review prompts and
// versioned authentication headers.
func (a *Anthropic) Build(ctx context.Context, req *backend.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/messages", a.config.Endpoint)

	body := map[string]any{
		"model":      a.config.Model,
		"max_tokens": defaultMaxTokens,
		"system":     systemPrompt,
		"messages": []map[string]any{
			{"role": "user", "content": userPrompt(req)},
		},
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
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts the model reply and usage from an Anthropic response.
func (a *Anthropic) Parse(httpResp *http.Response) (*reply, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAnthropicError(httpResp.StatusCode, httpResp.Header, body)
	}

	var resp struct {
		ID      string `json:"id"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content = block.Text
			break
		}
	}
	if content == "" {
		return nil, &backend.Error{
			Provider: ProviderAnthropic,
			Class:    backend.ClassTransient,
			Message:  backend.ErrEmptyResponse.Error(),
		}
	}

	requestID := httpResp.Header.Get("request-id")
	if requestID == "" {
		requestID = resp.ID
	}

	return &reply{
		Content:    content,
		TokensUsed: int64(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		RequestID:  requestID,
	}, nil
}

// parseAnthropicError converts Anthropic error payloads to classified
// backend errors, honoring any Retry-After header.
func parseAnthropicError(statusCode int, header http.Header, body []byte) error {
	berr := &backend.Error{
		Provider:   ProviderAnthropic,
		StatusCode: statusCode,
		RetryAfter: retryAfterSeconds(header),
	}

	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		berr.Message = errResp.Error.Message
		berr.Code = errResp.Error.Type
		berr.Class = backend.ClassifyStatus(statusCode, errResp.Error.Type)
		return berr
	}

	berr.Message = string(body)
	berr.Class = backend.ClassifyStatus(statusCode, "")
	return berr
}
