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

// Google implements the adapter for Google's Gemini generateContent
// API. The API key travels as a query parameter and prompts are
// expressed as content parts rather than role messages.
type Google struct {
	config configuration.ProviderConfig
}

// NewGoogle creates a Google adapter, defaulting to the production
// endpoint when none is configured.
func NewGoogle(cfg configuration.ProviderConfig) *Google {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	return &Google{config: cfg}
}

// Name returns the provider name.
func (a *Google) Name() string { return ProviderGoogle }

// Build constructs the generateContent request. Gemini has no
// dedicated system role, so the system prompt is prepended to the
// user content.
func (a *Google) Build(ctx context.Context, req *backend.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		a.config.Endpoint, a.config.Model, a.config.APIKey)

	prompt := fmt.Sprintf("%s\n\n%s", systemPrompt, userPrompt(req))
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": defaultMaxTokens,
			"temperature":     reviewTemperature,
		},
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
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts the model reply and usage from a Gemini response.
func (a *Google) Parse(httpResp *http.Response) (*reply, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGoogleError(httpResp.StatusCode, httpResp.Header, body)
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &backend.Error{
			Provider: ProviderGoogle,
			Class:    backend.ClassTransient,
			Message:  backend.ErrEmptyResponse.Error(),
		}
	}

	requestID := httpResp.Header.Get("x-goog-request-id")
	if requestID == "" {
		requestID = httpResp.Header.Get("x-request-id")
	}

	return &reply{
		Content:    resp.Candidates[0].Content.Parts[0].Text,
		TokensUsed: int64(resp.UsageMetadata.TotalTokenCount),
		RequestID:  requestID,
	}, nil
}

// parseGoogleError converts Gemini error payloads to classified
// backend errors, honoring any Retry-After header.
func parseGoogleError(statusCode int, header http.Header, body []byte) error {
	berr := &backend.Error{
		Provider:   ProviderGoogle,
		StatusCode: statusCode,
		RetryAfter: retryAfterSeconds(header),
	}

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		berr.Message = errResp.Error.Message
		berr.Code = errResp.Error.Status
		berr.Class = backend.ClassifyStatus(statusCode, errResp.Error.Status)
		return berr
	}

	berr.Message = string(body)
	berr.Class = backend.ClassifyStatus(statusCode, "")
	return berr
}
