// Package providers implements the analysis backends: HTTP adapters
// for the OpenAI, Anthropic, and Google APIs that ask a model for
// review findings in a strict JSON shape, and a rule-based static
// backend that needs no network or credentials.
//
// Each AI provider follows the same adapter pattern: Build constructs
// the provider-specific HTTP request, Parse extracts the model's reply
// and normalized token usage, and a shared execution path turns the
// reply into findings. Provider-specific error payloads are mapped
// onto the backend error taxonomy so the fallback chain can classify
// them uniformly.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ahrav/go-critique/internal/backend"
	"github.com/ahrav/go-critique/internal/configuration"
)

// Supported provider identifiers. These match the configuration keys
// and the backend names referenced by chain entries.
const (
	ProviderOpenAI    = "openai"    // OpenAI chat-completions models
	ProviderAnthropic = "anthropic" // Anthropic messages models
	ProviderGoogle    = "google"    // Google generateContent models
	ProviderStatic    = "static"    // Built-in rule-based analysis
)

// ErrUnknownProvider indicates a configured provider with no adapter.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// adapter abstracts provider-specific HTTP communication. Build
// constructs the wire request; Parse extracts the model's textual
// reply and usage from the wire response.
type adapter interface {
	Build(ctx context.Context, req *backend.Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*reply, error)
	Name() string
}

// reply is a provider-neutral model response: the raw text the model
// produced plus usage accounting and the provider request id.
type reply struct {
	Content    string
	TokensUsed int64
	RequestID  string
}

// New builds the backend registry from configuration: one HTTP-backed
// backend per configured provider, plus the static backend, which is
// always available so a chain can run without credentials.
func New(cfg *configuration.Config) (map[string]backend.Backend, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.HTTPTimeout)
	}

	backends := map[string]backend.Backend{
		ProviderStatic: NewStatic(cfg.Rules),
	}

	for name, pc := range cfg.Providers {
		var a adapter
		switch name {
		case ProviderOpenAI:
			a = NewOpenAI(pc)
		case ProviderAnthropic:
			a = NewAnthropic(pc)
		case ProviderGoogle:
			a = NewGoogle(pc)
		case ProviderStatic:
			// Static needs no provider config; already registered.
			continue
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		backends[name] = &httpBackend{adapter: a, client: client}
	}

	return backends, nil
}

// newHTTPClient builds the default provider HTTP client.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = configuration.DefaultHTTPTimeoutSeconds * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          configuration.DefaultMaxIdleConns,
		IdleConnTimeout:       configuration.DefaultIdleTimeoutSeconds * time.Second,
		TLSHandshakeTimeout:   configuration.DefaultTLSTimeoutSeconds * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// httpBackend executes one adapter round trip per Analyze call and
// parses the model reply into findings.
type httpBackend struct {
	adapter adapter
	client  *http.Client
}

// Name implements backend.Backend.
func (h *httpBackend) Name() string { return h.adapter.Name() }

// Analyze implements backend.Backend: build the provider request, run
// it, parse the reply, and decode the findings array.
func (h *httpBackend) Analyze(ctx context.Context, req *backend.Request) (*backend.Result, error) {
	httpReq, err := h.adapter.Build(ctx, req)
	if err != nil {
		return nil, &backend.Error{
			Provider: h.Name(),
			Class:    backend.ClassPermanent,
			Message:  fmt.Sprintf("build request: %v", err),
		}
	}

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, &backend.Error{
			Provider: h.Name(),
			Class:    backend.Classify(err),
			Message:  fmt.Sprintf("http call: %v", err),
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	rep, err := h.adapter.Parse(httpResp)
	if err != nil {
		return nil, err
	}

	findings, err := parseFindings(rep.Content, h.Name())
	if err != nil {
		return nil, &backend.Error{
			Provider: h.Name(),
			Class:    backend.ClassTransient,
			Message:  fmt.Sprintf("parse findings: %v", err),
		}
	}

	return &backend.Result{
		Findings:   findings,
		Provider:   h.Name(),
		TokensUsed: rep.TokensUsed,
		RequestID:  rep.RequestID,
	}, nil
}

// retryAfterSeconds parses a Retry-After header into whole seconds,
// returning 0 when the header is absent or not a plain integer.
func retryAfterSeconds(header http.Header) int {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
