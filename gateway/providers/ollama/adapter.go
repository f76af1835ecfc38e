// Package ollama wraps the OpenAI-family adapter for a local Ollama server:
// same wire format over its OpenAI-compatible /v1 endpoint, plus two things
// Ollama needs that a hosted OpenAI-compatible backend does not — stripping
// markdown code fences some local models wrap JSON responses in, and
// discovering which models are actually pulled via /api/tags.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/taipm/llmgateway/gateway"
	"github.com/taipm/llmgateway/gateway/providers/openai"
)

// Adapter delegates to an openai.Adapter pointed at the local server, then
// post-processes its result.
type Adapter struct {
	inner *openai.Adapter
	http  *http.Client
	url   string
}

// New builds an Adapter against an Ollama server at url (e.g.
// "http://localhost:11434"). Ollama ignores the API key; openai-go still
// requires a non-empty string.
func New(url string) *Adapter {
	return &Adapter{
		inner: openai.New("ollama", strings.TrimRight(url, "/")+"/v1"),
		http:  &http.Client{Timeout: 10 * time.Second},
		url:   strings.TrimRight(url, "/"),
	}
}

var fence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fence.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return content
}

// ExecuteRequest delegates to the OpenAI-family adapter and strips any
// wrapping code fence from the returned content.
func (a *Adapter) ExecuteRequest(ctx context.Context, req gateway.WireRequest) (gateway.AdapterResult, error) {
	result, err := a.inner.ExecuteRequest(ctx, req)
	if err != nil {
		return gateway.AdapterResult{}, fmt.Errorf("ollama: %w", err)
	}
	result.Content = stripFences(result.Content)
	return result, nil
}

// ExecuteStream delegates to the OpenAI-family adapter unchanged: unlike
// ExecuteRequest, it strips no markdown fences, neither from the streamed
// bytes nor from Execution.Content.
func (a *Adapter) ExecuteStream(ctx context.Context, req gateway.WireRequest) (*gateway.StreamingExecution, error) {
	exec, err := a.inner.ExecuteStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return exec, nil
}

// tagsResponse is the shape of GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// DiscoverModels polls /api/tags and returns the currently pulled model
// names, ready to pass to Registry.UpdateOllamaModels for its copy-on-write
// swap.
func (a *Adapter) DiscoverModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: build tags request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: tags request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: tags API returned %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
