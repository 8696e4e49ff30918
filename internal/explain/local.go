package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultLocalEndpoint points to a local OpenAI-compatible endpoint.
	DefaultLocalEndpoint = "http://127.0.0.1:8845/v1"
	DefaultLocalModel    = "qwen2.5-7b-instruct"

	maxExplanationRunes = 600
)

// LocalProvider calls an OpenAI-compatible chat completions endpoint.
type LocalProvider struct {
	endpointURL string
	model       string
	client      *http.Client
}

func NewLocalProvider(endpoint, model string) *LocalProvider {
	normalizedEndpoint := normalizeEndpoint(endpoint)
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultLocalModel
	}
	return &LocalProvider{
		endpointURL: chatCompletionsURL(normalizedEndpoint),
		model:       trimmedModel,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *LocalProvider) Name() string {
	return "local"
}

func (p *LocalProvider) Explain(ctx context.Context, req Request) (*Response, error) {
	if p == nil {
		return nil, fmt.Errorf("local provider is nil")
	}
	if strings.TrimSpace(req.ScopeID) == "" {
		return nil, fmt.Errorf("scope id is required")
	}

	body, err := json.Marshal(localChatRequest{
		Model: p.model,
		Messages: []localChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.3,
		MaxTokens:   220,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal explanation request: %w", err)
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build explanation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send explanation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read explanation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload localChatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("explanation endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("explanation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed localChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode explanation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("explanation response missing choices")
	}

	text := truncateRunes(strings.Join(strings.Fields(parsed.Choices[0].Message.Content), " "), maxExplanationRunes)
	if text == "" {
		return nil, fmt.Errorf("explanation response was empty")
	}

	return &Response{
		Text:         text,
		ProviderName: p.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

type localChatRequest struct {
	Model       string             `json:"model"`
	Messages    []localChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type localChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type localChatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = "You write one or two plain sentences for a business intelligence dashboard. " +
	"Only use the facts given. Do not invent numbers, companies or causes."

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s %q\n", req.ScopeType, req.ScopeID)
	if req.Emerging {
		fmt.Fprintf(&b, "Classification: emerging (baseline too small for a percentage; %d signals in the last 30 days, %d in the 30 days before)\n", req.CurrentCount, req.PrevCount)
	} else {
		magnitude := 0.0
		if req.Magnitude != nil {
			magnitude = *req.Magnitude
		}
		fmt.Fprintf(&b, "Direction: %s by %.1f%% (%d signals in the last 30 days vs %d before)\n", req.Direction, magnitude, req.CurrentCount, req.PrevCount)
	}
	if len(req.Themes) > 0 {
		fmt.Fprintf(&b, "Top themes: %s\n", strings.Join(req.Themes, ", "))
	}
	if len(req.SignalTypes) > 0 {
		fmt.Fprintf(&b, "Top signal types: %s\n", strings.Join(req.SignalTypes, ", "))
	}
	b.WriteString("Explain what this activity suggests.")
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultLocalEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultLocalEndpoint
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultLocalEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}

	return parsed.String()
}
