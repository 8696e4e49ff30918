package explain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"horse.fit/signalwatch/internal/config"
)

func TestLocalProviderExplain(t *testing.T) {
	t.Parallel()

	var captured localChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Fintech activity\n is rising sharply.  "}}]}`))
	}))
	defer server.Close()

	provider := NewLocalProvider(server.URL, "test-model")
	magnitude := 42.5
	resp, err := provider.Explain(context.Background(), Request{
		ScopeType:    "theme",
		ScopeID:      "fintech",
		Themes:       []string{"fintech", "payments"},
		SignalTypes:  []string{"funding"},
		Direction:    "up",
		Magnitude:    &magnitude,
		CurrentCount: 57,
		PrevCount:    40,
	})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if resp.Text != "Fintech activity is rising sharply." {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.ProviderName != "local" {
		t.Fatalf("unexpected provider %q", resp.ProviderName)
	}
	if captured.Model != "test-model" || len(captured.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", captured)
	}
	if !strings.Contains(captured.Messages[1].Content, "up by 42.5%") {
		t.Fatalf("prompt should carry the magnitude: %q", captured.Messages[1].Content)
	}
}

func TestLocalProviderEmergingPrompt(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(Request{ScopeType: "industry", ScopeID: "food", Emerging: true, CurrentCount: 120, PrevCount: 10})
	if !strings.Contains(prompt, "emerging") || strings.Contains(prompt, "by ") {
		t.Fatalf("unexpected emerging prompt: %q", prompt)
	}
}

func TestLocalProviderStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model loading"}}`))
	}))
	defer server.Close()

	_, err := NewLocalProvider(server.URL+"/v1/", "").Explain(context.Background(), Request{ScopeType: "theme", ScopeID: "ai"})
	if err == nil || !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected status error with message, got %v", err)
	}
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"http://localhost:8845":                     "http://localhost:8845/v1/chat/completions",
		"localhost:8845/v1":                         "http://localhost:8845/v1/chat/completions",
		"http://gpu-box/openai/v1/chat/completions": "http://gpu-box/openai/v1/chat/completions",
		"":                                          DefaultLocalEndpoint + "/chat/completions",
	}
	for in, want := range tests {
		if got := chatCompletionsURL(normalizeEndpoint(in)); got != want {
			t.Fatalf("chatCompletionsURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryFromConfig(t *testing.T) {
	t.Parallel()

	registry := NewRegistryFromConfig(&config.Config{ExplainProvider: "none", ExplainRequestsPerMinute: 30})
	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("Provider() error = %v", err)
	}
	if _, err := provider.Explain(context.Background(), Request{}); !errors.Is(err, ErrProviderDisabled) {
		t.Fatalf("expected ErrProviderDisabled, got %v", err)
	}

	unknown := NewRegistryFromConfig(&config.Config{ExplainProvider: "openai", ExplainRequestsPerMinute: 30})
	if unknown.DefaultProvider() != DefaultProviderName {
		t.Fatalf("expected fallback to local, got %q", unknown.DefaultProvider())
	}
	if got := strings.Join(unknown.ProviderNames(), ","); got != "local,none" {
		t.Fatalf("unexpected providers %q", got)
	}
	if _, err := unknown.Provider("openai"); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

type countingProvider struct {
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Explain(context.Context, Request) (*Response, error) {
	p.calls++
	return &Response{Text: "ok", ProviderName: "counting"}, nil
}

func TestRateLimitedHonoursContext(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	limited := NewRateLimited(inner, 1)

	if _, err := limited.Explain(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := limited.Explain(ctx, Request{}); err == nil {
		t.Fatal("second call should fail waiting for the limiter")
	}
	if inner.calls != 1 {
		t.Fatalf("expected one inner call, got %d", inner.calls)
	}
}
