// Package explain turns numeric trend facts into a one-paragraph narrative.
package explain

import (
	"context"
	"errors"
)

// ErrProviderDisabled is returned by the "none" provider.
var ErrProviderDisabled = errors.New("explanation provider disabled")

// Provider writes a short explanation for one trend.
type Provider interface {
	Explain(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Request carries the facts a provider may cite. Magnitude is nil for
// emerging trends.
type Request struct {
	ScopeType    string
	ScopeID      string
	Themes       []string
	SignalTypes  []string
	Direction    string
	Magnitude    *float64
	Emerging     bool
	CurrentCount int
	PrevCount    int
}

type Response struct {
	Text         string
	ProviderName string
	LatencyMs    int64
}
