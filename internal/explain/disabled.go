package explain

import "context"

// DisabledProvider always fails with ErrProviderDisabled so callers fall back
// to their templated text.
type DisabledProvider struct{}

func (DisabledProvider) Name() string {
	return DisabledProviderName
}

func (DisabledProvider) Explain(context.Context, Request) (*Response, error) {
	return nil, ErrProviderDisabled
}
