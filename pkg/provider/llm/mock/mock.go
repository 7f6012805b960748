// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/lumivoice/lumi/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Reply is the text returned by Complete.
	Reply string

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Fn, if non-nil, overrides Reply/Err entirely.
	Fn func(ctx context.Context, req llm.CompletionRequest) (string, error)

	// Calls records every request passed to Complete.
	Calls []llm.CompletionRequest
}

// Complete records the call and returns the canned result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	fn := p.Fn
	reply, err := p.Reply, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return reply, err
}

// CallCount returns the number of recorded Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ llm.Provider = (*Provider)(nil)
