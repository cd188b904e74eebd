package resilience

import (
	"context"

	"github.com/MrWong99/quillmate/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] by failing over across several
// backends, for example a hosted model with a local Ollama behind it.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend tried after the earlier ones.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names lists the backends in failover order.
func (f *LLMFallback) Names() []string {
	return f.group.Names()
}

// Complete returns the reply of the first backend that answers.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, _, err := ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	return resp, err
}

// CountTokens uses the first backend that can count.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	n, _, err := ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
	return n, err
}

// Capabilities reports the primary's capabilities. JSON mode is only
// advertised when every backend supports it, because a failover reply is
// parsed by the same code.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	for _, e := range f.group.entries[1:] {
		if !e.value.Capabilities().SupportsJSONMode {
			caps.SupportsJSONMode = false
		}
	}
	return caps
}
