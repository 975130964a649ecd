// Package llm translates canonical conversation threads into each provider's
// chat API and normalizes the replies and failures coming back.
package llm

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/conversation"
)

// ProviderID identifies a provider variant; it is the first segment of a "provider/model" string.
type ProviderID string

const (
	Gemini    ProviderID = "gemini"
	NVIDIA    ProviderID = "nvidia"
	Groq      ProviderID = "groq"
	Cerebras  ProviderID = "cerebras"
	SambaNova ProviderID = "sambanova"
	Mallow    ProviderID = "mallow"
)

var (
	ErrMalformedModel  = errors.New("model must look like provider/model")
	ErrUnknownProvider = errors.New("unknown provider")
)

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// ModelRef is a parsed "provider/model" string.
type ModelRef struct {
	Provider ProviderID
	Model    string
}

func (m ModelRef) String() string {
	return string(m.Provider) + "/" + m.Model
}

// ParseModel splits on the first "/" only, so model ids such as
// "nvidia/meta/llama-3.1-70b-instruct" keep their inner slashes.
func ParseModel(s string) (ModelRef, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || provider == "" || strings.TrimSpace(model) == "" {
		return ModelRef{}, errors.Wrapf(ErrMalformedModel, "%q", s)
	}
	return ModelRef{Provider: ProviderID(strings.ToLower(provider)), Model: model}, nil
}

// ClampTemperature forces t into [0, 2]. NaN and infinities are rejected by the caller before this point.
func ClampTemperature(t float64) float64 {
	return math.Min(math.Max(t, MinTemperature), MaxTemperature)
}

// Request is what the orchestrator hands to a provider.
type Request struct {
	Model       string
	Thread      []conversation.Message
	Temperature float64
}

// Provider is implemented by every backend.
type Provider interface {
	ID() ProviderID
	// Stateless providers only see the latest prompt; callers must not persist their turns.
	Stateless() bool
	// Send returns the reply text or a *ProviderError. An empty reply is an error.
	Send(ctx context.Context, req Request) (string, error)
}

// Registry maps provider ids to adapters. It is built once at startup and read-only afterwards.
type Registry struct {
	providers map[ProviderID]Provider
}

// NewRegistry wires every supported provider from explicit configuration.
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	r := &Registry{providers: make(map[ProviderID]Provider)}
	r.Register(NewGeminiProvider(cfg.Gemini))
	r.Register(NewOpenAICompatProvider(NVIDIA, cfg.NVIDIA))
	r.Register(NewOpenAICompatProvider(Groq, cfg.Groq))
	r.Register(NewOpenAICompatProvider(Cerebras, cfg.Cerebras))
	r.Register(NewOpenAICompatProvider(SambaNova, cfg.SambaNova))
	r.Register(NewMallowProvider(cfg.Mallow))
	return r
}

// NewEmptyRegistry is used by tests that register their own fakes.
func NewEmptyRegistry() *Registry {
	return &Registry{providers: make(map[ProviderID]Provider)}
}

// Register adds or replaces the adapter for p.ID().
func (r *Registry) Register(p Provider) {
	r.providers[p.ID()] = p
}

// Lookup returns the adapter for id.
func (r *Registry) Lookup(id ProviderID) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// Resolve parses model and returns the matching adapter.
func (r *Registry) Resolve(model string) (Provider, ModelRef, error) {
	ref, err := ParseModel(model)
	if err != nil {
		return nil, ModelRef{}, err
	}
	p, ok := r.Lookup(ref.Provider)
	if !ok {
		return nil, ModelRef{}, errors.Wrapf(ErrUnknownProvider, "%q", ref.Provider)
	}
	return p, ref, nil
}

// IDs lists the registered providers in a stable order.
func (r *Registry) IDs() []ProviderID {
	ids := make([]ProviderID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
