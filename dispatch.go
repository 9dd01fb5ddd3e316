package prompttrace

import (
	"github.com/m-mizutani/goerr/v2"
)

// Provider and API identifiers with a specialized handler. Any other
// combination degrades to the generic chat-completion handler.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"

	APIChatCompletions = "chat_completions"
	APIResponses       = "responses"
	APIAssistants      = "assistants"
	APIMessages        = "messages"
	APIGenerateContent = "generate_content"
)

// ModelConfig describes the model a conversation runs against. Provider and
// API select the handler; the remaining fields are passed through to the
// transport layer unchanged.
type ModelConfig struct {
	Provider     string   `json:"provider"`
	API          string   `json:"api"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// HandlerKind identifies the interaction style a handler drives.
type HandlerKind string

const (
	HandlerKindChat       HandlerKind = "chat"
	HandlerKindResponses  HandlerKind = "responses"
	HandlerKindAssistants HandlerKind = "assistants"
)

// Handler is the result of dispatching a ModelConfig: the interaction kind
// plus the normalizer for the provider's payloads. All fields are read-only.
type Handler struct {
	cfg        ModelConfig
	useRealLLM bool
	kind       HandlerKind
	normalizer Normalizer
	testable   any
}

// ModelConfig returns the configuration the handler was built for.
func (h *Handler) ModelConfig() ModelConfig { return h.cfg }

// UseRealLLM reports whether real provider calls are made, as opposed to the
// stubbed resolution path used in tests.
func (h *Handler) UseRealLLM() bool { return h.useRealLLM }

// Kind returns the interaction style of the handler.
func (h *Handler) Kind() HandlerKind { return h.kind }

// Normalizer returns the normalizer for the provider's payloads.
func (h *Handler) Normalizer() Normalizer { return h.normalizer }

// Testable returns the context object passed through Build, if any.
func (h *Handler) Testable() any { return h.testable }

// HandlerOption configures optional handler fields at build time.
type HandlerOption func(*Handler)

// WithTestable attaches a caller-owned context object to the handler. It is
// passed through unchanged.
func WithTestable(testable any) HandlerOption {
	return func(h *Handler) {
		h.testable = testable
	}
}

type providerAPI struct {
	provider string
	api      string
}

type handlerEntry struct {
	kind       HandlerKind
	normalizer Normalizer
}

// Registry maps (provider, api) pairs to handler constructors, with a single
// default arm for unknown combinations. Construct one at startup and pass it
// by reference; there is no global registry.
type Registry struct {
	entries  map[providerAPI]handlerEntry
	fallback handlerEntry
}

// NewRegistry returns a registry with the known (provider, api) pairs
// registered and the generic chat handler as fallback.
func NewRegistry() *Registry {
	r := &Registry{
		entries: map[providerAPI]handlerEntry{},
		fallback: handlerEntry{
			kind:       HandlerKindChat,
			normalizer: ChatCompletionNormalizer{},
		},
	}

	r.Register(ProviderOpenAI, APIChatCompletions, HandlerKindChat, ChatCompletionNormalizer{})
	r.Register(ProviderOpenAI, APIResponses, HandlerKindResponses, ResponsesNormalizer{})
	r.Register(ProviderOpenAI, APIAssistants, HandlerKindAssistants, AssistantsNormalizer{})
	r.Register(ProviderAnthropic, APIMessages, HandlerKindChat, ClaudeNormalizer{})
	r.Register(ProviderGoogle, APIGenerateContent, HandlerKindChat, GeminiNormalizer{})

	return r
}

// Register adds or replaces the handler for a (provider, api) pair. Intended
// for test harnesses and custom providers.
func (r *Registry) Register(provider, api string, kind HandlerKind, n Normalizer) {
	r.entries[providerAPI{provider: provider, api: api}] = handlerEntry{
		kind:       kind,
		normalizer: n,
	}
}

// Build constructs the handler for the given configuration. Provider and API
// must both be present; a missing field fails immediately rather than at
// first use. Unknown (provider, api) combinations never fail: they get the
// generic chat handler.
func (r *Registry) Build(cfg ModelConfig, useRealLLM bool, opts ...HandlerOption) (*Handler, error) {
	if cfg.Provider == "" {
		return nil, goerr.Wrap(ErrInvalidModelConfig, "provider is required",
			goerr.V("api", cfg.API),
			goerr.V("model", cfg.Model))
	}
	if cfg.API == "" {
		return nil, goerr.Wrap(ErrInvalidModelConfig, "api is required",
			goerr.V("provider", cfg.Provider),
			goerr.V("model", cfg.Model))
	}

	entry, ok := r.entries[providerAPI{provider: cfg.Provider, api: cfg.API}]
	if !ok {
		entry = r.fallback
	}

	h := &Handler{
		cfg:        cfg,
		useRealLLM: useRealLLM,
		kind:       entry.kind,
		normalizer: entry.normalizer,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}
