package prompttrace_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/prompttrace"
)

func TestRegistryBuildFailFast(t *testing.T) {
	registry := prompttrace.NewRegistry()

	t.Run("missing provider", func(t *testing.T) {
		_, err := registry.Build(prompttrace.ModelConfig{
			API:   prompttrace.APIChatCompletions,
			Model: "gpt-4o",
		}, false)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, prompttrace.ErrInvalidModelConfig))
	})

	t.Run("missing api", func(t *testing.T) {
		_, err := registry.Build(prompttrace.ModelConfig{
			Provider: prompttrace.ProviderOpenAI,
			Model:    "gpt-4o",
		}, false)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, prompttrace.ErrInvalidModelConfig))
	})
}

func TestRegistryBuildKnownPairs(t *testing.T) {
	registry := prompttrace.NewRegistry()

	cases := []struct {
		provider string
		api      string
		kind     prompttrace.HandlerKind
	}{
		{prompttrace.ProviderOpenAI, prompttrace.APIChatCompletions, prompttrace.HandlerKindChat},
		{prompttrace.ProviderOpenAI, prompttrace.APIResponses, prompttrace.HandlerKindResponses},
		{prompttrace.ProviderOpenAI, prompttrace.APIAssistants, prompttrace.HandlerKindAssistants},
		{prompttrace.ProviderAnthropic, prompttrace.APIMessages, prompttrace.HandlerKindChat},
		{prompttrace.ProviderGoogle, prompttrace.APIGenerateContent, prompttrace.HandlerKindChat},
	}

	for _, tc := range cases {
		t.Run(tc.provider+"/"+tc.api, func(t *testing.T) {
			h, err := registry.Build(prompttrace.ModelConfig{
				Provider: tc.provider,
				API:      tc.api,
				Model:    "m",
			}, true)
			gt.NoError(t, err)
			gt.Equal(t, h.Kind(), tc.kind)
			gt.NotNil(t, h.Normalizer())
			gt.True(t, h.UseRealLLM())
		})
	}
}

func TestRegistryBuildUnknownFallback(t *testing.T) {
	registry := prompttrace.NewRegistry()

	h, err := registry.Build(prompttrace.ModelConfig{
		Provider: "acme",
		API:      "custom",
		Model:    "x",
	}, false)
	gt.NoError(t, err)

	gt.Equal(t, h.Kind(), prompttrace.HandlerKindChat)
	gt.False(t, h.UseRealLLM())
	gt.Equal(t, h.ModelConfig().Provider, "acme")
	gt.Equal(t, h.ModelConfig().API, "custom")
}

func TestRegistryBuildTestable(t *testing.T) {
	registry := prompttrace.NewRegistry()
	ctx := struct{ Name string }{Name: "scenario-1"}

	h, err := registry.Build(prompttrace.ModelConfig{
		Provider: prompttrace.ProviderOpenAI,
		API:      prompttrace.APIChatCompletions,
		Model:    "gpt-4o",
	}, false, prompttrace.WithTestable(ctx))
	gt.NoError(t, err)
	gt.Equal(t, h.Testable(), any(ctx))
}

func TestRegistryRegisterCustom(t *testing.T) {
	registry := prompttrace.NewRegistry()
	registry.Register("acme", "messages", prompttrace.HandlerKindChat, prompttrace.ClaudeNormalizer{})

	h, err := registry.Build(prompttrace.ModelConfig{
		Provider: "acme",
		API:      "messages",
		Model:    "acme-1",
	}, false)
	gt.NoError(t, err)
	gt.Equal(t, h.Kind(), prompttrace.HandlerKindChat)
}
