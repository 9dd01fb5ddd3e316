package prompttrace

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrInvalidResponse is returned when a NormalizedResponse is constructed
	// with a missing or malformed required field.
	ErrInvalidResponse = goerr.New("invalid normalized response")

	// ErrInvalidModelConfig is returned when a model configuration is missing
	// a required field at handler build time.
	ErrInvalidModelConfig = goerr.New("invalid model config")

	// ErrNoContent is returned when a raw payload has no recognizable content
	// at all (e.g. a chat completion with zero choices). Missing nested fields
	// degrade to empty defaults instead of raising this.
	ErrNoContent = goerr.New("payload has no recognizable content")

	// ErrInvalidToolArguments is returned when tool call arguments fail JSON
	// schema validation before execution.
	ErrInvalidToolArguments = goerr.New("tool call arguments failed validation")
)
