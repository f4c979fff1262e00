package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/invopop/jsonschema"
	"github.com/sirupsen/logrus"
)

// GenerationRequest carries one structured generation call. Schema is a
// JSON-schema string the response must validate against; prompt wording is
// opaque to this core.
type GenerationRequest struct {
	System      string
	Prompt      string
	Schema      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Generator is the structured generation service boundary. Implementations
// must return output conforming to the requested schema and surface
// transient provider failures distinguishably from permanent ones.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// anthropicGenerator backs the Generator contract with llmkit's Anthropic
// client, selecting the model per request.
type anthropicGenerator struct {
	apiKey string
	logger *logrus.Logger
}

func newAnthropicGenerator(apiKey string, logger *logrus.Logger) (*anthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation API key is empty")
	}
	return &anthropicGenerator{apiKey: apiKey, logger: logger}, nil
}

func (g *anthropicGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	settings := types.RequestSettings{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	response, err := anthropic.PromptWithSettings(req.System, req.Prompt, req.Schema, g.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty generation response")
	}
	return response.Content[0].Text, nil
}

// generationSchema derives the JSON schema for a stage's output type, so
// every generation call is a schema-validated contract rather than an
// untyped map.
func generationSchema[T any]() string {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	var v T
	schema := reflector.Reflect(&v)
	data, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// generateTyped runs one structured generation call and unmarshals the
// response into T. Unmarshal failures are permanent: the provider returned
// something outside the contract, and retrying the same prompt is pointless.
func generateTyped[T any](ctx context.Context, g Generator, req GenerationRequest) (*T, error) {
	req.Schema = generationSchema[T]()

	raw, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parsing structured response: %w", err)
	}
	return &out, nil
}

// isTransientGenerationError separates provider failures worth retrying
// (rate limits, 5xx, overload) from permanent ones (bad request, auth).
func isTransientGenerationError(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range permanentMarkers {
		if containsErrorSubstring(err, marker) {
			return false
		}
	}
	if containsErrorSubstring(err, "parsing structured response") {
		return false
	}
	for _, marker := range []string{"429", "rate limit", "overloaded", "500", "502", "503", "504", "server error"} {
		if containsErrorSubstring(err, marker) {
			return true
		}
	}
	return isTransientError(err)
}
