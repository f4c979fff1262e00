package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator replies from a table keyed by a substring of the system
// prompt, and records every request it saw. Safe for concurrent stages.
type fakeGenerator struct {
	replies map[string]string
	err     error

	mu       sync.Mutex
	requests []GenerationRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerationRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	for key, reply := range f.replies {
		if strings.Contains(req.System, key) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply for prompt")
}

// sawSystemPrompt reports whether any recorded request's system prompt
// contains the marker.
func (f *fakeGenerator) sawSystemPrompt(marker string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if strings.Contains(req.System, marker) {
			return true
		}
	}
	return false
}

func TestGenerationSchemaDescribesType(t *testing.T) {
	schema := generationSchema[TranscriptVerdict]()

	assert.Contains(t, schema, `"valid"`)
	assert.Contains(t, schema, `"additionalProperties":false`)
	assert.NotContains(t, schema, "$ref", "schemas must be inlined for the provider")
}

func TestGenerateTyped(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"verdict": `{"valid": true}`}}

	out, err := generateTyped[TranscriptVerdict](context.Background(), gen, GenerationRequest{
		System: "return a verdict",
		Prompt: "transcript here",
	})
	require.NoError(t, err)
	assert.True(t, out.Valid)

	require.Len(t, gen.requests, 1)
	assert.NotEmpty(t, gen.requests[0].Schema, "the derived schema must travel with the request")
}

func TestGenerateTypedMalformedResponseIsPermanent(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"verdict": `not json at all`}}

	_, err := generateTyped[TranscriptVerdict](context.Background(), gen, GenerationRequest{System: "return a verdict"})
	require.Error(t, err)
	assert.False(t, isTransientGenerationError(err), "contract violations must not retry")
}

func TestGenerateTypedPropagatesProviderError(t *testing.T) {
	providerErr := errors.New("api: overloaded_error")
	gen := &fakeGenerator{err: providerErr}

	_, err := generateTyped[CourseCategory](context.Background(), gen, GenerationRequest{})
	require.ErrorIs(t, err, providerErr)
}

func TestIsTransientGenerationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", errors.New("api error 429: rate limit exceeded"), true},
		{"overloaded", errors.New("overloaded_error: try later"), true},
		{"server error", errors.New("internal server error"), true},
		{"bad request", errors.New("400 bad request: max_tokens invalid"), false},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"malformed response", errors.New("parsing structured response: unexpected end of JSON input"), false},
		{"network blip", errors.New("connection reset by peer"), true},
		{"plain logic error", errors.New("empty chapter plan"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientGenerationError(tt.err))
		})
	}
}
