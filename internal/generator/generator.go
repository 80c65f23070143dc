// Package generator provides the text generation backends that specialists
// run on, plus a heuristic quality scorer for their answers.
//
// Adapters:
//   - Anthropic: Messages API through anthropic-sdk-go
//   - OpenAI: Chat Completions through openai-go
//   - Static: deterministic offline answers for tests and local runs
//
// RateLimited wraps any Generator with a token bucket, and Set routes a
// resource's provider name to its Generator.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("provider returned no text")

	// ErrUnknownProvider is returned by Set.Get for unregistered providers.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingAPIKey is returned when a hosted adapter has no credentials.
	ErrMissingAPIKey = errors.New("api key is required")
)

// DefaultMaxTokens is used when a Request leaves MaxTokens unset.
const DefaultMaxTokens = 1024

// Request is one generation call.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

func (r Request) maxTokens() int64 {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return int64(r.MaxTokens)
}

// Response is the generated text and its token usage.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Tokens returns input plus output tokens.
func (r *Response) Tokens() int {
	return r.InputTokens + r.OutputTokens
}

// Generator produces a response for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Set maps provider names to generators. It is safe for concurrent use.
type Set struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{generators: make(map[string]Generator)}
}

// Register binds provider to g, replacing any previous binding.
func (s *Set) Register(provider string, g Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generators[provider] = g
}

// Get returns the generator for provider.
func (s *Set) Get(provider string) (Generator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.generators[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return g, nil
}

// Providers returns the registered provider names, sorted.
func (s *Set) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.generators))
	for name := range s.generators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
