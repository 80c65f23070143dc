package generator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Generate(t *testing.T) {
	s := NewStatic(0)

	resp, err := s.Generate(context.Background(), Request{
		Model:  "echo-large",
		System: "Architect\nFocus on distributed systems.",
		Prompt: "How does Raft handle leader election?",
	})
	require.NoError(t, err)

	assert.Equal(t, "[echo-large] Architect Considered raft, handle, leader, election.", resp.Text)
	assert.Equal(t, 11, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	again, err := s.Generate(context.Background(), Request{
		Model:  "echo-large",
		System: "Architect\nFocus on distributed systems.",
		Prompt: "How does Raft handle leader election?",
	})
	require.NoError(t, err)
	assert.Equal(t, resp, again, "static answers are deterministic")
}

func TestStatic_NoKeywords(t *testing.T) {
	resp, err := NewStatic(0).Generate(context.Background(), Request{Prompt: "is it?"})
	require.NoError(t, err)
	assert.Equal(t, "[static] Nothing to consider.", resp.Text)
}

func TestStatic_HonorsContext(t *testing.T) {
	s := NewStatic(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Generate(ctx, Request{Prompt: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	_, err = NewStatic(0).Generate(canceled, Request{Prompt: "fast"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic_CapsOutputTokens(t *testing.T) {
	resp, err := NewStatic(0).Generate(context.Background(), Request{
		Prompt:    "alpha beta gamma delta epsilon",
		MaxTokens: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.OutputTokens)
}

func TestRateLimited(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(ctx context.Context, req Request) (*Response, error) {
		calls.Add(1)
		return &Response{Text: req.Prompt}, nil
	})

	t.Run("burst passes then waits", func(t *testing.T) {
		calls.Store(0)
		rl := NewRateLimited(inner, 1, 2)

		for i := 0; i < 2; i++ {
			_, err := rl.Generate(context.Background(), Request{Prompt: "x"})
			require.NoError(t, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := rl.Generate(ctx, Request{Prompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit wait")
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("non-positive rate is unlimited", func(t *testing.T) {
		calls.Store(0)
		rl := NewRateLimited(inner, 0, 0)
		for i := 0; i < 50; i++ {
			_, err := rl.Generate(context.Background(), Request{Prompt: "x"})
			require.NoError(t, err)
		}
		assert.EqualValues(t, 50, calls.Load())
	})

	t.Run("inner errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		rl := NewRateLimited(Func(func(context.Context, Request) (*Response, error) {
			return nil, boom
		}), 0, 1)
		_, err := rl.Generate(context.Background(), Request{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestSet(t *testing.T) {
	s := NewSet()
	static := NewStatic(0)
	s.Register("static", static)
	s.Register("openai", Func(func(context.Context, Request) (*Response, error) { return nil, nil }))

	g, err := s.Get("static")
	require.NoError(t, err)
	assert.Same(t, static, g)

	_, err = s.Get("carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Equal(t, []string{"openai", "static"}, s.Providers())
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"How does Raft handle leader election?", []string{"raft", "handle", "leader", "election"}},
		{"SQL sql Sql joins", []string{"sql", "joins"}},
		{"is it ok", nil},
		{"go-lang, k8s & docker", []string{"lang", "k8s", "docker"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.in))
		})
	}
}

func TestHeuristicScorer(t *testing.T) {
	h := NewHeuristicScorer()
	req := Request{Prompt: "explain raft leader election"}

	tests := []struct {
		name string
		resp *Response
		want float64
	}{
		{"nil response", nil, 0},
		{"empty text", &Response{Text: ""}, 0},
		{"punctuation only", &Response{Text: "..."}, 0},
		{
			// coverage 4/4, 8 words, has a sentence
			name: "full coverage",
			resp: &Response{Text: "Raft leader election: explain terms, votes and timeouts."},
			want: 0.5 + 0.3*(8.0/40.0) + 0.2,
		},
		{
			// coverage 1/4, 2 words, no sentence
			name: "partial coverage",
			resp: &Response{Text: "raft maybe"},
			want: 0.5*0.25 + 0.3*(2.0/40.0) + 0.2*0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, h.Score(req, tt.resp), 1e-9)
		})
	}
}

func TestHeuristicScorer_Bounds(t *testing.T) {
	h := &HeuristicScorer{CoverageWeight: 2, LengthWeight: 2, StructureWeight: 2, TargetWords: 1}
	got := h.Score(Request{Prompt: "raft"}, &Response{Text: "raft."})
	assert.Equal(t, 1.0, got)

	var s Scorer = ScorerFunc(func(Request, *Response) float64 { return 0.25 })
	assert.Equal(t, 0.25, s.Score(Request{}, nil))
}
