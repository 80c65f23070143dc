package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		query string
		want  float64
	}{
		{"is it?", 0.1},
		{"explain raft", 0.2},
		{"design a distributed consensus architecture", 0.1 + 0.05*4 + 0.15*4},
		{"compare architecture design distributed consensus security tradeoffs", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateComplexity(tt.query), 1e-9)
		})
	}
}

func TestMerge(t *testing.T) {
	assert.Equal(t, "only", merge([]Contribution{{Role: "A", Answer: "only"}}))

	got := merge([]Contribution{
		{Role: "Low", Answer: "second", Quality: 0.4},
		{Role: "High", Answer: "first", Quality: 0.9},
		{Role: "Tie", Answer: "third", Quality: 0.4},
	})
	assert.Equal(t, "### High\nfirst\n\n### Low\nsecond\n\n### Tie\nthird", got)
}

func TestErrorKind_Message(t *testing.T) {
	assert.Equal(t, "the query timed out", KindTimeout.Message())
	assert.Equal(t, "the query failed", ErrorKind("mystery").Message())
}

func TestConfig_WithDefaults(t *testing.T) {
	got := Config{Workers: 2}.withDefaults()
	want := DefaultConfig()
	want.Workers = 2
	assert.Equal(t, want, got)
}
