package generator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Static answers deterministically without any network access. The answer
// echoes the model, the first system line and the prompt's keywords, and
// token counts are word counts.
type Static struct {
	// Delay simulates provider latency. Generate honors ctx while waiting.
	Delay time.Duration
}

// NewStatic creates a static generator that answers after delay.
func NewStatic(delay time.Duration) *Static {
	return &Static{Delay: delay}
}

// Generate returns a canned answer for req.
func (s *Static) Generate(ctx context.Context, req Request) (*Response, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = "static"
	}
	role := firstLine(req.System)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", model)
	if role != "" {
		fmt.Fprintf(&b, " %s", role)
	}
	if kws := Keywords(req.Prompt); len(kws) > 0 {
		fmt.Fprintf(&b, " Considered %s.", strings.Join(kws, ", "))
	} else {
		b.WriteString(" Nothing to consider.")
	}

	text := b.String()
	out := len(strings.Fields(text))
	if limit := int(req.maxTokens()); out > limit {
		out = limit
	}
	return &Response{
		Text:         text,
		InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
		OutputTokens: out,
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
