package registry

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var systemPrompt = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`You are {{.Role}}, a specialist in the {{.Domain}} domain.
Focus areas: {{join .Keywords ", "}}.
{{- if .Instructions}}

{{.Instructions}}
{{- end}}

Answer only the part of the query that falls within your focus areas. Be concise and concrete.`))

// CompiledPrompt is the system prompt derived from one specialist.
type CompiledPrompt struct {
	SpecialistID string    `json:"specialist_id"`
	System       string    `json:"system"`
	CompiledAt   time.Time `json:"compiled_at"`

	source *Specialist
}

func compilePrompt(s *Specialist, now time.Time) (*CompiledPrompt, error) {
	var b strings.Builder
	if err := systemPrompt.Execute(&b, s); err != nil {
		return nil, fmt.Errorf("compiling prompt for %s: %w", s.ID, err)
	}
	return &CompiledPrompt{
		SpecialistID: s.ID,
		System:       b.String(),
		CompiledAt:   now,
		source:       s,
	}, nil
}

// Prompt returns the compiled system prompt for a specialist, building and
// caching it on first use. A cached prompt built from a definition that is
// no longer current is rebuilt.
func (c *Cache) Prompt(name string) (*CompiledPrompt, error) {
	s, ok := c.current().entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpecialistNotFound, name)
	}

	if p, ok := c.prompts.Get(name); ok && p.source == s {
		return p, nil
	}

	p, err := compilePrompt(s, c.now())
	if err != nil {
		return nil, err
	}
	c.prompts.Add(name, p)
	return p, nil
}
