package registry

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// GeneralDomain is assigned to specialists without a domain.
const GeneralDomain = "general"

const maxScoredKeywords = 10

// ErrInvalidRecord is returned for records that cannot be normalized.
var ErrInvalidRecord = errors.New("invalid specialist record")

// Record is a specialist definition as stored by the persistence layer.
type Record struct {
	ID             string    `json:"id" koanf:"id"`
	Role           string    `json:"role,omitempty" koanf:"role"`
	Domain         string    `json:"domain,omitempty" koanf:"domain"`
	Keywords       []string  `json:"keywords,omitempty" koanf:"keywords"`
	Instructions   string    `json:"instructions,omitempty" koanf:"instructions"`
	Specialization float64   `json:"specialization,omitempty" koanf:"specialization"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" koanf:"updated_at"`
}

// Specialist is a normalized, cached specialist definition.
type Specialist struct {
	ID             string    `json:"id"`
	Role           string    `json:"role"`
	Domain         string    `json:"domain"`
	Keywords       []string  `json:"keywords"`
	Instructions   string    `json:"instructions"`
	Specialization float64   `json:"specialization"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (s Specialist) Clone() Specialist {
	s.Keywords = slices.Clone(s.Keywords)
	return s
}

// HasKeyword reports whether kw (lowercase) is one of the keywords.
func (s *Specialist) HasKeyword(kw string) bool {
	return slices.Contains(s.Keywords, kw)
}

// Normalize validates r and fills defaults.
//
// Domain and keywords are lowercased; keywords are trimmed, deduplicated and
// default to the domain. A missing specialization score is derived from the
// keyword count, with a bonus for a non-general domain.
func Normalize(r Record) (*Specialist, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return nil, ErrInvalidRecord
	}

	s := &Specialist{
		ID:             id,
		Role:           strings.TrimSpace(r.Role),
		Domain:         strings.ToLower(strings.TrimSpace(r.Domain)),
		Instructions:   strings.TrimSpace(r.Instructions),
		Specialization: r.Specialization,
		UpdatedAt:      r.UpdatedAt,
	}
	if s.Role == "" {
		s.Role = id
	}
	if s.Domain == "" {
		s.Domain = GeneralDomain
	}
	s.Keywords = NormalizeKeywords(r.Keywords)
	if len(s.Keywords) == 0 {
		s.Keywords = []string{s.Domain}
	}
	if s.Specialization <= 0 {
		s.Specialization = 1 + 0.1*float64(min(len(s.Keywords), maxScoredKeywords))
		if s.Domain != GeneralDomain {
			s.Specialization++
		}
	}
	return s, nil
}

// NormalizeKeywords lowercases, trims and deduplicates keywords, keeping
// first-seen order.
func NormalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// sameDefinition reports whether a refreshed entry can reuse the cached one.
// Records with timestamps compare by timestamp; others by content.
func sameDefinition(prev, next *Specialist) bool {
	if !prev.UpdatedAt.IsZero() && !next.UpdatedAt.IsZero() {
		return prev.UpdatedAt.Equal(next.UpdatedAt)
	}
	return prev.ID == next.ID &&
		prev.Role == next.Role &&
		prev.Domain == next.Domain &&
		prev.Instructions == next.Instructions &&
		prev.Specialization == next.Specialization &&
		prev.UpdatedAt.Equal(next.UpdatedAt) &&
		slices.Equal(prev.Keywords, next.Keywords)
}
