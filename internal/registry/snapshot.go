package registry

import (
	"cmp"
	"slices"
	"time"
)

// snapshot is an immutable view of the registry. It is never modified after
// being published.
type snapshot struct {
	entries  map[string]*Specialist
	index    map[string][]*Specialist // keyword -> specialists
	loadedAt time.Time
}

func newSnapshot(entries map[string]*Specialist, loadedAt time.Time) *snapshot {
	index := make(map[string][]*Specialist)
	for _, s := range entries {
		for _, kw := range s.Keywords {
			index[kw] = append(index[kw], s)
		}
	}
	return &snapshot{entries: entries, index: index, loadedAt: loadedAt}
}

// with returns a copy of the snapshot where id maps to s, or is removed when
// s is nil. loadedAt is kept, so a hot reload does not reset the TTL.
func (sn *snapshot) with(id string, s *Specialist) *snapshot {
	entries := make(map[string]*Specialist, len(sn.entries)+1)
	for k, v := range sn.entries {
		entries[k] = v
	}
	if s == nil {
		delete(entries, id)
	} else {
		entries[id] = s
	}
	return newSnapshot(entries, sn.loadedAt)
}

type match struct {
	s     *Specialist
	count int
}

// byKeywords returns specialists matching at least one keyword, ordered by
// specialization desc, match count desc, id asc.
func (sn *snapshot) byKeywords(keywords []string) []*Specialist {
	counts := make(map[*Specialist]int)
	for _, kw := range NormalizeKeywords(keywords) {
		for _, s := range sn.index[kw] {
			counts[s]++
		}
	}

	matches := make([]match, 0, len(counts))
	for s, n := range counts {
		matches = append(matches, match{s: s, count: n})
	}
	slices.SortFunc(matches, func(a, b match) int {
		if c := cmp.Compare(b.s.Specialization, a.s.Specialization); c != 0 {
			return c
		}
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.s.ID, b.s.ID)
	})

	out := make([]*Specialist, len(matches))
	for i, m := range matches {
		out[i] = m.s
	}
	return out
}

// byDomain returns specialists in domain ordered by specialization desc,
// id asc.
func (sn *snapshot) byDomain(domain string) []*Specialist {
	var out []*Specialist
	for _, s := range sn.entries {
		if s.Domain == domain {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *Specialist) int {
		if c := cmp.Compare(b.Specialization, a.Specialization); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
