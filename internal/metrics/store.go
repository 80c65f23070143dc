package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWindowSize is used when NewStore is given a non-positive size.
const DefaultWindowSize = 100

var (
	// ErrEmptyName is returned for resources without a name.
	ErrEmptyName = errors.New("resource name is empty")

	// ErrDuplicateResource is returned when two resources share a name.
	ErrDuplicateResource = errors.New("duplicate resource")
)

// Sample is one observed use of a resource.
type Sample struct {
	Latency time.Duration
	Quality float64
	Success bool
	Tokens  int
}

// Stats is a point-in-time view of one resource's metrics.
type Stats struct {
	Name        string        `json:"name"`
	CostPerUnit float64       `json:"cost_per_unit"`
	AvgLatency  time.Duration `json:"avg_latency"`
	AvgQuality  float64       `json:"avg_quality"`
	Samples     int           `json:"samples"`
	Requests    int64         `json:"requests"`
	Errors      int64         `json:"errors"`
	Tokens      int64         `json:"tokens"`
}

// ErrorRate returns errors / max(1, requests).
func (s Stats) ErrorRate() float64 {
	return float64(s.Errors) / float64(max(1, s.Requests))
}

// window is a fixed-capacity ring of samples with running sums.
type window struct {
	resource Resource

	mu         sync.Mutex
	samples    []Sample
	next       int
	count      int
	sumLatency time.Duration
	sumQuality float64

	requests atomic.Int64
	errors   atomic.Int64
	tokens   atomic.Int64
}

func newWindow(r Resource, size int) *window {
	return &window{resource: r, samples: make([]Sample, size)}
}

func (w *window) add(s Sample) {
	w.requests.Add(1)
	if !s.Success {
		w.errors.Add(1)
	}
	w.tokens.Add(int64(s.Tokens))

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.samples) {
		evicted := w.samples[w.next]
		w.sumLatency -= evicted.Latency
		w.sumQuality -= evicted.Quality
	} else {
		w.count++
	}
	w.samples[w.next] = s
	w.sumLatency += s.Latency
	w.sumQuality += s.Quality
	w.next = (w.next + 1) % len(w.samples)
}

func (w *window) stats() Stats {
	st := Stats{
		Name:        w.resource.Name,
		CostPerUnit: w.resource.CostPerUnit,
		Requests:    w.requests.Load(),
		Errors:      w.errors.Load(),
		Tokens:      w.tokens.Load(),
	}

	w.mu.Lock()
	st.Samples = w.count
	if w.count == 0 {
		st.AvgLatency = w.resource.BaselineLatency
		st.AvgQuality = w.resource.BaselineQuality
	} else {
		st.AvgLatency = w.sumLatency / time.Duration(w.count)
		st.AvgQuality = clamp01(w.sumQuality / float64(w.count))
	}
	w.mu.Unlock()

	return st
}

// Store holds one window per resource. The set of resources is fixed at
// construction.
type Store struct {
	order   []*window
	windows map[string]*window
}

// NewStore creates a store for resources, keeping their order.
func NewStore(resources []Resource, windowSize int) (*Store, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	s := &Store{
		order:   make([]*window, 0, len(resources)),
		windows: make(map[string]*window, len(resources)),
	}
	for i, r := range resources {
		r = normalizeResource(r)
		if r.Name == "" {
			return nil, fmt.Errorf("resources[%d]: %w", i, ErrEmptyName)
		}
		if _, ok := s.windows[r.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateResource, r.Name)
		}
		w := newWindow(r, windowSize)
		s.order = append(s.order, w)
		s.windows[r.Name] = w
	}
	return s, nil
}

// Len returns the number of resources.
func (s *Store) Len() int {
	return len(s.order)
}

// Resources returns copies of all resources in construction order.
func (s *Store) Resources() []Resource {
	out := make([]Resource, len(s.order))
	for i, w := range s.order {
		out[i] = w.resource.clone()
	}
	return out
}

// Resource returns a copy of the named resource.
func (s *Store) Resource(name string) (Resource, bool) {
	w, ok := s.windows[name]
	if !ok {
		return Resource{}, false
	}
	return w.resource.clone(), true
}

// Stats returns the current metrics of the named resource.
func (s *Store) Stats(name string) (Stats, bool) {
	w, ok := s.windows[name]
	if !ok {
		return Stats{}, false
	}
	return w.stats(), true
}

// All returns stats for every resource in construction order.
func (s *Store) All() []Stats {
	out := make([]Stats, len(s.order))
	for i, w := range s.order {
		out[i] = w.stats()
	}
	return out
}

// Record appends a sample to the named resource's window. It returns false
// when the resource is unknown.
func (s *Store) Record(name string, sample Sample) bool {
	w, ok := s.windows[name]
	if !ok {
		return false
	}
	w.add(sample)
	return true
}
