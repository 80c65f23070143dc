// Package selection picks the best-scoring resource for a task from a pool
// with live metrics.
package selection

import (
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchboard/internal/metrics"
)

// ErrNoResourceAvailable is returned when the pool is empty.
var ErrNoResourceAvailable = errors.New("no resource available")

// Scoring weights.
const (
	latencyTarget     = 5 * time.Second
	latencyBoost      = 0.2
	expertiseBonus    = 0.2
	heavyweightBonus  = 0.3
	heavyweightAbove  = 0.7
	lightweightBonus  = 0.2
	lightweightBelow  = 0.3
	reliabilityWeight = 0.5
)

// Score is the breakdown of one resource's score for a task.
type Score struct {
	Resource           string  `json:"resource"`
	Efficiency         float64 `json:"efficiency"`
	ExpertiseBonus     float64 `json:"expertise_bonus"`
	ComplexityBonus    float64 `json:"complexity_bonus"`
	ReliabilityPenalty float64 `json:"reliability_penalty"`
	Total              float64 `json:"total"`
}

// Engine scores resources held by a metrics.Store.
//
// Engine is safe for concurrent use; the only locks taken are the per-window
// locks inside the store.
type Engine struct {
	store      *metrics.Store
	logger     *zap.Logger
	selections *prometheus.CounterVec
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegisterer registers the selection counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.selections = newSelectionCounter(reg)
	}
}

func newSelectionCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "selection",
			Name:      "selections_total",
			Help:      "Total resources chosen by the selection engine",
		},
		[]string{"resource"},
	)
}

// New creates an engine over store.
func New(store *metrics.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selections == nil {
		e.selections = newSelectionCounter(nil)
	}
	return e
}

// Store returns the metrics store backing the engine.
func (e *Engine) Store() *metrics.Store {
	return e.store
}

// Select returns the best resource for taskType at the given complexity.
// Ties go to the resource that comes first in the pool.
func (e *Engine) Select(taskType string, complexity float64) (metrics.Resource, string, error) {
	resources := e.store.Resources()
	if len(resources) == 0 {
		return metrics.Resource{}, "", ErrNoResourceAvailable
	}
	complexity = clampComplexity(complexity)

	best := 0
	bestScore := math.Inf(-1)
	for i, r := range resources {
		s := e.score(r, taskType, complexity)
		if s.Total > bestScore {
			best, bestScore = i, s.Total
		}
	}
	// Every score NaN leaves best on the first resource.

	chosen := resources[best]
	e.selections.WithLabelValues(chosen.Name).Inc()
	e.logger.Debug("resource selected",
		zap.String("resource", chosen.Name),
		zap.String("task_type", taskType),
		zap.Float64("complexity", complexity),
		zap.Float64("score", bestScore),
	)
	return chosen, chosen.Name, nil
}

// Scores returns every resource's score breakdown in pool order.
func (e *Engine) Scores(taskType string, complexity float64) []Score {
	complexity = clampComplexity(complexity)
	resources := e.store.Resources()
	out := make([]Score, 0, len(resources))
	for _, r := range resources {
		out = append(out, e.score(r, taskType, complexity))
	}
	return out
}

// RecordOutcome feeds one observed use back into the metrics store.
// Malformed values are clamped; unknown resources are logged and ignored.
func (e *Engine) RecordOutcome(name string, latency time.Duration, quality float64, tokens int, success bool) {
	if latency < 0 {
		latency = 0
	}
	if math.IsNaN(quality) {
		quality = 0
	}
	quality = math.Max(0, math.Min(1, quality))
	if tokens < 0 {
		tokens = 0
	}

	if !e.store.Record(name, metrics.Sample{
		Latency: latency,
		Quality: quality,
		Success: success,
		Tokens:  tokens,
	}) {
		e.logger.Warn("outcome for unknown resource ignored", zap.String("resource", name))
	}
}

func (e *Engine) score(r metrics.Resource, taskType string, complexity float64) Score {
	st, _ := e.store.Stats(r.Name)

	efficiency := st.AvgQuality / r.CostPerUnit
	if st.AvgLatency < latencyTarget {
		efficiency *= 1 + latencyBoost*(1-float64(st.AvgLatency)/float64(latencyTarget))
	}

	s := Score{
		Resource:           r.Name,
		Efficiency:         efficiency,
		ReliabilityPenalty: st.ErrorRate() * reliabilityWeight,
	}
	if taskType != "" && r.HasExpertise(taskType) {
		s.ExpertiseBonus = expertiseBonus
	}
	switch {
	case r.Tier == metrics.TierHeavyweight && complexity > heavyweightAbove:
		s.ComplexityBonus = heavyweightBonus
	case r.Tier == metrics.TierLightweight && complexity < lightweightBelow:
		s.ComplexityBonus = lightweightBonus
	}
	s.Total = s.Efficiency + s.ExpertiseBonus + s.ComplexityBonus - s.ReliabilityPenalty
	return s
}

func clampComplexity(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
