package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/switchboard/internal/generator"
	"github.com/fyrsmithlabs/switchboard/internal/logging"
	"github.com/fyrsmithlabs/switchboard/internal/metrics"
	"github.com/fyrsmithlabs/switchboard/internal/registry"
	"github.com/fyrsmithlabs/switchboard/internal/selection"
	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

// Specialists is the registry view the driver reads.
type Specialists interface {
	RefreshAsync(ctx context.Context)
	Get(id string) (registry.Specialist, bool)
	GetByKeywords(keywords []string) []registry.Specialist
	GetByDomain(domain string) []registry.Specialist
	Prompt(id string) (*registry.CompiledPrompt, error)
	Stats() registry.Stats
}

// Selector picks resources and learns from outcomes.
type Selector interface {
	Select(taskType string, complexity float64) (metrics.Resource, string, error)
	RecordOutcome(name string, latency time.Duration, quality float64, tokens int, success bool)
}

// Generators resolves a resource's provider to a generator.
type Generators interface {
	Get(provider string) (generator.Generator, error)
}

// Driver runs queries. It is safe for concurrent use; each query is driven
// by the goroutine that called SelectAndRun.
type Driver struct {
	cache      Specialists
	engine     Selector
	tracker    *tracker.Tracker
	generators Generators

	cfg      Config
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
	scorer   generator.Scorer
	metrics  *driverMetrics
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets the observer told about participant transitions and
// finished queries.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithTracer sets the tracer for query and participant spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithScorer sets the answer quality scorer.
func WithScorer(s generator.Scorer) Option {
	return func(d *Driver) {
		if s != nil {
			d.scorer = s
		}
	}
}

// WithConfig sets timeouts and limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(d *Driver) {
		d.cfg = cfg.withDefaults()
	}
}

// WithRegisterer registers the driver metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Driver) {
		d.metrics = newDriverMetrics(reg)
	}
}

// NewDriver creates a driver over its collaborators.
func NewDriver(cache Specialists, engine Selector, tr *tracker.Tracker, generators Generators, opts ...Option) *Driver {
	d := &Driver{
		cache:      cache,
		engine:     engine,
		tracker:    tr,
		generators: generators,
		cfg:        DefaultConfig(),
		logger:     zap.NewNop(),
		observer:   ObserverFuncs{},
		tracer:     noop.NewTracerProvider().Tracer("switchboard/orchestrator"),
		scorer:     generator.NewHeuristicScorer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = newDriverMetrics(nil)
	}
	return d
}

// step is a participant transition reported by a worker. The last step a
// worker sends carries its contribution.
type step struct {
	index       int
	participant string
	state       tracker.State
	progress    float64
	task        string
	detail      string
	done        *Contribution
}

// SelectAndRun answers query with the matching specialists.
//
// The returned Result is non-nil once a session has been opened. On failure
// the Result carries the error kind and a generic message, and the error
// wraps ErrNoSpecialists, selection.ErrNoResourceAvailable,
// ErrGenerationFailed, ErrTimeout or ErrCanceled.
func (d *Driver) SelectAndRun(ctx context.Context, query string, qc QueryContext) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sessionID := qc.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if err := logging.ValidateID(sessionID, "session_id"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSessionID, err)
	}

	ctx = logging.WithSessionID(ctx, sessionID)
	ctx, span := d.tracer.Start(ctx, "orchestrator.SelectAndRun",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	start := time.Now()

	d.cache.RefreshAsync(ctx)
	specs := d.candidates(ctx, query, qc)

	complexity := qc.Complexity
	if complexity <= 0 {
		complexity = EstimateComplexity(query)
	}
	complexity = min(complexity, 1)

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.ID
	}
	span.SetAttributes(
		attribute.Int("participants", len(specs)),
		attribute.Float64("complexity", complexity),
	)

	if _, err := d.tracker.StartSession(sessionID, query, names); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start session")
		return nil, fmt.Errorf("start session: %w", err)
	}
	d.logger.Info("query started", append(logging.ContextFields(ctx),
		zap.Strings("specialists", names),
		zap.Float64("complexity", complexity),
	)...)

	res := &Result{
		SessionID:     sessionID,
		Complexity:    complexity,
		Contributions: []Contribution{},
	}
	if len(specs) == 0 {
		return d.fail(ctx, span, res, start, 0, KindNoSpecialists, "", ErrNoSpecialists)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.SessionTimeout)
	defer cancel()

	// Each worker sends at most three steps, so workers never block on a
	// driver that stopped reading after a timeout.
	steps := make(chan step, 3*len(specs))
	go func() {
		var g errgroup.Group
		g.SetLimit(d.cfg.Workers)
		for i, s := range specs {
			g.Go(func() error {
				d.runSpecialist(runCtx, i, s, query, complexity, steps)
				return nil
			})
		}
		_ = g.Wait()
		close(steps)
	}()

	done := make([]*Contribution, len(specs))
	interrupted := false
collect:
	for {
		select {
		case st, ok := <-steps:
			if !ok {
				break collect
			}
			d.apply(ctx, sessionID, st)
			if st.done != nil {
				done[st.index] = st.done
			}
		case <-runCtx.Done():
			interrupted = true
			break collect
		}
	}

	var succeeded, failed []Contribution
	for _, c := range done {
		if c == nil {
			continue
		}
		res.Contributions = append(res.Contributions, *c)
		if c.Succeeded() {
			succeeded = append(succeeded, *c)
		} else {
			failed = append(failed, *c)
		}
	}

	if interrupted || (len(succeeded) == 0 && runCtx.Err() != nil) {
		kind, sentinel := contextKind(runCtx)
		return d.fail(ctx, span, res, start, len(specs), kind, "", sentinel)
	}

	if len(succeeded) == 0 {
		kind, sentinel := KindNoResourceAvailable, selection.ErrNoResourceAvailable
		for _, c := range failed {
			if c.ErrorKind != KindNoResourceAvailable {
				kind, sentinel = KindGenerationFailed, ErrGenerationFailed
				break
			}
		}
		return d.fail(ctx, span, res, start, len(specs), kind, failed[0].Specialist, sentinel)
	}

	if len(succeeded) > 1 {
		d.tracker.AppendLog(sessionID, "merge", fmt.Sprintf("merging %d contributions", len(succeeded)), "")
		for _, c := range succeeded {
			d.apply(ctx, sessionID, step{
				participant: c.Specialist,
				state:       tracker.StateCollaborating,
				progress:    95,
				task:        "merging contributions",
			})
		}
	}
	res.Answer = merge(succeeded)
	for _, c := range succeeded {
		d.apply(ctx, sessionID, step{participant: c.Specialist, state: tracker.StateFinished, progress: 100})
	}

	if err := d.tracker.Complete(sessionID, res.Answer); err != nil {
		d.logger.Warn("complete session", append(logging.ContextFields(ctx), zap.Error(err))...)
	}
	res.Status = StatusCompleted
	res.Duration = time.Since(start)
	span.SetStatus(codes.Ok, "")
	d.metrics.observe(res, len(specs))
	d.logger.Info("query completed", append(logging.ContextFields(ctx),
		zap.Int("answered", len(succeeded)),
		zap.Int("failed", len(failed)),
		zap.Duration("duration", res.Duration),
	)...)
	d.observer.OnFinished(ctx, res)
	return res, nil
}

// candidates resolves the specialists for a query, capped at
// MaxParticipants.
func (d *Driver) candidates(ctx context.Context, query string, qc QueryContext) []registry.Specialist {
	var out []registry.Specialist
	if len(qc.Specialists) > 0 {
		seen := make(map[string]bool, len(qc.Specialists))
		for _, id := range qc.Specialists {
			if seen[id] {
				continue
			}
			seen[id] = true
			s, ok := d.cache.Get(id)
			if !ok {
				d.logger.Warn("requested specialist not found", append(logging.ContextFields(ctx), zap.String("specialist", id))...)
				continue
			}
			out = append(out, s)
		}
	} else {
		out = d.cache.GetByKeywords(generator.Keywords(query))
		if len(out) == 0 {
			out = d.cache.GetByDomain(registry.GeneralDomain)
		}
	}
	if len(out) > d.cfg.MaxParticipants {
		out = out[:d.cfg.MaxParticipants]
	}
	return out
}

// runSpecialist drives one participant. It reports through out and never
// touches the tracker.
func (d *Driver) runSpecialist(ctx context.Context, index int, spec registry.Specialist, query string, complexity float64, out chan<- step) {
	ctx, span := d.tracer.Start(ctx, "orchestrator.specialist", trace.WithAttributes(
		attribute.String("specialist.id", spec.ID),
		attribute.String("specialist.domain", spec.Domain),
	))
	defer span.End()

	c := &Contribution{Specialist: spec.ID, Role: spec.Role}
	fail := func(kind ErrorKind, detail string, err error) {
		c.ErrorKind = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		out <- step{index: index, participant: spec.ID, state: tracker.StateError, detail: detail, done: c}
	}

	if err := ctx.Err(); err != nil {
		kind, _ := contextKind(ctx)
		fail(kind, "not started", err)
		return
	}

	out <- step{index: index, participant: spec.ID, state: tracker.StateAnalyzing, progress: 10, task: "selecting resource"}

	res, name, err := d.engine.Select(spec.Domain, complexity)
	if err != nil {
		fail(KindNoResourceAvailable, "no resource available", err)
		return
	}
	c.Resource, c.Model = name, res.Model
	span.SetAttributes(attribute.String("resource.name", name))

	gen, err := d.generators.Get(res.Provider)
	if err != nil {
		d.logger.Warn("no generator for resource", append(logging.ContextFields(ctx),
			zap.String("resource", name), zap.String("provider", res.Provider))...)
		fail(KindGenerationFailed, "generation failed", err)
		return
	}

	out <- step{index: index, participant: spec.ID, state: tracker.StateProcessing, progress: 30, task: "generating with " + name}

	req := generator.Request{
		Model:     res.Model,
		System:    d.systemPrompt(ctx, spec),
		Prompt:    query,
		MaxTokens: d.cfg.MaxTokens,
	}
	started := time.Now()
	resp, err := gen.Generate(ctx, req)
	c.Latency = time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			kind, _ := contextKind(ctx)
			fail(kind, "interrupted", err)
			return
		}
		d.engine.RecordOutcome(name, c.Latency, 0, 0, false)
		d.logger.Warn("generation failed", append(logging.ContextFields(ctx),
			zap.String("specialist", spec.ID), zap.String("resource", name), zap.Error(err))...)
		fail(KindGenerationFailed, "generation failed", err)
		return
	}

	c.Answer = resp.Text
	c.InputTokens, c.OutputTokens = resp.InputTokens, resp.OutputTokens
	c.Quality = d.scorer.Score(req, resp)
	d.engine.RecordOutcome(name, c.Latency, c.Quality, resp.Tokens(), true)
	span.SetAttributes(
		attribute.Float64("quality", c.Quality),
		attribute.Int("tokens", resp.Tokens()),
	)

	out <- step{index: index, participant: spec.ID, state: tracker.StateCompleting, progress: 90, task: "answer ready", done: c}
}

// systemPrompt returns the compiled prompt, falling back to the raw
// instructions when the specialist was hot-reloaded away mid-query.
func (d *Driver) systemPrompt(ctx context.Context, spec registry.Specialist) string {
	p, err := d.cache.Prompt(spec.ID)
	if err != nil {
		d.logger.Debug("using raw instructions", append(logging.ContextFields(ctx),
			zap.String("specialist", spec.ID), zap.Error(err))...)
		return spec.Role + "\n" + spec.Instructions
	}
	return p.System
}

// apply writes a step to the tracker. Only the driver goroutine calls it.
func (d *Driver) apply(ctx context.Context, sessionID string, st step) {
	opts := []tracker.UpdateOption{tracker.WithProgress(st.progress)}
	if st.task != "" {
		opts = append(opts, tracker.WithTask(st.task))
	}
	if st.detail != "" {
		opts = append(opts, tracker.WithDetail(st.detail))
	}
	d.tracker.UpdateParticipant(sessionID, st.participant, st.state, opts...)
	if st.state == tracker.StateError {
		d.tracker.AppendLog(sessionID, "participant_error", st.detail, st.participant)
	}
	d.observer.OnParticipant(ctx, sessionID, st.participant, st.state)
}

func (d *Driver) fail(ctx context.Context, span trace.Span, res *Result, start time.Time, participants int, kind ErrorKind, participant string, sentinel error) (*Result, error) {
	res.Status = StatusFailed
	res.ErrorKind = kind
	res.Error = kind.Message()
	res.Duration = time.Since(start)

	if err := d.tracker.Fail(res.SessionID, string(kind), participant); err != nil {
		d.logger.Warn("fail session", append(logging.ContextFields(ctx), zap.Error(err))...)
	}
	span.SetStatus(codes.Error, string(kind))
	d.metrics.observe(res, participants)
	d.logger.Warn("query failed", append(logging.ContextFields(ctx),
		zap.String("kind", string(kind)),
		zap.String("participant", participant),
		zap.Duration("duration", res.Duration),
	)...)
	d.observer.OnFinished(ctx, res)
	return res, fmt.Errorf("session %s: %w", res.SessionID, sentinel)
}

func contextKind(ctx context.Context) (ErrorKind, error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return KindCanceled, ErrCanceled
	}
	return KindTimeout, ErrTimeout
}

// merge combines answers, highest quality first. A single answer is
// returned as is.
func merge(cs []Contribution) string {
	if len(cs) == 1 {
		return cs[0].Answer
	}
	sorted := make([]Contribution, len(cs))
	copy(sorted, cs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quality > sorted[j].Quality
	})

	var b strings.Builder
	for i, c := range sorted {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n%s", c.Role, c.Answer)
	}
	return b.String()
}

// GetSessionState returns a copy of a session's state.
func (d *Driver) GetSessionState(sessionID string) (tracker.SessionState, error) {
	return d.tracker.GetSessionState(sessionID)
}

// GetSessionLog returns a session's event log, oldest first.
func (d *Driver) GetSessionLog(sessionID string) ([]tracker.Event, error) {
	return d.tracker.GetSessionLog(sessionID)
}

// ListSessions returns every tracked session.
func (d *Driver) ListSessions() []tracker.SessionState {
	return d.tracker.ListSessions()
}

// GetCacheStats returns registry cache statistics.
func (d *Driver) GetCacheStats() registry.Stats {
	return d.cache.Stats()
}

// Subscribe registers for updates of one session, or of every session when
// sessionID is empty.
func (d *Driver) Subscribe(sessionID string) *tracker.Subscription {
	if sessionID == "" {
		return d.tracker.Subscribe()
	}
	return d.tracker.SubscribeSession(sessionID)
}

// Unsubscribe cancels a subscription.
func (d *Driver) Unsubscribe(sub *tracker.Subscription) {
	d.tracker.Unsubscribe(sub)
}
