package tracker

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateSession is returned when a session id is already tracked.
	ErrDuplicateSession = errors.New("duplicate session")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when resetting a finished session.
	ErrSessionTerminal = errors.New("session is terminal")
)

// Defaults.
const (
	DefaultLogCapacity      = 50
	DefaultBroadcastTimeout = 100 * time.Millisecond
	DefaultSubscriberBuffer = 32
)

type session struct {
	mu    sync.Mutex
	state SessionState
	index map[string]int
	log   *ring[Event]
}

// Tracker owns all sessions and their subscribers.
type Tracker struct {
	logCapacity      int
	broadcastTimeout time.Duration
	subscriberBuffer int
	logger           *zap.Logger
	metrics          *trackerMetrics
	now              func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	// broadcastMu serializes broadcasts and guards subs. It is taken while a
	// session lock is held, never the other way round.
	broadcastMu sync.Mutex
	subs        map[string]*Subscription
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithLogCapacity bounds each session's event log.
func WithLogCapacity(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.logCapacity = n
		}
	}
}

// WithBroadcastTimeout bounds how long a broadcast waits per subscriber.
// Broadcasts are serialized across the whole tracker, so while unresponsive
// subscribers are being dropped a mutation on any session can wait up to
// d times the number of stalled subscribers.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.broadcastTimeout = d
		}
	}
}

// WithSubscriberBuffer sets each subscription's channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(t *Tracker) {
		if n >= 0 {
			t.subscriberBuffer = n
		}
	}
}

// WithRegisterer registers tracker metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(t *Tracker) {
		t.metrics = newTrackerMetrics(reg)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		logCapacity:      DefaultLogCapacity,
		broadcastTimeout: DefaultBroadcastTimeout,
		subscriberBuffer: DefaultSubscriberBuffer,
		logger:           zap.NewNop(),
		now:              time.Now,
		sessions:         make(map[string]*session),
		subs:             make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = newTrackerMetrics(nil)
	}
	return t
}

func (t *Tracker) lookup(id string) *session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// commit broadcasts the session's current state. The caller holds s.mu;
// commit releases it after taking broadcastMu so updates leave in call
// order.
func (t *Tracker) commit(s *session, kind UpdateKind) {
	snap := s.state.clone()
	t.broadcastMu.Lock()
	s.mu.Unlock()
	t.broadcastLocked(kind, snap)
	t.broadcastMu.Unlock()
}

func (t *Tracker) appendEvent(s *session, now time.Time, eventType, content, participant string) {
	s.log.push(Event{
		Timestamp:   now,
		Type:        eventType,
		Content:     content,
		Participant: participant,
	})
}

// StartSession begins tracking a query. Participants start idle at 0.
func (t *Tracker) StartSession(id, query string, participants []string) (SessionState, error) {
	if strings.TrimSpace(id) == "" {
		return SessionState{}, fmt.Errorf("session id is empty")
	}

	now := t.now()
	s := &session{
		state: SessionState{
			ID:           id,
			Query:        query,
			Participants: make([]Participant, 0, len(participants)),
			Phase:        StateIdle,
			StartedAt:    now,
			UpdatedAt:    now,
		},
		index: make(map[string]int, len(participants)),
		log:   newRing[Event](t.logCapacity),
	}
	for _, name := range participants {
		if _, dup := s.index[name]; dup {
			continue
		}
		s.index[name] = len(s.state.Participants)
		s.state.Participants = append(s.state.Participants, Participant{
			Name:      name,
			State:     StateIdle,
			UpdatedAt: now,
		})
	}
	t.appendEvent(s, now, EventSessionStarted, query, "")

	t.mu.Lock()
	if _, exists := t.sessions[id]; exists {
		t.mu.Unlock()
		return SessionState{}, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	t.sessions[id] = s
	s.mu.Lock()
	t.mu.Unlock()

	t.metrics.activeSessions.Inc()
	out := s.state.clone()
	t.commit(s, KindSessionStarted)

	t.logger.Debug("session started", zap.String("session", id), zap.Int("participants", len(out.Participants)))
	return out, nil
}

// UpdateOption sets optional participant fields.
type UpdateOption func(*participantUpdate)

type participantUpdate struct {
	task     *string
	progress *float64
	detail   *string
}

// WithTask sets the participant's current task.
func WithTask(task string) UpdateOption {
	return func(u *participantUpdate) { u.task = &task }
}

// WithProgress sets the participant's progress in [0,100]. Progress never
// decreases.
func WithProgress(p float64) UpdateOption {
	return func(u *participantUpdate) { u.progress = &p }
}

// WithDetail sets a free-form detail string.
func WithDetail(detail string) UpdateOption {
	return func(u *participantUpdate) { u.detail = &detail }
}

// UpdateParticipant moves a participant to state and applies opts.
//
// Unknown sessions or participants, terminal sessions and invalid states are
// logged and ignored.
func (t *Tracker) UpdateParticipant(sessionID, name string, state State, opts ...UpdateOption) {
	if !state.Valid() {
		t.logger.Warn("invalid participant state ignored",
			zap.String("session", sessionID), zap.String("participant", name), zap.String("state", string(state)))
		return
	}

	s := t.lookup(sessionID)
	if s == nil {
		t.logger.Warn("update for unknown session ignored", zap.String("session", sessionID), zap.String("participant", name))
		return
	}

	var u participantUpdate
	for _, opt := range opts {
		opt(&u)
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		t.logger.Warn("update for terminal session ignored", zap.String("session", sessionID), zap.String("participant", name))
		return
	}
	i, ok := s.index[name]
	if !ok {
		s.mu.Unlock()
		t.logger.Warn("update for unknown participant ignored", zap.String("session", sessionID), zap.String("participant", name))
		return
	}

	now := t.now()
	p := &s.state.Participants[i]
	p.State = state
	p.UpdatedAt = now
	if u.task != nil {
		p.Task = *u.task
	}
	if u.detail != nil {
		p.Detail = *u.detail
	}
	if u.progress != nil {
		p.Progress = max(p.Progress, clampProgress(*u.progress))
	}

	t.recompute(s, now, false)
	t.appendEvent(s, now, EventParticipantState, describe(p), name)
	t.commit(s, KindParticipantUpdated)
}

func describe(p *Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%.0f%%)", p.Name, p.State, p.Progress)
	if p.Task != "" {
		b.WriteString(" ")
		b.WriteString(p.Task)
	}
	return b.String()
}

// recompute derives overall progress, phase and estimated completion. The
// phase only moves forward unless reset is set.
func (t *Tracker) recompute(s *session, now time.Time, reset bool) {
	st := &s.state
	st.UpdatedAt = now

	if n := len(st.Participants); n > 0 {
		var sum float64
		for _, p := range st.Participants {
			sum += p.Progress
		}
		progress := sum / float64(n)
		if reset {
			st.Progress = progress
		} else {
			st.Progress = max(st.Progress, progress)
		}
	}

	phase := sessionPhase(st.Participants)
	if reset || stateRank[phase] > stateRank[st.Phase] {
		st.Phase = phase
	}

	st.EstimatedCompletion = nil
	if st.Progress > 0 {
		elapsed := now.Sub(st.StartedAt)
		eta := st.StartedAt.Add(time.Duration(float64(elapsed) / (st.Progress / 100)))
		st.EstimatedCompletion = &eta
	}
}

// sessionPhase is the most advanced non-error participant state. Finished
// participants count as completing; the session itself only finishes
// through Complete.
func sessionPhase(participants []Participant) State {
	phase := StateIdle
	for _, p := range participants {
		s := p.State
		switch s {
		case StateError:
			continue
		case StateFinished:
			s = StateCompleting
		}
		if stateRank[s] > stateRank[phase] {
			phase = s
		}
	}
	return phase
}

func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// AppendLog records an event in the session's bounded log.
// Unknown and terminal sessions are logged and ignored.
func (t *Tracker) AppendLog(sessionID, eventType, content, participant string) {
	s := t.lookup(sessionID)
	if s == nil {
		t.logger.Warn("log for unknown session ignored", zap.String("session", sessionID), zap.String("type", eventType))
		return
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		t.logger.Warn("log for terminal session ignored", zap.String("session", sessionID), zap.String("type", eventType))
		return
	}
	now := t.now()
	s.state.UpdatedAt = now
	t.appendEvent(s, now, eventType, content, participant)
	t.commit(s, KindLogAppended)
}

// Complete marks the session finished with result. Completing a terminal
// session is a no-op.
func (t *Tracker) Complete(sessionID, result string) error {
	s := t.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	now := t.now()
	st := &s.state
	st.Phase = StateFinished
	st.Progress = 100
	st.Result = result
	st.UpdatedAt = now
	st.FinishedAt = &now
	st.EstimatedCompletion = nil
	t.appendEvent(s, now, EventSessionCompleted, result, "")

	t.metrics.activeSessions.Dec()
	t.metrics.sessions.WithLabelValues("completed").Inc()
	t.commit(s, KindSessionCompleted)
	return nil
}

// Fail marks the session errored. participant, when set and known, moves to
// the error state as well. Failing a terminal session is a no-op.
func (t *Tracker) Fail(sessionID, errMsg, participant string) error {
	s := t.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	now := t.now()
	st := &s.state
	if i, ok := s.index[participant]; ok {
		st.Participants[i].State = StateError
		st.Participants[i].UpdatedAt = now
	}
	st.Phase = StateError
	st.Error = errMsg
	st.ErrorParticipant = participant
	st.UpdatedAt = now
	st.FinishedAt = &now
	st.EstimatedCompletion = nil
	t.appendEvent(s, now, EventSessionFailed, errMsg, participant)

	t.metrics.activeSessions.Dec()
	t.metrics.sessions.WithLabelValues("failed").Inc()
	t.commit(s, KindSessionFailed)
	return nil
}

// ResetProgress zeroes every participant's progress and re-derives the
// phase. It is the only way progress decreases.
func (t *Tracker) ResetProgress(sessionID string) error {
	s := t.lookup(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}
	now := t.now()
	for i := range s.state.Participants {
		s.state.Participants[i].Progress = 0
	}
	t.recompute(s, now, true)
	t.appendEvent(s, now, EventProgressReset, "progress reset", "")
	t.commit(s, KindProgressReset)
	return nil
}

// GetSessionState returns a copy of the session state.
func (t *Tracker) GetSessionState(sessionID string) (SessionState, error) {
	s := t.lookup(sessionID)
	if s == nil {
		return SessionState{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone(), nil
}

// GetSessionLog returns the session's events, oldest first.
func (t *Tracker) GetSessionLog(sessionID string) ([]Event, error) {
	s := t.lookup(sessionID)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.all(), nil
}

// ListSessions returns every session ordered by start time, then id.
func (t *Tracker) ListSessions() []SessionState {
	t.mu.RLock()
	all := make([]*session, 0, len(t.sessions))
	for _, s := range t.sessions {
		all = append(all, s)
	}
	t.mu.RUnlock()

	out := make([]SessionState, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, s.state.clone())
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b SessionState) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Remove forgets a session. It returns false for unknown ids.
func (t *Tracker) Remove(sessionID string) bool {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	if !s.state.Terminal() {
		t.metrics.activeSessions.Dec()
	}
	t.commit(s, KindSessionRemoved)
	return true
}

// PruneTerminal removes terminal sessions that finished before the cutoff
// and returns how many were removed.
func (t *Tracker) PruneTerminal(before time.Time) int {
	t.mu.RLock()
	var ids []string
	for id, s := range t.sessions {
		s.mu.Lock()
		if s.state.Terminal() && s.state.FinishedAt != nil && s.state.FinishedAt.Before(before) {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	t.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if t.Remove(id) {
			n++
		}
	}
	return n
}
