package tracker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpdateKind names the mutation that produced an Update.
type UpdateKind string

const (
	KindSessionStarted     UpdateKind = "session_started"
	KindParticipantUpdated UpdateKind = "participant_updated"
	KindLogAppended        UpdateKind = "log_appended"
	KindSessionCompleted   UpdateKind = "session_completed"
	KindSessionFailed      UpdateKind = "session_failed"
	KindProgressReset      UpdateKind = "progress_reset"
	KindSessionRemoved     UpdateKind = "session_removed"
)

// Update is pushed to subscribers after each mutation. Payload is the JSON
// encoding of State.
type Update struct {
	Kind      UpdateKind      `json:"kind"`
	SessionID string          `json:"session_id"`
	State     SessionState    `json:"-"`
	Payload   json.RawMessage `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscription receives updates until it is unsubscribed or dropped, after
// which its channel is closed.
type Subscription struct {
	id        string
	sessionID string
	ch        chan Update
	closed    bool // guarded by Tracker.broadcastMu
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// SessionID returns the session filter, empty for all sessions.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Updates returns the receive channel.
func (s *Subscription) Updates() <-chan Update {
	return s.ch
}

func (s *Subscription) wants(sessionID string) bool {
	return s.sessionID == "" || s.sessionID == sessionID
}

// Subscribe registers a subscriber for every session.
func (t *Tracker) Subscribe() *Subscription {
	return t.subscribe("")
}

// SubscribeSession registers a subscriber for one session.
func (t *Tracker) SubscribeSession(sessionID string) *Subscription {
	return t.subscribe(sessionID)
}

func (t *Tracker) subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ch:        make(chan Update, t.subscriberBuffer),
	}

	t.broadcastMu.Lock()
	t.subs[sub.id] = sub
	n := len(t.subs)
	t.broadcastMu.Unlock()

	t.metrics.subscribers.Set(float64(n))
	t.logger.Debug("subscriber added", zap.String("subscription", sub.id), zap.String("session", sessionID))
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (t *Tracker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	t.broadcastMu.Lock()
	t.removeSubLocked(sub)
	n := len(t.subs)
	t.broadcastMu.Unlock()

	t.metrics.subscribers.Set(float64(n))
}

// SubscriberCount returns the number of live subscriptions.
func (t *Tracker) SubscriberCount() int {
	t.broadcastMu.Lock()
	defer t.broadcastMu.Unlock()
	return len(t.subs)
}

func (t *Tracker) removeSubLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(t.subs, sub.id)
	close(sub.ch)
}

// broadcastLocked delivers u to every interested subscriber. The caller holds
// broadcastMu. Subscribers that cannot accept within the timeout are dropped.
func (t *Tracker) broadcastLocked(kind UpdateKind, state SessionState) {
	payload, err := json.Marshal(state)
	if err != nil {
		t.logger.Error("encoding session state", zap.String("session", state.ID), zap.Error(err))
		return
	}
	u := Update{
		Kind:      kind,
		SessionID: state.ID,
		State:     state,
		Payload:   payload,
		Timestamp: t.now(),
	}
	t.metrics.broadcasts.Inc()

	var dropped []*Subscription
	for _, sub := range t.subs {
		if !sub.wants(state.ID) {
			continue
		}
		if !t.deliver(sub, u) {
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		t.removeSubLocked(sub)
		t.metrics.droppedSubscribers.Inc()
		t.logger.Debug("unresponsive subscriber dropped",
			zap.String("subscription", sub.id),
			zap.String("session", state.ID),
			zap.String("kind", string(kind)),
		)
	}
	if len(dropped) > 0 {
		t.metrics.subscribers.Set(float64(len(t.subs)))
	}
}

func (t *Tracker) deliver(sub *Subscription, u Update) bool {
	// Each subscriber gets its own copy so receivers may keep it.
	u.State = u.State.clone()

	select {
	case sub.ch <- u:
		return true
	default:
	}

	timer := time.NewTimer(t.broadcastTimeout)
	defer timer.Stop()
	select {
	case sub.ch <- u:
		return true
	case <-timer.C:
		return false
	}
}
