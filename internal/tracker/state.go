package tracker

import (
	"slices"
	"time"
)

// State is a session or participant lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateAnalyzing     State = "analyzing"
	StateProcessing    State = "processing"
	StateCollaborating State = "collaborating"
	StateCompleting    State = "completing"
	StateFinished      State = "finished"
	StateError         State = "error"
)

var stateRank = map[State]int{
	StateIdle:          0,
	StateAnalyzing:     1,
	StateProcessing:    2,
	StateCollaborating: 3,
	StateCompleting:    4,
	StateFinished:      5,
	StateError:         6,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok
}

// Terminal reports whether s is finished or error.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateError
}

// Participant is one specialist's view inside a session.
type Participant struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Task      string    `json:"task,omitempty"`
	Progress  float64   `json:"progress"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one entry in a session's log.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Participant string    `json:"participant,omitempty"`
}

// Event types written by the tracker itself.
const (
	EventSessionStarted   = "session_started"
	EventParticipantState = "participant_update"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
	EventProgressReset    = "progress_reset"
)

// SessionState is a copy of a session's state.
type SessionState struct {
	ID                  string        `json:"id"`
	Query               string        `json:"query"`
	Participants        []Participant `json:"participants"`
	Phase               State         `json:"phase"`
	Progress            float64       `json:"progress"`
	StartedAt           time.Time     `json:"started_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	FinishedAt          *time.Time    `json:"finished_at,omitempty"`
	EstimatedCompletion *time.Time    `json:"estimated_completion,omitempty"`
	Result              string        `json:"result,omitempty"`
	Error               string        `json:"error,omitempty"`
	ErrorParticipant    string        `json:"error_participant,omitempty"`
}

// Terminal reports whether the session has finished or failed.
func (s SessionState) Terminal() bool {
	return s.Phase.Terminal()
}

// Participant returns the named participant.
func (s SessionState) Participant(name string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

func (s SessionState) clone() SessionState {
	s.Participants = slices.Clone(s.Participants)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		s.FinishedAt = &t
	}
	if s.EstimatedCompletion != nil {
		t := *s.EstimatedCompletion
		s.EstimatedCompletion = &t
	}
	return s
}
