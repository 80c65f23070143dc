// Package events mirrors tracker updates onto NATS.
//
// Every update is published to:
//
//	{prefix}.{session_id}.{kind}
//
// for example sessions.6f1c....participant_updated. The message body is the
// JSON encoding of tracker.Update, including the full session state.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/switchboard/internal/tracker"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultPrefix is used when no subject prefix is configured.
const DefaultPrefix = "sessions"

var (
	// ErrNilConn is returned when no NATS connection is supplied.
	ErrNilConn = errors.New("nats connection is required")

	// ErrNilTracker is returned when no tracker is supplied.
	ErrNilTracker = errors.New("tracker is required")
)

// Publisher forwards tracker updates to NATS.
type Publisher struct {
	nc      *nats.Conn
	tracker *tracker.Tracker
	prefix  string
	logger  *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		prefix = strings.Trim(prefix, ". ")
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// NewPublisher creates a publisher for tr on nc.
func NewPublisher(nc *nats.Conn, tr *tracker.Tracker, opts ...Option) (*Publisher, error) {
	if nc == nil {
		return nil, ErrNilConn
	}
	if tr == nil {
		return nil, ErrNilTracker
	}
	p := &Publisher{
		nc:      nc,
		tracker: tr,
		prefix:  DefaultPrefix,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Subject returns the subject an update for sessionID of the given kind is
// published on.
func (p *Publisher) Subject(sessionID string, kind tracker.UpdateKind) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, sessionID, kind)
}

// Run subscribes to the tracker and publishes updates until ctx is done.
// If the tracker drops the subscription for falling behind, Run
// resubscribes; updates broadcast in between are lost. Pending messages are
// flushed on exit.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("nats publisher started", zap.String("prefix", p.prefix))
	defer func() {
		if err := p.nc.Flush(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			p.logger.Warn("nats flush failed", zap.Error(err))
		}
		p.logger.Info("nats publisher stopped")
	}()

	for {
		if done := p.forward(ctx); done {
			return nil
		}
		p.logger.Warn("tracker dropped nats publisher subscription, resubscribing")
	}
}

// forward drains one subscription. It reports true when ctx ended.
func (p *Publisher) forward(ctx context.Context) bool {
	sub := p.tracker.Subscribe()
	defer p.tracker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return true
		case u, ok := <-sub.Updates():
			if !ok {
				return ctx.Err() != nil
			}
			if err := p.publish(u); err != nil {
				p.logger.Warn("failed to publish session update",
					zap.String("session", u.SessionID),
					zap.String("kind", string(u.Kind)),
					zap.Error(err),
				)
			}
		}
	}
}

func (p *Publisher) publish(u tracker.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := p.nc.Publish(p.Subject(u.SessionID, u.Kind), data); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}
