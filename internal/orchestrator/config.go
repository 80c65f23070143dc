package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/switchboard/internal/config"
)

// Config tunes query execution.
type Config struct {
	SessionTimeout  time.Duration
	MaxParticipants int
	Workers         int
	MaxTokens       int
}

// DefaultConfig returns the defaults the application config also uses.
func DefaultConfig() Config {
	return Config{
		SessionTimeout:  2 * time.Minute,
		MaxParticipants: 3,
		Workers:         4,
		MaxTokens:       1024,
	}
}

// ConfigFromApp derives the driver config from the application config.
func ConfigFromApp(app *config.Config) Config {
	return Config{
		SessionTimeout:  app.Orchestrator.SessionTimeout.Duration(),
		MaxParticipants: app.Orchestrator.MaxParticipants,
		Workers:         app.Orchestrator.Workers,
		MaxTokens:       app.Generator.MaxTokens,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.MaxParticipants < 1 {
		c.MaxParticipants = d.MaxParticipants
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.MaxTokens < 1 {
		c.MaxTokens = d.MaxTokens
	}
	return c
}
