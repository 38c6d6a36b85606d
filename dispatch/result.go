package dispatch

import (
	"context"
	"time"

	"github.com/c360/hapticbridge/sentence"
)

// Status is the outcome of sending one message to one channel.
type Status string

// Channel send outcomes
const (
	StatusSent        Status = "sent"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// ChannelResult describes what happened on one channel.
type ChannelResult struct {
	Channel  string
	Status   Status
	Commands int
	Duration time.Duration
	Err      error
}

// Result describes the dispatch of one message.
type Result struct {
	Mode     Mode
	Kind     sentence.Kind
	At       time.Time
	Channels []ChannelResult
}

// Sent reports whether at least one channel received the message.
func (r Result) Sent() bool {
	for _, c := range r.Channels {
		if c.Status == StatusSent {
			return true
		}
	}
	return false
}

// Err returns the first channel error, if any.
func (r Result) Err() error {
	for _, c := range r.Channels {
		if c.Err != nil {
			return c.Err
		}
	}
	return nil
}

// Reporter receives every dispatch result.
type Reporter interface {
	Report(ctx context.Context, r Result) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Result) error

// Report implements Reporter
func (f ReporterFunc) Report(ctx context.Context, r Result) error {
	return f(ctx, r)
}
