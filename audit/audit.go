// Package audit provides structured security-event logging for the auth
// core. Components emit [Event] values into a [Sink]; deployments choose
// where events go (discarded, JSON lines, or a channel consumed by their
// own pipeline).
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is a single security-relevant occurrence: a login attempt, an MFA
// failure, a rate-limit rejection, a refresh rotation, and so on.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	Role      string            `json:"role,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event type names emitted by the auth core.
const (
	EventLogin            = "login"
	EventMFAChallenge     = "mfa_challenge"
	EventMFAVerify        = "mfa_verify"
	EventMFALockout       = "mfa_lockout"
	EventRefresh          = "refresh"
	EventLogout           = "logout"
	EventSessionExpired   = "session_expired"
	EventAuthFailure      = "auth_failure"
	EventAuthzDenied      = "authz_denied"
	EventRateLimitReject  = "rate_limit_reject"
	EventRequestPermitted = "request_permitted"
)

// Sink receives emitted events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// MultiSink fans every event out to each member in order.
type MultiSink []Sink

// Emit delivers the event to every member sink.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// NoOpSink drops all events.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink delivers events into a buffered channel. Emit blocks when
// the buffer is full until the context is cancelled.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Emit queues the event, giving up if ctx is cancelled first.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit serializes the event as a single JSON line. Marshal and write
// failures are silently dropped; audit must never fail the auth path.
func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
