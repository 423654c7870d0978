package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event names emitted by the engine.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLoginRateLimited     = "login_rate_limited"
	EventRefreshSuccess       = "refresh_success"
	EventRefreshFailure       = "refresh_failure"
	EventRefreshReuse         = "refresh_reuse_detected"
	EventLogout               = "logout"
	EventLogoutAll            = "logout_all"
	EventVerificationIssued   = "email_verification_issued"
	EventVerificationConsumed = "email_verification_consumed"
	EventVerificationFailed   = "email_verification_failed"
)

// Event is one structured audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UID       int64             `json:"uid,omitempty"`
	Identity  string            `json:"identity,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel for the caller to drain.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

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
