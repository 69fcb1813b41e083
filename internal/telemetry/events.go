package telemetry

import (
	"encoding/json"
	"time"

	"github.com/bluebricks/rba-harness/internal/exchangelog"
)

// ExchangeEvent is one relayed upstream exchange.
type ExchangeEvent struct {
	Timestamp  time.Time `json:"@timestamp"`
	ExchangeID string    `json:"exchange_id"`
	URL        string    `json:"url,omitempty"`
	IsError    bool      `json:"is_error"`
	Request    any       `json:"request"`
	Response   any       `json:"response"`
}

// RequestAuditEvent is one HTTP request served by the harness.
type RequestAuditEvent struct {
	Timestamp  time.Time `json:"@timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	ClientIP   string    `json:"client_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Origin     string    `json:"origin,omitempty"`
}

// NewExchangeEvent converts a log entry. The URL is lifted out of the
// request when it carries one.
func NewExchangeEvent(e exchangelog.Entry) ExchangeEvent {
	ev := ExchangeEvent{
		Timestamp:  e.Timestamp,
		ExchangeID: e.ID,
		IsError:    e.IsError,
		Request:    e.Request,
		Response:   e.Response,
	}
	if b, err := json.Marshal(e.Request); err == nil {
		var r struct {
			URL string `json:"url"`
		}
		if json.Unmarshal(b, &r) == nil {
			ev.URL = r.URL
		}
	}
	return ev
}

// normalize turns a published value into the document that is shipped:
// log entries become ExchangeEvents and every document gets an @timestamp.
func normalize(ev any, now time.Time) (any, map[string]any) {
	if e, ok := ev.(exchangelog.Entry); ok {
		ev = NewExchangeEvent(e)
	}
	m := map[string]any{}
	b, _ := json.Marshal(ev)
	_ = json.Unmarshal(b, &m)
	if m == nil {
		m = map[string]any{"event": ev}
	}
	if ts, ok := m["@timestamp"]; !ok || ts == "0001-01-01T00:00:00Z" {
		m["@timestamp"] = now
	}
	return ev, m
}
