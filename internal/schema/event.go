// Package schema defines the normalized event format for hostmend.
// Every probe produces events in this structure before they reach the
// rule engine.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single normalized observation produced by a probe.
// Events are immutable once constructed; the timestamp is assigned by
// the producer at creation and never rewritten.
type Event struct {
	ID        uuid.UUID      `json:"id" validate:"required"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	Type      string         `json:"type" validate:"required,event_type_format"`
	Source    string         `json:"source" validate:"required,max=256"`
	Data      map[string]any `json:"data,omitempty"`
	Severity  int            `json:"severity" validate:"required,min=1,max=5"`
}

// New constructs an event stamped with the current time.
func New(eventType, source string, severity int, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Severity:  severity,
	}
}

// Well-known event types emitted by the built-in probes.
const (
	TypeNetworkDisconnect = "network_disconnect"
	TypeProcessMissing    = "process_missing"
	TypeProcessFrozen     = "process_frozen"
	TypeDiskSpaceLow      = "disk_space_low"
	TypeManualScan        = "manual_scan"
)

// DataString returns the string value stored under key, or "" when the
// key is absent or holds a non-string.
func (e *Event) DataString(key string) string {
	if e.Data == nil {
		return ""
	}
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}
