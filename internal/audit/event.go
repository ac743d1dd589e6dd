// Package audit keeps a tamper-evident log of every repair decision of a run.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/gaps"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/repair"
	"github.com/withObsrvr/obsrvr-grid-timeseries/internal/timeseries"
)

// Version of the event layout.
const Version = "1.0"

// EventType of every repair decision.
const EventType = "gap_repair"

// Event is one repair decision.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	Resolution timeseries.Resolution `json:"resolution"`
	Label      timeseries.Label      `json:"label"`
	Gap        gaps.Run              `json:"gap"`
	Strategy   repair.Strategy       `json:"strategy"`
	Patched    bool                  `json:"patched"`
	Reason     string                `json:"reason,omitempty"`
	Error      string                `json:"error,omitempty"`
	Guess      *repair.GuessInfo     `json:"guess,omitempty"`

	Chain ChainInfo `json:"chain"`
}

// ChainInfo links an event to its predecessor.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// NewEvent converts a repair outcome into an unchained event.
func NewEvent(runID string, o repair.Outcome) *Event {
	evt := &Event{
		Version:    Version,
		EventType:  EventType,
		EventID:    uuid.NewString(),
		RunID:      runID,
		Timestamp:  time.Now().UTC(),
		Resolution: o.Resolution,
		Label:      o.Label,
		Gap:        o.Run,
		Strategy:   o.Strategy,
		Patched:    o.Patched,
		Reason:     o.Reason,
		Guess:      o.Guess,
	}
	if o.Err != nil {
		evt.Error = o.Err.Error()
	}
	return evt
}
