package models

import "time"

// Event types written to the relay event log.
const (
	EventPowerOn      = "POWER_ON"
	EventPowerOff     = "POWER_OFF"
	EventStateChange  = "STATE_CHANGE"
	EventAutoShutdown = "AUTO_SHUTDOWN"
	EventError        = "ERROR"
)

// RelayEvent is a single log entry.
type RelayEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"` // POWER_ON | POWER_OFF | STATE_CHANGE | AUTO_SHUTDOWN | ERROR
	Topic       string    `json:"topic,omitempty"`
	RelayN      string    `json:"relayN,omitempty"`
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
