package service

import (
	"time"

	"tasmota_mqtt/internal/models"
)

// Caller is the authenticated user behind an API request.
type Caller struct {
	UserID     int  `json:"user_id"`
	CanControl bool `json:"can_control"`
}

// CommandRequest is the body of POST /api/v1/command.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
	Topic   string `json:"topic"`
	RelayN  string `json:"relayN"`
}

func (r CommandRequest) Key() models.RelayKey {
	return models.RelayKey{Topic: r.Topic, RelayN: r.RelayN}
}

// CommandResult reports what a command acted on.
type CommandResult struct {
	Command string                    `json:"command"`
	Relays  []models.Relay            `json:"relays,omitempty"`
	Idle    *models.IdleStatusMessage `json:"idle,omitempty"`
	Aborted *bool                     `json:"aborted,omitempty"`
}

// RelayRequest adds a relay or edits the one at Previous.
type RelayRequest struct {
	Relay    models.Relay     `json:"relay"`
	Previous *models.RelayKey `json:"previous,omitempty"`
}

// SettingsPatch changes global settings; nil fields are left as they are.
type SettingsPatch struct {
	FullTopicPattern    *string `json:"full_topic_pattern"`
	PowerOffWhenIdle    *bool   `json:"powerOffWhenIdle"`
	IdleTimeout         *int    `json:"idleTimeout"`
	IdleIgnoreCommands  *string `json:"idleIgnoreCommands"`
	IdleTimeoutWaitTemp *int    `json:"idleTimeoutWaitTemp"`
	AbortTimeout        *int    `json:"abortTimeout"`
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "POWER_ON", "POWER_OFF", "STATE_CHANGE", "AUTO_SHUTDOWN", "ERROR"
}
