package models

import "strings"

// State is the last confirmed power state of a relay.
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
)

// ParseState maps a Tasmota status payload to a State. Anything that is not ON/OFF is UNKNOWN.
func ParseState(payload string) State {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case string(StateOn):
		return StateOn
	case string(StateOff):
		return StateOff
	default:
		return StateUnknown
	}
}

// RelayKey identifies a relay within the registry. An empty RelayN addresses a single-relay device.
type RelayKey struct {
	Topic  string `json:"topic"`
	RelayN string `json:"relayN"`
}

func (k RelayKey) String() string {
	if k.RelayN == "" {
		return k.Topic
	}
	return k.Topic + "|" + k.RelayN
}

// Relay is one configured plug channel. Delays are in whole seconds.
type Relay struct {
	Topic        string `json:"topic" yaml:"topic"`
	RelayN       string `json:"relayN" yaml:"relayN"`
	Icon         string `json:"icon" yaml:"icon"`
	CurrentState State  `json:"currentstate" yaml:"currentstate"`

	Warn                     bool `json:"warn" yaml:"warn"`
	WarnPrinting             bool `json:"warnPrinting" yaml:"warnPrinting"`
	AutomaticShutdownEnabled bool `json:"automaticShutdownEnabled" yaml:"automaticShutdownEnabled"`

	Gcode         bool `json:"gcode" yaml:"gcode"`
	GcodeOnDelay  int  `json:"gcodeOnDelay" yaml:"gcodeOnDelay"`
	GcodeOffDelay int  `json:"gcodeOffDelay" yaml:"gcodeOffDelay"`

	Connect            bool `json:"connect" yaml:"connect"`
	ConnectOnDelay     int  `json:"connectOnDelay" yaml:"connectOnDelay"`
	Disconnect         bool `json:"disconnect" yaml:"disconnect"`
	DisconnectOffDelay int  `json:"disconnectOffDelay" yaml:"disconnectOffDelay"`

	SysCmdOn       bool   `json:"sysCmdOn" yaml:"sysCmdOn"`
	SysCmdRunOn    string `json:"sysCmdRunOn" yaml:"sysCmdRunOn"`
	SysCmdOnDelay  int    `json:"sysCmdOnDelay" yaml:"sysCmdOnDelay"`
	SysCmdOff      bool   `json:"sysCmdOff" yaml:"sysCmdOff"`
	SysCmdRunOff   string `json:"sysCmdRunOff" yaml:"sysCmdRunOff"`
	SysCmdOffDelay int    `json:"sysCmdOffDelay" yaml:"sysCmdOffDelay"`

	EventOnError   bool `json:"event_on_error" yaml:"event_on_error"`
	EventOnStartup bool `json:"event_on_startup" yaml:"event_on_startup"`
	EventOnUpload  bool `json:"event_on_upload" yaml:"event_on_upload"`
}

// Key returns the (topic, relayN) pair of the relay.
func (r Relay) Key() RelayKey {
	return RelayKey{Topic: r.Topic, RelayN: r.RelayN}
}

// NewRelay returns a relay with the defaults the settings editor uses for a fresh entry.
func NewRelay(topic, relayN string) Relay {
	return Relay{
		Topic:          topic,
		RelayN:         relayN,
		Icon:           "icon-bolt",
		CurrentState:   StateUnknown,
		Warn:           true,
		WarnPrinting:   true,
		ConnectOnDelay: 15,
	}
}
