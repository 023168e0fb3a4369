package models

// RelayStateMessage is pushed when a relay's confirmed state changes.
type RelayStateMessage struct {
	Topic        string `json:"topic"`
	RelayN       string `json:"relayN"`
	CurrentState State  `json:"currentstate"`
}

// NoTransportMessage is pushed once when no messaging transport is bound.
type NoTransportMessage struct {
	NoTransport bool `json:"noTransport"`
}

// IdleStatusMessage reports the idle shutdown setting and the abort countdown.
// TimeoutValue is nil while no countdown is running.
type IdleStatusMessage struct {
	PowerOffWhenIdle bool   `json:"powerOffWhenIdle"`
	Type             string `json:"type"`
	TimeoutValue     *int   `json:"timeoutValue"`
}
