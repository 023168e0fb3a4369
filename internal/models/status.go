package models

// IdleSnapshot describes the idle shutdown engine for the status endpoint.
type IdleSnapshot struct {
	State             string `json:"state"`
	PowerOffWhenIdle  bool   `json:"powerOffWhenIdle"`
	TimeoutValue      *int   `json:"timeoutValue"`
	DeadlineRemaining int    `json:"deadline_remaining_s"`
	DeadlineInterval  int    `json:"deadline_interval_s"`
	WaitingForHeaters bool   `json:"waiting_for_heaters"`
	WaitingTimelapse  bool   `json:"waiting_for_timelapse"`
	TimelapseActive   bool   `json:"timelapse_active"`
}

// Status is the combined view served by GET /api/v1/status.
type Status struct {
	Transport     bool             `json:"transport"`
	Relays        []Relay          `json:"relays"`
	Subscriptions []string         `json:"subscriptions"`
	PendingUpload string           `json:"pending_upload,omitempty"`
	Idle          IdleSnapshot     `json:"idle"`
	Printer       *PrinterSnapshot `json:"printer,omitempty"`
}
