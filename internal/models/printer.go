package models

// Temperature is a heater reading in °C.
type Temperature struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Printer connection states reported by the printer oracle.
const (
	PrinterClosed      = "CLOSED"
	PrinterOperational = "OPERATIONAL"
	PrinterPrinting    = "PRINTING"
	PrinterPaused      = "PAUSED"
	PrinterError       = "ERROR"
)

// PrinterSnapshot is a point-in-time view of the printer.
type PrinterSnapshot struct {
	State            string                 `json:"state"`
	File             string                 `json:"file,omitempty"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Temperatures     map[string]Temperature `json:"temperatures"`
}
