package service

import (
	"context"
	"sort"

	"tasmota_mqtt/internal/models"
)

// snapshotter is implemented by printer oracles that can describe themselves.
type snapshotter interface {
	Snapshot() models.PrinterSnapshot
}

type MonitoringService struct {
	core    *Core
	printer Printer
	tg      *transportGuard
}

func NewMonitoringService(core *Core, printer Printer, tg *transportGuard) *MonitoringService {
	return &MonitoringService{core: core, printer: printer, tg: tg}
}

// GetStatus returns the relays with their confirmed state, the idle engine and,
// when the oracle supports it, the printer.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.Status, error) {
	if err := ctx.Err(); err != nil {
		return models.Status{}, err
	}
	st := models.Status{
		Transport:     s.tg.available(),
		Relays:        s.core.Registry.Relays(),
		Subscriptions: []string{},
		PendingUpload: s.core.Events.Autostart(),
		Idle:          s.core.Idle.Snapshot(),
	}
	for _, t := range s.core.Subscriptions.Topics() {
		st.Subscriptions = append(st.Subscriptions, t)
	}
	sort.Strings(st.Subscriptions)
	if p, ok := s.printer.(snapshotter); ok {
		snap := p.Snapshot()
		st.Printer = &snap
	}
	return st, nil
}
