package service

import (
	"errors"
	"sync"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
)

var ErrTransportUnavailable = errors.New("mqtt transport unavailable")

// transportGuard makes the optional Messenger safe to call. Without a messenger every
// call fails with ErrTransportUnavailable and UI clients are told once.
type transportGuard struct {
	m        Messenger
	notifier Notifier
	log      *logger.Logger
	once     sync.Once
}

func newTransportGuard(m Messenger, n Notifier, log *logger.Logger) *transportGuard {
	if n == nil {
		n = nopNotifier{}
	}
	return &transportGuard{m: m, notifier: n, log: logger.OrNop(log)}
}

// available reports whether a messenger is bound.
func (g *transportGuard) available() bool {
	return g != nil && g.m != nil
}

func (g *transportGuard) get() (Messenger, error) {
	if g.available() {
		return g.m, nil
	}
	g.once.Do(func() {
		g.log.Warnw("mqtt_unavailable")
		g.notifier.Send(models.NoTransportMessage{NoTransport: true})
	})
	return nil, ErrTransportUnavailable
}

func (g *transportGuard) publish(topic, payload string) error {
	m, err := g.get()
	if err != nil {
		return err
	}
	if err := m.Publish(topic, payload); err != nil {
		// no retry; the UI is told the transport failed
		g.notifier.Send(models.NoTransportMessage{NoTransport: true})
		return err
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Send(any) {}
