package service

import (
	"context"
	"errors"
	"sync"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
	"tasmota_mqtt/internal/repository"
	"tasmota_mqtt/internal/topic"
)

// Subscriptions owns the status topic subscriptions, one per relay, and turns status
// messages into registry updates.
type Subscriptions struct {
	reg      *registry.Registry
	tg       *transportGuard
	notifier Notifier
	events   repository.EventRepo
	log      *logger.Logger
	idle     idleRearmer

	mu     sync.Mutex
	topics map[models.RelayKey]string
}

func NewSubscriptions(reg *registry.Registry, tg *transportGuard, n Notifier, events repository.EventRepo, log *logger.Logger) *Subscriptions {
	if n == nil {
		n = nopNotifier{}
	}
	return &Subscriptions{
		reg:      reg,
		tg:       tg,
		notifier: n,
		events:   events,
		log:      logger.OrNop(log).Named("subscriptions"),
		topics:   make(map[models.RelayKey]string),
	}
}

// AttachIdle lets a relay reported ON rearm the idle engine.
func (s *Subscriptions) AttachIdle(idle idleRearmer) {
	s.idle = idle
}

// Start subscribes every configured relay and asks each for its state.
func (s *Subscriptions) Start() {
	s.Resubscribe()
}

// Resubscribe replays the subscription of every relay. It runs at startup and from
// the transport's on-connect hook. Topics of relays that no longer exist, or whose
// topic changed, are dropped.
func (s *Subscriptions) Resubscribe() {
	if _, err := s.tg.get(); err != nil {
		return
	}
	relays := s.reg.Relays()

	wanted := make(map[models.RelayKey]bool, len(relays))
	for _, r := range relays {
		wanted[r.Key()] = true
	}
	s.mu.Lock()
	var stale []models.RelayKey
	for key := range s.topics {
		if !wanted[key] {
			stale = append(stale, key)
		}
	}
	s.mu.Unlock()
	for _, key := range stale {
		s.Unsubscribe(key)
	}

	for _, r := range relays {
		if err := s.Subscribe(r); err != nil {
			continue
		}
		s.query(r)
	}
}

// Subscribe subscribes the status topic of r, replacing an older topic for the same key.
func (s *Subscriptions) Subscribe(r models.Relay) error {
	m, err := s.tg.get()
	if err != nil {
		return err
	}
	key := r.Key()
	t := topic.Full(s.reg.Settings().FullTopicPattern, r, topic.Status)

	s.mu.Lock()
	old, had := s.topics[key]
	s.topics[key] = t
	s.mu.Unlock()

	if had && old != t {
		if err := m.Unsubscribe(old); err != nil {
			s.log.Warnw("unsubscribe_failed", "topic", old, "err", err)
		}
	}
	if err := m.Subscribe(t, key, s.handle); err != nil {
		s.log.Warnw("subscribe_failed", "relay", key.String(), "topic", t, "err", err)
		return err
	}
	s.log.Debugw("subscribed", "relay", key.String(), "topic", t)
	return nil
}

// Unsubscribe drops the status subscription of key. Unknown keys are ignored.
func (s *Subscriptions) Unsubscribe(key models.RelayKey) {
	s.mu.Lock()
	t, ok := s.topics[key]
	delete(s.topics, key)
	s.mu.Unlock()
	if !ok {
		return
	}

	m, err := s.tg.get()
	if err != nil {
		return
	}
	if err := m.Unsubscribe(t); err != nil {
		s.log.Warnw("unsubscribe_failed", "relay", key.String(), "topic", t, "err", err)
	}
}

// Topics returns the subscribed status topic per relay.
func (s *Subscriptions) Topics() map[models.RelayKey]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.RelayKey]string, len(s.topics))
	for k, v := range s.topics {
		out[k] = v
	}
	return out
}

func (s *Subscriptions) handle(key models.RelayKey, payload string) {
	s.HandleStatus(context.Background(), key, payload)
}

// HandleStatus records a status payload for key. Repeated payloads are ignored, so a
// duplicate delivery produces no notification.
func (s *Subscriptions) HandleStatus(ctx context.Context, key models.RelayKey, payload string) {
	state := models.ParseState(payload)
	if state == models.StateUnknown {
		s.log.Debugw("status_ignored", "relay", key.String(), "payload", payload)
		return
	}

	relay, changed, err := s.reg.UpdateState(ctx, key, state)
	if err != nil {
		// the state is kept in memory; only the write failed
		s.log.Errorw("status_persist_failed", "relay", key.String(), "err", err)
	}
	if !changed {
		return
	}
	s.log.Infow("relay_state_changed", "relay", key.String(), "state", state)

	s.notifier.Send(models.RelayStateMessage{
		Topic:        relay.Topic,
		RelayN:       relay.RelayN,
		CurrentState: relay.CurrentState,
	})
	if s.events != nil {
		ev := models.RelayEvent{
			Type:        models.EventStateChange,
			Topic:       relay.Topic,
			RelayN:      relay.RelayN,
			Description: "Relay reported " + string(state),
		}
		if err := s.events.Append(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warnw("event_append_failed", "type", ev.Type, "err", err)
		}
	}
	if state == models.StateOn && relay.AutomaticShutdownEnabled && s.idle != nil {
		s.idle.Rearm()
	}
}

func (s *Subscriptions) query(r models.Relay) {
	t := topic.Full(s.reg.Settings().FullTopicPattern, r, topic.Command)
	if err := s.tg.publish(t, payloadQuery); err != nil {
		s.log.Debugw("status_query_failed", "relay", r.Key().String(), "err", err)
	}
}
