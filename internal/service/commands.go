package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
)

// API commands.
const (
	CmdTurnOn                   = "turnOn"
	CmdTurnOff                  = "turnOff"
	CmdToggleRelay              = "toggleRelay"
	CmdCheckRelay               = "checkRelay"
	CmdCheckStatus              = "checkStatus"
	CmdRemoveRelay              = "removeRelay"
	CmdEnableAutomaticShutdown  = "enableAutomaticShutdown"
	CmdDisableAutomaticShutdown = "disableAutomaticShutdown"
	CmdAbortAutomaticShutdown   = "abortAutomaticShutdown"
)

var (
	ErrPermissionDenied = errors.New("insufficient rights")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidRelay     = errors.New("invalid relay")
	ErrInvalidSettings  = errors.New("invalid settings")
)

// CommandService implements the relay command API on top of the core.
type CommandService struct {
	core *Core
	log  *logger.Logger
}

func NewCommandService(core *Core, log *logger.Logger) *CommandService {
	return &CommandService{core: core, log: logger.OrNop(log).Named("commands")}
}

// Execute runs one API command. Every command requires the control permission.
func (s *CommandService) Execute(ctx context.Context, caller Caller, req CommandRequest) (CommandResult, error) {
	if !caller.CanControl {
		return CommandResult{}, ErrPermissionDenied
	}
	res := CommandResult{Command: req.Command}
	s.log.Infow("api_command", "command", req.Command, "relay", req.Key().String(), "user_id", caller.UserID)

	switch req.Command {
	case CmdTurnOn:
		r, err := s.find(req.Key())
		if err != nil {
			return res, err
		}
		res.Relays = []models.Relay{r}
		return res, s.core.Controller.TurnOn(ctx, r)

	case CmdTurnOff:
		r, err := s.find(req.Key())
		if err != nil {
			return res, err
		}
		// the worker cannot report back, so a missing transport is reported here
		if err := s.core.Controller.TransportReady(); err != nil {
			return res, err
		}
		res.Relays = []models.Relay{r}
		s.core.Controller.TurnOffAsync(r, false)
		return res, nil

	case CmdToggleRelay:
		r, err := s.core.Controller.Toggle(ctx, req.Key())
		if err != nil {
			return res, err
		}
		res.Relays = []models.Relay{r}
		return res, nil

	case CmdCheckRelay:
		r, err := s.find(req.Key())
		if err != nil {
			return res, err
		}
		res.Relays = []models.Relay{r}
		return res, s.core.Controller.CheckRelay(r)

	case CmdCheckStatus:
		res.Relays = s.core.Registry.Relays()
		var firstErr error
		for _, r := range res.Relays {
			if err := s.core.Controller.CheckRelay(r); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return res, firstErr

	case CmdRemoveRelay:
		key := req.Key()
		r, ok, err := s.core.Registry.Remove(ctx, key)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrRelayNotFound, key)
		}
		s.core.Subscriptions.Unsubscribe(key)
		res.Relays = []models.Relay{r}
		return res, nil

	case CmdEnableAutomaticShutdown, CmdDisableAutomaticShutdown:
		enable := req.Command == CmdEnableAutomaticShutdown
		if _, err := s.core.Registry.Update(ctx, func(st *models.Settings) { st.PowerOffWhenIdle = enable }); err != nil {
			return res, err
		}
		if enable {
			s.core.Idle.Enable()
		} else {
			s.core.Idle.Disable()
		}
		st := s.core.Idle.Status()
		res.Idle = &st
		return res, nil

	case CmdAbortAutomaticShutdown:
		aborted := s.core.Idle.Abort()
		res.Aborted = &aborted
		st := s.core.Idle.Status()
		res.Idle = &st
		return res, nil

	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

// UpsertRelay adds or edits a relay and moves its status subscription.
func (s *CommandService) UpsertRelay(ctx context.Context, caller Caller, req RelayRequest) (models.Relay, error) {
	if !caller.CanControl {
		return models.Relay{}, ErrPermissionDenied
	}
	r := req.Relay
	r.Topic = strings.TrimSpace(r.Topic)
	r.RelayN = strings.TrimSpace(r.RelayN)
	if r.Topic == "" || strings.ContainsAny(r.Topic, "+#/") {
		return models.Relay{}, fmt.Errorf("%w: topic %q", ErrInvalidRelay, r.Topic)
	}
	if r.GcodeOnDelay < 0 || r.GcodeOffDelay < 0 || r.ConnectOnDelay < 0 || r.DisconnectOffDelay < 0 ||
		r.SysCmdOnDelay < 0 || r.SysCmdOffDelay < 0 {
		return models.Relay{}, fmt.Errorf("%w: negative delay", ErrInvalidRelay)
	}
	if r.Icon == "" {
		r.Icon = models.NewRelay("", "").Icon
	}

	old, existed, err := s.core.Registry.Upsert(ctx, r, req.Previous)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateRelay) {
			return models.Relay{}, fmt.Errorf("%w: %v", ErrInvalidRelay, err)
		}
		return models.Relay{}, err
	}
	if existed && old.Key() != r.Key() {
		s.core.Subscriptions.Unsubscribe(old.Key())
	}
	saved, _ := s.core.Registry.Find(r.Key())
	if err := s.core.Subscriptions.Subscribe(saved); err == nil {
		_ = s.core.Controller.CheckRelay(saved)
	}
	// an ON relay that opts in gets no new status message, so arm here
	optedIn := !existed || !old.AutomaticShutdownEnabled
	if optedIn && saved.AutomaticShutdownEnabled && saved.CurrentState == models.StateOn {
		s.core.Idle.Rearm()
	}
	s.log.Infow("relay_saved", "relay", saved.Key().String(), "created", !existed)
	return saved, nil
}

func (s *CommandService) Settings(ctx context.Context) models.Settings {
	return s.core.Registry.Settings()
}

// UpdateSettings applies p, then resubscribes on a pattern change and switches the
// idle engine on or off to match.
func (s *CommandService) UpdateSettings(ctx context.Context, caller Caller, p SettingsPatch) (models.Settings, error) {
	if !caller.CanControl {
		return models.Settings{}, ErrPermissionDenied
	}
	if err := validatePatch(p); err != nil {
		return models.Settings{}, err
	}
	before := s.core.Registry.Settings()

	next, err := s.core.Registry.Update(ctx, func(st *models.Settings) {
		if p.FullTopicPattern != nil {
			st.FullTopicPattern = *p.FullTopicPattern
		}
		if p.PowerOffWhenIdle != nil {
			st.PowerOffWhenIdle = *p.PowerOffWhenIdle
		}
		if p.IdleTimeout != nil {
			st.IdleTimeout = *p.IdleTimeout
		}
		if p.IdleIgnoreCommands != nil {
			st.IdleIgnoreCommands = *p.IdleIgnoreCommands
		}
		if p.IdleTimeoutWaitTemp != nil {
			st.IdleTimeoutWaitTemp = *p.IdleTimeoutWaitTemp
		}
		if p.AbortTimeout != nil {
			st.AbortTimeout = *p.AbortTimeout
		}
	})
	if err != nil {
		return models.Settings{}, err
	}

	if next.FullTopicPattern != before.FullTopicPattern {
		s.core.Subscriptions.Resubscribe()
	}
	switch {
	case next.PowerOffWhenIdle && (!before.PowerOffWhenIdle || next.IdleTimeout != before.IdleTimeout):
		s.core.Idle.Enable()
	case !next.PowerOffWhenIdle && before.PowerOffWhenIdle:
		s.core.Idle.Disable()
	}
	return next, nil
}

func validatePatch(p SettingsPatch) error {
	if p.FullTopicPattern != nil && strings.TrimSpace(*p.FullTopicPattern) == "" {
		return fmt.Errorf("%w: full_topic_pattern is empty", ErrInvalidSettings)
	}
	if p.IdleTimeout != nil && *p.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idleTimeout must be > 0", ErrInvalidSettings)
	}
	if p.AbortTimeout != nil && *p.AbortTimeout < 0 {
		return fmt.Errorf("%w: abortTimeout must be >= 0", ErrInvalidSettings)
	}
	if p.IdleTimeoutWaitTemp != nil && *p.IdleTimeoutWaitTemp < 0 {
		return fmt.Errorf("%w: idleTimeoutWaitTemp must be >= 0", ErrInvalidSettings)
	}
	return nil
}

func (s *CommandService) find(key models.RelayKey) (models.Relay, error) {
	r, ok := s.core.Registry.Find(key)
	if !ok {
		return models.Relay{}, fmt.Errorf("%w: %s", ErrRelayNotFound, key)
	}
	return r, nil
}
