package service

import (
	"context"
	"strings"

	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/registry"
)

const (
	gcodePowerOn  = "M80"
	gcodePowerOff = "M81"
)

// relayDirective is a parsed "M80|M81 <topic> [<relayN>]" line.
type relayDirective struct {
	on  bool
	key models.RelayKey
}

// parseRelayDirective recognises relay directives. Anything else, including a bare
// M80/M81 meant for the printer's own PSU, reports false.
func parseRelayDirective(line string) (relayDirective, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return relayDirective{}, false
	}
	var d relayDirective
	switch strings.ToUpper(fields[0]) {
	case gcodePowerOn:
		d.on = true
	case gcodePowerOff:
	default:
		return relayDirective{}, false
	}
	d.key.Topic = fields[1]
	if len(fields) == 3 {
		d.key.RelayN = fields[2]
	}
	return d, true
}

// GcodeInterceptor watches the printer's outgoing command stream.
type GcodeInterceptor struct {
	reg  *registry.Registry
	ctrl *Controller
	idle *IdleEngine
	log  *logger.Logger
}

func NewGcodeInterceptor(reg *registry.Registry, ctrl *Controller, idle *IdleEngine, log *logger.Logger) *GcodeInterceptor {
	return &GcodeInterceptor{
		reg:  reg,
		ctrl: ctrl,
		idle: idle,
		log:  logger.OrNop(log).Named("gcode"),
	}
}

// Intercept handles one G-code line and reports whether it must still be sent to the
// printer. Relay directives for a relay with G-code control are consumed.
func (g *GcodeInterceptor) Intercept(line string) (forward bool) {
	if d, ok := parseRelayDirective(line); ok {
		if r, found := g.reg.FindFold(d.key); found && r.Gcode {
			g.schedule(d, r)
			return false
		}
	}

	if g.idle != nil && !g.idle.IgnoresCommand(commandWord(line)) {
		g.idle.Activity()
	}
	return true
}

func (g *GcodeInterceptor) schedule(d relayDirective, r models.Relay) {
	if d.on {
		g.log.Infow("gcode_turn_on", "relay", r.Key().String(), "delay_s", r.GcodeOnDelay)
		g.ctrl.after(g.ctrl.seconds(r.GcodeOnDelay), func() {
			_ = g.ctrl.TurnOn(context.Background(), r)
		})
		return
	}
	g.log.Infow("gcode_turn_off", "relay", r.Key().String(), "delay_s", r.GcodeOffDelay)
	g.ctrl.after(g.ctrl.seconds(r.GcodeOffDelay), func() {
		g.ctrl.TurnOffAsync(r, true)
	})
}

// commandWord returns the G-code word of a line ("G1 X10" -> "G1"), skipping a line
// number and stripping a trailing comment.
func commandWord(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > 1 && (fields[0][0] == 'N' || fields[0][0] == 'n') && isDigits(fields[0][1:]) {
		return strings.ToUpper(fields[1])
	}
	return strings.ToUpper(fields[0])
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
