package service

import (
	"context"
	"testing"

	"tasmota_mqtt/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_ClientOpenedSendsIdleStatus(t *testing.T) {
	s := settingsWith()
	s.PowerOffWhenIdle = true
	env := newTestEnv(t, s)

	require.NoError(t, env.core.Events.Handle(context.Background(), EventClientOpened, nil))

	msg, ok := env.notifier.lastIdle()
	require.True(t, ok)
	assert.True(t, msg.PowerOffWhenIdle)
	assert.Nil(t, msg.TimeoutValue)
}

func TestEvents_ErrorPowersOffMarkedRelays(t *testing.T) {
	marked := relayIn("heater", models.StateOn)
	marked.EventOnError = true
	env := newTestEnv(t, settingsWith(marked, relayIn("lamp", models.StateOn)))

	require.NoError(t, env.core.Events.Handle(context.Background(), EventError, map[string]any{"error": "thermal runaway"}))
	env.core.Controller.Wait()

	assert.Equal(t, 1, env.msg.count("heater/cmnd/POWER", "OFF"))
	assert.Zero(t, env.msg.count("lamp/cmnd/POWER", "OFF"))
}

func TestEvents_MovieEventsTrackTimelapse(t *testing.T) {
	env := newTestEnv(t, settingsWith())
	ctx := context.Background()

	require.NoError(t, env.core.Events.Handle(ctx, EventMovieRendering, nil))
	assert.True(t, env.core.Idle.Snapshot().TimelapseActive)

	require.NoError(t, env.core.Events.Handle(ctx, EventMovieFailed, nil))
	assert.False(t, env.core.Idle.Snapshot().TimelapseActive)
}

func TestEvents_StartupTurnsOnAndSubscribes(t *testing.T) {
	boot := relayIn("printer", models.StateOff)
	boot.EventOnStartup = true
	boot.AutomaticShutdownEnabled = true
	other := relayIn("lamp", models.StateOff)
	s := idleSettings(1000, 5, boot, other)
	env := newTestEnv(t, s, withEcho())

	require.NoError(t, env.core.Events.Handle(context.Background(), EventStartup, nil))

	assert.Equal(t, 1, env.msg.count("printer/cmnd/POWER", "ON"))
	assert.Zero(t, env.msg.count("lamp/cmnd/POWER", "ON"))
	assert.True(t, env.msg.subscribed("printer/stat/POWER"))
	assert.True(t, env.msg.subscribed("lamp/stat/POWER"))
	assert.Equal(t, IdleArmed, env.core.Idle.State())
}

func TestEvents_ShutdownStopsEngine(t *testing.T) {
	env := newTestEnv(t, idleSettings(1000, 5, participating("printer")))
	env.core.Idle.Start()

	require.NoError(t, env.core.Events.Handle(context.Background(), EventShutdown, nil))
	assert.Equal(t, IdleDisabled, env.core.Idle.State())
	assert.False(t, env.core.Idle.deadline.Active())
}

func TestEvents_UploadQueuesAutostart(t *testing.T) {
	r := relayIn("printer", models.StateOff)
	r.EventOnUpload = true
	r.Connect = true
	env := newTestEnv(t, settingsWith(r))
	env.printer.closed = true
	ctx := context.Background()

	require.NoError(t, env.core.Events.Handle(ctx, EventUpload, map[string]any{"path": "benchy.gcode"}))
	assert.Equal(t, "benchy.gcode", env.core.Events.Autostart())
	assert.Equal(t, 1, env.msg.count("printer/cmnd/POWER", "ON"))
	assert.Equal(t, 1, env.printer.connects)

	require.NoError(t, env.core.Events.Handle(ctx, EventConnected, nil))
	assert.Equal(t, []string{"benchy.gcode"}, env.printer.printed)
	assert.Empty(t, env.core.Events.Autostart())

	// the queue is consumed once
	require.NoError(t, env.core.Events.Handle(ctx, EventConnected, nil))
	assert.Len(t, env.printer.printed, 1)
}

func TestEvents_UploadIgnoredWhenPrinterConnected(t *testing.T) {
	r := relayIn("printer", models.StateOn)
	r.EventOnUpload = true
	env := newTestEnv(t, settingsWith(r))

	require.NoError(t, env.core.Events.Handle(context.Background(), EventUpload, map[string]any{"path": "a.gcode"}))
	assert.Empty(t, env.core.Events.Autostart())
	assert.Zero(t, env.msg.total())
}

func TestEvents_UploadWithoutPath(t *testing.T) {
	r := relayIn("printer", models.StateOff)
	r.EventOnUpload = true
	env := newTestEnv(t, settingsWith(r))
	env.printer.closed = true

	err := env.core.Events.Handle(context.Background(), EventUpload, map[string]any{"target": "local"})
	assert.ErrorIs(t, err, errUploadWithoutPath)
	assert.Zero(t, env.msg.total())
}

func TestUploadPath(t *testing.T) {
	assert.Equal(t, "a.gcode", uploadPath(map[string]any{"path": " a.gcode "}))
	assert.Equal(t, "b.gcode", uploadPath(map[string]any{"path": "", "name": "b.gcode"}))
	assert.Equal(t, "", uploadPath(map[string]any{"path": 42}))
	assert.Equal(t, "", uploadPath(nil))
}

func TestEvents_UnknownEventIgnored(t *testing.T) {
	env := newTestEnv(t, settingsWith(relayIn("plug1", models.StateOn)))
	assert.NoError(t, env.core.Events.Handle(context.Background(), "SlicingDone", nil))
	assert.Zero(t, env.msg.total())
}
