package printer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tasmota_mqtt/internal/models"
)

func TestRampHeater_HeatsAndClamps(t *testing.T) {
	h := models.Temperature{Actual: AmbientC, Target: 40}
	rampHeater(&h, 2)
	if want := AmbientC + RampUpCPerSec*2; h.Actual != want {
		t.Fatalf("got %.2f, want %.2f", h.Actual, want)
	}

	rampHeater(&h, 60)
	if h.Actual != 40 {
		t.Fatalf("expected clamp to target, got %.2f", h.Actual)
	}
}

func TestRampHeater_CoolsToAmbientWhenOff(t *testing.T) {
	h := models.Temperature{Actual: 100, Target: 0}
	rampHeater(&h, 2)
	if want := 100 - RampDownCPerSec*2; h.Actual != want {
		t.Fatalf("got %.2f, want %.2f", h.Actual, want)
	}

	rampHeater(&h, 1000)
	if h.Actual != AmbientC {
		t.Fatalf("expected clamp to ambient, got %.2f", h.Actual)
	}
}

func TestSimulator_ConnectPrintAndFinish(t *testing.T) {
	sim := NewSimulator(nil)
	sim.SetJobDuration(3 * time.Second)

	var (
		mu     sync.Mutex
		events []string
	)
	sim.SetEventSink(func(ev string, _ map[string]any) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	if !sim.IsClosedOrError() {
		t.Fatalf("new simulator should be closed")
	}
	if err := sim.SelectFileAndPrint("cube.gcode"); !errors.Is(err, ErrNotOperational) {
		t.Fatalf("expected ErrNotOperational, got %v", err)
	}
	if err := sim.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sim.SelectFileAndPrint("cube.gcode"); err != nil {
		t.Fatalf("SelectFileAndPrint: %v", err)
	}
	if !sim.IsPrinting() {
		t.Fatalf("expected printing")
	}
	if got := sim.Temperatures()[Tool0].Target; got != PrintToolC {
		t.Fatalf("tool target = %.1f, want %.1f", got, PrintToolC)
	}

	start := time.Now()
	sim.step(start)
	sim.step(start.Add(2 * time.Second))
	if !sim.IsPrinting() {
		t.Fatalf("job finished too early")
	}
	sim.step(start.Add(4 * time.Second))
	if sim.IsPrinting() {
		t.Fatalf("job should be done")
	}
	if got := sim.Temperatures()[Tool0].Target; got != 0 {
		t.Fatalf("heaters should be off after the job, tool target = %.1f", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventConnected, EventPrintStarted, EventPrintDone}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestSimulator_PauseResume(t *testing.T) {
	sim := NewSimulator(nil)
	_ = sim.Connect()
	_ = sim.SelectFileAndPrint("a.gcode")

	sim.Pause()
	if !sim.IsPaused() || sim.IsPrinting() {
		t.Fatalf("expected paused")
	}
	sim.Resume()
	if !sim.IsPrinting() {
		t.Fatalf("expected printing after resume")
	}
}

func TestSimulator_SetTemperature(t *testing.T) {
	sim := NewSimulator(nil)
	if err := sim.SetTemperature("chamber", 40); !errors.Is(err, ErrUnknownHeater) {
		t.Fatalf("expected ErrUnknownHeater, got %v", err)
	}
	if err := sim.SetTemperature(Bed, -5); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	if got := sim.Temperatures()[Bed].Target; got != 0 {
		t.Fatalf("negative target should clamp to 0, got %.1f", got)
	}
}

func TestSimulator_DisconnectDropsJob(t *testing.T) {
	sim := NewSimulator(nil)
	_ = sim.Connect()
	_ = sim.SelectFileAndPrint("a.gcode")
	_ = sim.Disconnect()

	snap := sim.Snapshot()
	if snap.State != models.PrinterClosed || snap.File != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	for name, temp := range snap.Temperatures {
		if temp.Target != 0 {
			t.Fatalf("%s target not cleared", name)
		}
	}
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	sim := NewSimulator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
