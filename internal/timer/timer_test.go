package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmFiresOnce(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })

	require.True(t, tm.Arm(20*time.Millisecond))
	assert.True(t, tm.Active())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, tm.Active())
	assert.Zero(t, tm.Remaining())
}

func TestArmKeepsRunningDeadline(t *testing.T) {
	tm := New(func() {})
	require.True(t, tm.Arm(time.Hour))
	assert.False(t, tm.Arm(time.Millisecond), "second Arm must not restart a running timer")
	assert.Equal(t, time.Hour, tm.Interval())
	assert.Greater(t, tm.Remaining(), 59*time.Minute)
	tm.Cancel()
}

func TestResetRestartsFullInterval(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })

	tm.Arm(60 * time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	tm.Reset(60 * time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "reset must push the deadline out")

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestResetStartsStoppedTimer(t *testing.T) {
	done := make(chan struct{})
	tm := New(func() { close(done) })
	tm.Reset(10 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer started by Reset did not fire")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })

	assert.False(t, tm.Cancel(), "cancel on a stopped timer is a no-op")
	tm.Arm(20 * time.Millisecond)
	assert.True(t, tm.Cancel())
	assert.False(t, tm.Cancel())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCallbackMayRearm(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
		tm    *Timer
	)
	tm = New(func() {
		mu.Lock()
		count++
		again := count < 3
		mu.Unlock()
		if again {
			tm.Arm(5 * time.Millisecond)
		}
	})
	tm.Arm(5 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 3
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentResetAndCancel(t *testing.T) {
	tm := New(func() {})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); tm.Reset(time.Millisecond) }()
		go func() { defer wg.Done(); tm.Cancel() }()
	}
	wg.Wait()
	tm.Cancel()
	assert.False(t, tm.Active())
}
