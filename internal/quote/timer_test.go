package quote

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebounceTimerStartReplacesPendingFire(t *testing.T) {
	var fired atomic.Int32
	var timer DebounceTimer

	for i := 0; i < 5; i++ {
		timer.Start(30*time.Millisecond, func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestDebounceTimerStopCancelsFire(t *testing.T) {
	var fired atomic.Int32
	var timer DebounceTimer

	timer.Start(20*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestDebounceTimerRestartsAfterStop(t *testing.T) {
	var fired atomic.Int32
	var timer DebounceTimer

	timer.Stop() // no-op on a timer that never started
	timer.Start(10*time.Millisecond, func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}
