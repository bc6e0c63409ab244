package relock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runInline executes posted closures immediately, standing in for the
// actor's command channel.
func runInline(f func()) { f() }

func TestScheduleFiresOnceAndRemovesEntry(t *testing.T) {
	fired := make(chan string, 1)
	s := New(runInline)

	s.Schedule("vault", 10*time.Millisecond, func(c string) { fired <- c })
	require.True(t, s.HasTimer("vault"))

	select {
	case c := <-fired:
		assert.Equal(t, "vault", c)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.Eventually(t, func() bool { return !s.HasTimer("vault") }, time.Second, time.Millisecond)
}

func TestScheduleIsNoOpWhileTimerPending(t *testing.T) {
	var fires int
	done := make(chan struct{}, 2)
	s := New(runInline)

	s.Schedule("vault", 20*time.Millisecond, func(string) { fires++; done <- struct{}{} })
	s.Schedule("vault", time.Millisecond, func(string) { fires++; done <- struct{}{} })

	<-done
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, fires, "the second Schedule must not replace or double the pending timer")
}

func TestCancelPreventsFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(runInline)

	s.Schedule("vault", 10*time.Millisecond, func(string) { fired <- struct{}{} })
	s.Cancel("vault")
	assert.False(t, s.HasTimer("vault"))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

// A stale fire — one whose entry was cancelled and re-scheduled before
// the posted closure ran — must be a no-op for the old timer.
func TestStaleFireIsNoOp(t *testing.T) {
	posted := make(chan func(), 1)
	capture := func(f func()) { posted <- f }

	s := New(capture)
	s.Schedule("vault", time.Millisecond, func(string) { t.Fatal("stale fire honoured") })

	// Wait for the timer goroutine to post its fire closure, then
	// replace the entry before running it.
	var staleFire func()
	select {
	case staleFire = <-posted:
	case <-time.After(time.Second):
		t.Fatal("fire closure never posted")
	}
	s.Cancel("vault")
	refired := make(chan struct{}, 1)
	s.Schedule("vault", time.Hour, func(string) { refired <- struct{}{} })

	staleFire() // entry token no longer matches

	require.True(t, s.HasTimer("vault"), "the replacement timer must survive a stale fire")
	select {
	case <-refired:
		t.Fatal("replacement timer fired early")
	default:
	}
}
