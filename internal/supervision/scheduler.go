package supervision

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

// Scheduler arms delayed callbacks. The production implementation wraps
// time.AfterFunc; tests substitute a manual scheduler to drive retry
// timing deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewTimerScheduler returns the wall-clock scheduler.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}
