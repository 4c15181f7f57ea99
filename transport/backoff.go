package transport

import "time"

// retrySchedule spaces reconnect attempts. Delays double from min up to max
// and start again at min after a successful connect. With max <= min the
// delay is fixed.
type retrySchedule struct {
	min, max time.Duration
	failures int
}

func newRetrySchedule(min, max time.Duration) *retrySchedule {
	if min <= 0 {
		min = DefaultReconnectDelay
	}
	if max < min {
		max = min
	}
	return &retrySchedule{min: min, max: max}
}

// Failed records a failed attempt and returns the attempt number and how
// long to wait before the next one.
func (r *retrySchedule) Failed() (int, time.Duration) {
	delay := r.min
	for i := 0; i < r.failures && delay < r.max; i++ {
		delay *= 2
	}
	if delay > r.max {
		delay = r.max
	}
	r.failures++
	return r.failures, delay
}

// Connected restarts the schedule.
func (r *retrySchedule) Connected() {
	r.failures = 0
}
