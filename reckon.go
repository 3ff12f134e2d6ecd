package replica

// DefaultReckonInterval is the dead reckoning period used when the
// configuration leaves it unset.
const DefaultReckonInterval = 1.0

// reckonTimer is the dead reckoning countdown. It fires, resets to its
// interval and the engine resends the full state of every entity it is
// responsible for, over the reliable channel.
type reckonTimer struct {
	interval float64
	left     float64
}

func newReckonTimer(interval float64) reckonTimer {
	if interval <= 0 {
		interval = DefaultReckonInterval
	}

	return reckonTimer{interval: interval, left: interval}
}

// advance counts dt off the timer and reports whether it fired.
func (t *reckonTimer) advance(dt float64) bool {
	t.left -= dt
	if t.left > 0 {
		return false
	}

	t.left = t.interval
	return true
}
