package focus

// Timer is the local count-up stopwatch shown next to a focus session. It is
// driven purely by local ticks and never by the service clock.
type Timer struct {
	elapsed int
	running bool
	final   *int
}

// TimerState is a read-only copy of a Timer.
type TimerState struct {
	Elapsed int  `json:"elapsed_seconds"`
	Running bool `json:"running"`
	Final   *int `json:"final_seconds,omitempty"`
}

// Display returns the value a UI should render: the captured final value
// when present, otherwise the live counter.
func (s TimerState) Display() int {
	if s.Final != nil {
		return *s.Final
	}
	return s.Elapsed
}

func (t *Timer) State() TimerState {
	s := TimerState{Elapsed: t.elapsed, Running: t.running}
	if t.final != nil {
		v := *t.final
		s.Final = &v
	}
	return s
}

func (t *Timer) Running() bool { return t.running }

// Tick advances elapsed by one second while running.
func (t *Timer) Tick() {
	if !t.running {
		return
	}
	t.elapsed++
}

func (t *Timer) start() {
	t.final = nil
	t.running = true
}

// stop freezes the counter and captures the final value. It reports whether
// the timer was running.
func (t *Timer) stop() bool {
	if !t.running {
		return false
	}
	t.running = false
	v := t.elapsed
	t.final = &v
	return true
}

// dirty reports whether a stopped timer still shows a previous run.
func (t *Timer) dirty() bool {
	return !t.running && (t.final != nil || t.elapsed != 0)
}

// Clear resets elapsed and final. It has no effect while running.
func (t *Timer) Clear() bool {
	if t.running {
		return false
	}
	t.elapsed = 0
	t.final = nil
	return true
}
