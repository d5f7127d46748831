// Package alarm implements the debounced, edge-triggered alarm used for each
// detection channel.
//
// A [Machine] starts Idle. The first anomaly moves it to Active and reports
// the edge; further anomalies while Active are absorbed. Once Active, the
// owner calls [Machine.Tick] on a fixed cadence. Each tick toggles the blink
// indicator and advances a counter; when the counter exceeds the cap the
// machine returns to Idle and reports that edge too. With the default cap of
// 5 an episode lasts six ticks, about three seconds at a 500 ms cadence, and
// the next anomaly after that starts a new episode.
//
// A Machine is not safe for concurrent use; the scheduler owns it.
package alarm

import "fmt"

// DefaultCap is the number of cadence ticks an episode survives; it ends on
// tick DefaultCap+1.
const DefaultCap = 5

// State is the alarm state of one channel.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithCap sets the tick cap. Values below 1 are ignored.
func WithCap(n int) Option {
	return func(m *Machine) {
		if n >= 1 {
			m.cap = n
		}
	}
}

// WithName labels the machine for logs and metrics.
func WithName(name string) Option {
	return func(m *Machine) { m.name = name }
}

// Machine is the alarm state machine of one channel.
type Machine struct {
	name    string
	cap     int
	state   State
	counter int
	blink   bool
}

// New returns an Idle machine.
func New(opts ...Option) *Machine {
	m := &Machine{cap: DefaultCap}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Name returns the label given with [WithName].
func (m *Machine) Name() string { return m.name }

// Cap returns the tick cap.
func (m *Machine) Cap() int { return m.cap }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Active is shorthand for State() == Active.
func (m *Machine) Active() bool { return m.state == Active }

// Blink returns the indicator phase. It toggles on every tick while Active.
func (m *Machine) Blink() bool { return m.blink }

// Counter returns the number of ticks since activation.
func (m *Machine) Counter() int { return m.counter }

// Observe feeds one detection result. It returns true only on the Idle to
// Active edge.
func (m *Machine) Observe(anomaly bool) bool {
	if !anomaly || m.state == Active {
		return false
	}
	m.state = Active
	m.counter = 0
	return true
}

// Tick advances the cadence counter. It is a no-op while Idle. It returns
// true only on the Active to Idle edge.
func (m *Machine) Tick() bool {
	if m.state != Active {
		return false
	}
	m.blink = !m.blink
	m.counter++
	if m.counter > m.cap {
		m.counter = 0
		m.state = Idle
		return true
	}
	return false
}

// Reset forces the machine to Idle without reporting an edge.
func (m *Machine) Reset() {
	m.state = Idle
	m.counter = 0
	m.blink = false
}
