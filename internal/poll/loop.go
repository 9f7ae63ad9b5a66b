// Package poll runs fixed-interval background checks inside the Bubble Tea
// update loop. A loop counts down once per second, fires its tick handler when
// the countdown is full, and stops as soon as its activity predicate turns false.
package poll

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickFunc schedules fn after d. tea.Tick is the default; tests inject a
// synchronous variant.
type TickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// TickMsg is delivered once per second to a running loop. Gen ties the message
// to one start of the loop so ticks from a stopped run are dropped.
type TickMsg struct {
	Loop string
	Gen  int
}

// Loop is one polling loop.
type Loop struct {
	name        string
	interval    int
	onTick      func() tea.Cmd
	activeWhile func() bool
	tick        TickFunc

	running   bool
	gen       int
	remaining int
}

// Option customizes a loop.
type Option func(*Loop)

// WithTickFunc replaces tea.Tick.
func WithTickFunc(fn TickFunc) Option {
	return func(l *Loop) {
		if fn != nil {
			l.tick = fn
		}
	}
}

// NewLoop builds a stopped loop. interval is rounded down to whole seconds and
// never below one. A nil activeWhile keeps the loop running until Stop.
func NewLoop(name string, interval time.Duration, onTick func() tea.Cmd, activeWhile func() bool, opts ...Option) *Loop {
	seconds := int(interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	l := &Loop{
		name:        name,
		interval:    seconds,
		onTick:      onTick,
		activeWhile: activeWhile,
		tick:        tea.Tick,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name identifies the loop in TickMsg.
func (l *Loop) Name() string {
	return l.name
}

// Interval returns the firing period.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval) * time.Second
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	return l.running
}

// Remaining returns the seconds left before the next firing, for display.
func (l *Loop) Remaining() int {
	if !l.running {
		return 0
	}
	return l.remaining
}

// Active evaluates the activity predicate.
func (l *Loop) Active() bool {
	return l.activeWhile == nil || l.activeWhile()
}

// Start fires the handler immediately and schedules the countdown. Starting a
// running loop is a no-op.
func (l *Loop) Start() tea.Cmd {
	if l.running {
		return nil
	}
	l.running = true
	l.gen++
	l.remaining = l.interval
	return l.step()
}

// Stop halts the loop. Ticks already in flight are ignored.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	l.running = false
	l.gen++
}

// Handle advances the countdown for a tick addressed to this loop.
func (l *Loop) Handle(msg TickMsg) tea.Cmd {
	if !l.running || msg.Loop != l.name || msg.Gen != l.gen {
		return nil
	}
	if !l.Active() {
		l.Stop()
		return nil
	}
	return l.step()
}

// Sync starts or stops the loop to match its activity predicate.
func (l *Loop) Sync() tea.Cmd {
	active := l.Active()
	switch {
	case active && !l.running:
		return l.Start()
	case !active && l.running:
		l.Stop()
	}
	return nil
}

func (l *Loop) step() tea.Cmd {
	var fired tea.Cmd
	if l.remaining == l.interval && l.onTick != nil {
		fired = l.onTick()
	}
	l.remaining--
	if l.remaining <= 0 {
		l.remaining = l.interval
	}
	return batch(fired, l.schedule())
}

func (l *Loop) schedule() tea.Cmd {
	msg := TickMsg{Loop: l.name, Gen: l.gen}
	return l.tick(time.Second, func(time.Time) tea.Msg {
		return msg
	})
}

func batch(cmds ...tea.Cmd) tea.Cmd {
	valid := make([]tea.Cmd, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd != nil {
			valid = append(valid, cmd)
		}
	}
	switch len(valid) {
	case 0:
		return nil
	case 1:
		return valid[0]
	default:
		return tea.Batch(valid...)
	}
}
