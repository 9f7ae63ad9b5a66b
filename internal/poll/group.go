package poll

import tea "github.com/charmbracelet/bubbletea"

// Group routes tick messages to the loops registered with it.
type Group struct {
	order []string
	loops map[string]*Loop
}

// NewGroup registers loops in the given order.
func NewGroup(loops ...*Loop) *Group {
	g := &Group{loops: make(map[string]*Loop, len(loops))}
	for _, l := range loops {
		g.Add(l)
	}
	return g
}

// Add registers l, replacing any loop with the same name.
func (g *Group) Add(l *Loop) {
	if l == nil {
		return
	}
	if existing, ok := g.loops[l.name]; ok {
		existing.Stop()
	} else {
		g.order = append(g.order, l.name)
	}
	g.loops[l.name] = l
}

// Get returns the loop registered under name.
func (g *Group) Get(name string) (*Loop, bool) {
	l, ok := g.loops[name]
	return l, ok
}

// Handle dispatches msg when it is a TickMsg. The boolean reports whether the
// message belonged to the group.
func (g *Group) Handle(msg tea.Msg) (tea.Cmd, bool) {
	tick, ok := msg.(TickMsg)
	if !ok {
		return nil, false
	}
	l, ok := g.loops[tick.Loop]
	if !ok {
		return nil, true
	}
	return l.Handle(tick), true
}

// Sync aligns every loop with its activity predicate.
func (g *Group) Sync() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(g.order))
	for _, name := range g.order {
		cmds = append(cmds, g.loops[name].Sync())
	}
	return batch(cmds...)
}

// StopAll halts every loop.
func (g *Group) StopAll() {
	for _, name := range g.order {
		g.loops[name].Stop()
	}
}

// Running lists the names of started loops in registration order.
func (g *Group) Running() []string {
	var names []string
	for _, name := range g.order {
		if g.loops[name].running {
			names = append(names, name)
		}
	}
	return names
}
