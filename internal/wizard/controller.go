package wizard

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/espace-membre/internal/member"
)

// Logger receives diagnostics that are never surfaced to the operator.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Controller owns the wizard state and is the only writer of the state slot.
type Controller struct {
	store StateStore
	nav   Navigator
	log   Logger
	clock func() time.Time
	runID func() string
	state State
}

// Option customizes the controller instance.
type Option func(*Controller)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithNavigator replaces the default in-process history.
func WithNavigator(nav Navigator) Option {
	return func(c *Controller) {
		if nav != nil {
			c.nav = nav
		}
	}
}

// WithLogger routes swallowed errors to l.
func WithLogger(l Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRunIDs overrides run identifier generation.
func WithRunIDs(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.runID = fn
		}
	}
}

// New wires a controller to its state store.
func New(store StateStore, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("wizard: state store is required")
	}
	c := &Controller{
		store: store,
		nav:   NewHistory(),
		log:   nopLogger{},
		clock: time.Now,
		runID: func() string { return uuid.NewString() },
		state: initialState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Popped entries set the step directly: they are not checked against the
	// assembled sequence, unlike Retreat.
	c.nav.OnPopped(c.popped)
	return c, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	return c.state.Clone()
}

// Step returns the current step.
func (c *Controller) Step() Step {
	return c.state.Step
}

// Steps returns the assembled sequence of the current run.
func (c *Controller) Steps() []Step {
	return cloneSteps(c.state.Steps)
}

// Navigator returns the navigation adapter in use.
func (c *Controller) Navigator() Navigator {
	return c.nav
}

// Member returns the last snapshot of the selected member.
func (c *Controller) Member() (member.Snapshot, bool) {
	if c.state.Member == nil {
		return member.Snapshot{}, false
	}
	return c.state.Member.Clone(), true
}

// MemberID returns the identifier of the selected member, if any.
func (c *Controller) MemberID() string {
	return c.state.MemberID
}

// PullRequestURL returns the pending change reference.
func (c *Controller) PullRequestURL() string {
	return c.state.PullRequestURL
}

// Start diagnoses the member, assembles the run and shows the member sheet.
func (c *Controller) Start(snap member.Snapshot) error {
	if snap.ID() == "" {
		return fmt.Errorf("wizard: member id is required")
	}
	clone := snap.Clone()
	c.state = State{
		Version:  StateVersion,
		RunID:    c.runID(),
		Step:     StepShowMember,
		Steps:    AssembleSteps(clone),
		MemberID: clone.ID(),
		Member:   &clone,
	}
	err := c.persist()
	c.nav.PushStep(StepShowMember)
	return err
}

// Advance moves to the entry following the current step. The last entry is
// terminal and Advance leaves it in place.
func (c *Controller) Advance() (Step, error) {
	idx := indexOf(c.state.Steps, c.state.Step)
	if idx+1 >= len(c.state.Steps) {
		return c.state.Step, nil
	}
	// A step outside the sequence yields index -1 and restarts from its head.
	next := c.state.Steps[idx+1]
	c.state.Step = next
	err := c.persist()
	c.nav.PushStep(next)
	return next, err
}

// Retreat moves to the previous entry, or to the member picker from the head of
// the sequence. No navigation entry is pushed.
func (c *Controller) Retreat() (Step, error) {
	idx := indexOf(c.state.Steps, c.state.Step)
	prev := StepSelectMember
	if idx > 0 {
		prev = c.state.Steps[idx-1]
	}
	c.state.Step = prev
	if !c.state.Started() {
		return prev, nil
	}
	return prev, c.persist()
}

// Reset clears the persisted run and returns to the member picker.
func (c *Controller) Reset() error {
	c.state = initialState()
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("wizard: reset: %w", err)
	}
	return nil
}

// Finish completes the run. Completion leaves nothing persisted.
func (c *Controller) Finish() error {
	return c.Reset()
}

// SetPullRequestURL records the change request opened by the end-date step.
func (c *Controller) SetPullRequestURL(url string) error {
	c.state.PullRequestURL = url
	return c.persist()
}

// ApplyMember replaces the member snapshot after a re-fetch. Snapshots for
// another member are ignored. The step sequence is never re-derived here.
func (c *Controller) ApplyMember(snap member.Snapshot) bool {
	if !c.state.Started() || snap.ID() != c.state.MemberID {
		return false
	}
	clone := snap.Clone()
	c.state.Member = &clone
	if err := c.persist(); err != nil {
		c.log.Printf("wizard: persist refreshed member %s: %v", snap.ID(), err)
	}
	return true
}

// Restore loads a previously persisted run. It reports whether a run was
// restored; a missing or corrupt record starts a fresh run.
func (c *Controller) Restore() (bool, error) {
	stored, err := c.store.Load()
	if err != nil {
		c.state = initialState()
		switch {
		case errors.Is(err, ErrStateNotFound):
			return false, nil
		case errors.Is(err, ErrStateCorrupt):
			c.log.Printf("wizard: discarding stored state: %v", err)
			if clearErr := c.store.Clear(); clearErr != nil {
				c.log.Printf("wizard: clear corrupt state: %v", clearErr)
			}
			return false, nil
		default:
			return false, fmt.Errorf("wizard: restore: %w", err)
		}
	}
	c.state = stored.Clone()
	c.nav.PushStep(c.state.Step)
	return true, nil
}

func (c *Controller) popped(step Step) {
	c.state.Step = step
	if !c.state.Started() {
		return
	}
	if err := c.persist(); err != nil {
		c.log.Printf("wizard: persist popped step %s: %v", step, err)
	}
}

func (c *Controller) persist() error {
	c.state.UpdatedAt = c.clock()
	if err := c.store.Save(c.state.Clone()); err != nil {
		return fmt.Errorf("wizard: persist: %w", err)
	}
	return nil
}
