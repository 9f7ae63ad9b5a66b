// internal/tui/app.go
//
// This is the operator console for espace-membre. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: the wizard controller plus the per-step form state
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string
//
// Every portal call runs as a tea.Cmd and comes back as a message, so the
// update loop is the only place where state changes.

package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/espace-membre/internal/config"
	"github.com/kingrea/espace-membre/internal/logbook"
	"github.com/kingrea/espace-membre/internal/logging"
	"github.com/kingrea/espace-membre/internal/poll"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/wizard"
)

const (
	loopConnectivity = "connectivity"
	loopAccount      = "account"
	loopMerge        = "merge"

	logPanelLines = 8
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook renders the operator journal under the wizard.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithLogger routes diagnostics to the file logger.
func WithLogger(l *logging.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) AppOption {
	return func(a *App) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithPolling overrides the polling periods.
func WithPolling(p config.PollingConfig) AppOption {
	return func(a *App) {
		a.polling = p
	}
}

// WithTickFunc replaces tea.Tick in every polling loop.
func WithTickFunc(fn poll.TickFunc) AppOption {
	return func(a *App) {
		a.tick = fn
	}
}

// WithRequestTimeout bounds every portal call.
func WithRequestTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// App is the bubbletea model of the console.
type App struct {
	ctrl    *wizard.Controller
	history *wizard.History
	portal  portal.Portal
	logger  *logging.Logger
	logbook *logbook.Logbook
	clock   func() time.Time
	polling config.PollingConfig
	tick    poll.TickFunc
	timeout time.Duration
	loops   *poll.Group
	views   map[wizard.Step]stepView

	width     int
	height    int
	statusMsg string
	lastLog   string

	// current is the step whose view state was last initialised.
	current wizard.Step
	entered bool

	picker        list.Model
	membersLoaded bool
	searching     string

	notice     string
	formErr    string
	fieldErrs  []string
	submitting bool

	endDate    textinput.Model
	recovery   textinput.Model
	loginEmail textinput.Model

	tracker *wizard.MergeTracker
	gate    wizard.Gate
}

type memberItem struct {
	id    string
	label string
}

func (i memberItem) Title() string       { return i.label }
func (i memberItem) Description() string { return i.id }
func (i memberItem) FilterValue() string { return i.label + " " + i.id }

// NewApp wires the console to a controller and a portal.
func NewApp(ctrl *wizard.Controller, p portal.Portal, opts ...AppOption) (*App, error) {
	if ctrl == nil {
		return nil, errors.New("tui: controller is required")
	}
	if p == nil {
		return nil, errors.New("tui: portal is required")
	}
	a := &App{
		ctrl:    ctrl,
		portal:  p,
		logger:  logging.NewNop(),
		clock:   time.Now,
		timeout: portal.DefaultTimeout,
		polling: config.PollingConfig{
			Connectivity: 30 * time.Second,
			Account:      60 * time.Second,
			Merge:        60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if history, ok := ctrl.Navigator().(*wizard.History); ok {
		a.history = history
	}

	picker := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	picker.Title = "Quel membre veux-tu aider ?"
	picker.SetShowHelp(false)
	// The app owns quitting; esc only clears the filter here.
	picker.KeyMap.Quit.SetEnabled(false)
	picker.KeyMap.ForceQuit.SetEnabled(false)
	picker.FilterInput.Cursor.SetMode(cursor.CursorStatic)
	a.picker = picker
	a.endDate = newInput("jj/mm/aaaa", 10)
	a.recovery = newInput("email de récupération", 120)
	a.loginEmail = newInput("ton email", 120)

	var loopOpts []poll.Option
	if a.tick != nil {
		loopOpts = append(loopOpts, poll.WithTickFunc(a.tick))
	}
	a.loops = poll.NewGroup(
		poll.NewLoop(loopConnectivity, a.polling.Connectivity, a.checkSession, a.connectivityActive, loopOpts...),
		poll.NewLoop(loopAccount, a.polling.Account, a.pollAccount, a.accountActive, loopOpts...),
		poll.NewLoop(loopMerge, a.polling.Merge, a.pollMerge, a.mergeActive, loopOpts...),
	)
	a.views = stepViews()
	return a, nil
}

func newInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Cursor.SetMode(cursor.CursorStatic)
	return in
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

func (a *App) logProgress(status string) {
	status = strings.TrimSpace(status)
	if status == "" || status == a.lastLog {
		return
	}
	a.lastLog = status
	a.logInfo("%s", status)
}

// Init restores a previous run, if any, and enters the current step.
func (a *App) Init() tea.Cmd {
	restored, err := a.ctrl.Restore()
	if err != nil {
		a.logger.Errorw("restore wizard state", "error", err)
		a.statusMsg = "Impossible de relire la session précédente."
	}
	var refresh tea.Cmd
	if restored {
		a.logInfo("Reprise de la session pour %s (%s)", a.ctrl.MemberID(), a.ctrl.Step().FriendlyName())
		refresh = a.fetchMember(fetchRefresh, a.ctrl.MemberID())
	}
	return batch(a.settle(), refresh)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, ok := a.loops.Handle(msg); ok {
		return a, cmd
	}
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.picker.SetSize(max(20, msg.Width-8), max(5, msg.Height-18))
		return a, nil
	case tea.KeyMsg:
		cmd = a.handleKey(msg)
	case membersLoadedMsg:
		cmd = a.handleMembersLoaded(msg)
	case memberFetchedMsg:
		cmd = a.handleMemberFetched(msg)
	case changeRequestsMsg:
		cmd = a.handleChangeRequests(msg)
	case sessionCheckedMsg:
		cmd = a.handleSessionChecked(msg)
	case endDateSubmittedMsg:
		cmd = a.handleEndDateSubmitted(msg)
	case mailboxCreatedMsg:
		cmd = a.handleMailboxCreated(msg)
	case loginLinkMsg:
		cmd = a.handleLoginLink(msg)
	default:
		cmd = a.forward(msg)
	}
	return a, batch(cmd, a.settle())
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	filtering := a.ctrl.Step() == wizard.StepSelectMember && a.picker.FilterState() == list.Filtering
	switch msg.String() {
	case "ctrl+c":
		a.loops.StopAll()
		return tea.Quit
	case "ctrl+r":
		return a.reset()
	case "alt+left":
		if a.history != nil && a.history.Back() {
			a.logInfo("Historique : retour à %s", a.ctrl.Step().FriendlyName())
		}
		return nil
	case "alt+right":
		if a.history != nil && a.history.Forward() {
			a.logInfo("Historique : avance à %s", a.ctrl.Step().FriendlyName())
		}
		return nil
	case "esc":
		if a.ctrl.Step() != wizard.StepSelectMember {
			return a.retreat()
		}
	case "q":
		if !filtering && !a.view().input {
			a.loops.StopAll()
			return tea.Quit
		}
	}
	if key := a.view().key; key != nil {
		return key(a, msg)
	}
	return nil
}

// forward hands non-key messages (cursor blink, list filtering) to the
// component of the current step.
func (a *App) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.ctrl.Step() {
	case wizard.StepSelectMember:
		a.picker, cmd = a.picker.Update(msg)
	case wizard.StepUpdateEndDate:
		a.endDate, cmd = a.endDate.Update(msg)
	case wizard.StepCreateEmail:
		if a.gate.Open() {
			a.recovery, cmd = a.recovery.Update(msg)
		} else {
			a.loginEmail, cmd = a.loginEmail.Update(msg)
		}
	}
	return cmd
}

func (a *App) view() stepView {
	if v, ok := a.views[a.ctrl.Step()]; ok {
		return v
	}
	return stepView{render: renderUnknown}
}

func (a *App) advance() tea.Cmd {
	from := a.ctrl.Step()
	to, err := a.ctrl.Advance()
	if err != nil {
		a.persistFailed(err)
	}
	if to != from {
		a.logInfo("%s → %s", from.FriendlyName(), to.FriendlyName())
	}
	return nil
}

func (a *App) retreat() tea.Cmd {
	from := a.ctrl.Step()
	to, err := a.ctrl.Retreat()
	if err != nil {
		a.persistFailed(err)
	}
	if to != from {
		a.logInfo("Retour à %s", to.FriendlyName())
	}
	return nil
}

func (a *App) reset() tea.Cmd {
	id := a.ctrl.MemberID()
	if err := a.ctrl.Reset(); err != nil {
		a.logger.Errorw("reset wizard state", "error", err)
		a.logError("Impossible d'effacer la session : %v", err)
		return nil
	}
	a.entered = false
	if id != "" {
		a.logInfo("Session réinitialisée (%s)", id)
	}
	return nil
}

func (a *App) finish() tea.Cmd {
	id := a.ctrl.MemberID()
	if err := a.ctrl.Finish(); err != nil {
		a.logger.Errorw("finish wizard run", "member", id, "error", err)
		a.logError("Impossible de clore la session : %v", err)
		return nil
	}
	a.logInfo("Session terminée pour %s", id)
	a.entered = false
	a.membersLoaded = false
	return nil
}

func (a *App) persistFailed(err error) {
	a.logger.Warnw("persist wizard state", "step", a.ctrl.Step(), "error", err)
	a.statusMsg = "La session n'a pas pu être sauvegardée."
}

// settle enters the current step when it changed and aligns the polling loops.
// Entering a step may advance again (an already provisioned mailbox skips the
// creation form), so the loop runs until the step is stable.
func (a *App) settle() tea.Cmd {
	var cmds []tea.Cmd
	for i := 0; i < len(a.views)+1; i++ {
		step := a.ctrl.Step()
		if a.entered && step == a.current {
			break
		}
		a.current = step
		a.entered = true
		a.clearStepState()
		if enter := a.view().enter; enter != nil {
			cmds = append(cmds, enter(a))
		}
	}
	cmds = append(cmds, a.loops.Sync())
	return batch(cmds...)
}

func (a *App) clearStepState() {
	a.notice = ""
	a.formErr = ""
	a.fieldErrs = nil
	a.submitting = false
	a.searching = ""
	a.tracker = nil
	a.gate = wizard.Gate{}
	a.endDate.Blur()
	a.recovery.Blur()
	a.loginEmail.Blur()
}

func (a *App) connectivityActive() bool {
	return a.ctrl.Step() == wizard.StepCreateEmail && !a.gate.Open()
}

func (a *App) accountActive() bool {
	return a.ctrl.Step() == wizard.StepAwaitAccount
}

func (a *App) mergeActive() bool {
	return a.ctrl.Step() == wizard.StepAwaitEndDateApplied && a.tracker != nil && !a.tracker.Validated()
}

func (a *App) pollAccount() tea.Cmd {
	return a.fetchMember(fetchAccount, a.ctrl.MemberID())
}

func (a *App) pollMerge() tea.Cmd {
	switch {
	case a.tracker == nil:
		return nil
	case a.tracker.NeedsChangeRequests():
		return a.fetchChangeRequests()
	case a.tracker.NeedsMember():
		return a.fetchMember(fetchMerge, a.ctrl.MemberID())
	}
	return nil
}

func (a *App) countdown(name string) int {
	if l, ok := a.loops.Get(name); ok {
		return l.Remaining()
	}
	return 0
}

// View renders the console.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ ESPACE MEMBRE")
	content := lipgloss.JoinVertical(lipgloss.Left,
		a.renderProgress(width-4),
		"",
		lipgloss.NewStyle().Width(max(20, width-4)).Render(a.view().render(a)),
	)
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-2)).
		Render(content)
	sections := []string{header, body}
	if panel := a.renderLogPanel(); panel != "" {
		sections = append(sections, panel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.renderFooter())
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderProgress(width int) string {
	step := a.ctrl.Step()
	steps := a.ctrl.Steps()
	if len(steps) == 0 {
		return labelStyleRunning.Render(step.FriendlyName())
	}
	var parts []string
	pos := -1
	for i, s := range steps {
		name := s.FriendlyName()
		switch {
		case s == step:
			pos = i
			parts = append(parts, labelStyleRunning.Render(name))
		case pos < 0:
			parts = append(parts, labelStyleReady.Render(name))
		default:
			parts = append(parts, labelStyleDefault.Render(name))
		}
	}
	line := fmt.Sprintf("Étape %d/%d", pos+1, len(steps))
	if pos < 0 {
		line = "Étape hors parcours"
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(line + " · " + strings.Join(parts, " → "))
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "journal"
	}
	title := fmt.Sprintf("JOURNAL · %s", fileName)
	if total > len(lines) {
		title = fmt.Sprintf("%s · %d/%d", title, len(lines), total)
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(title)
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func (a *App) renderFooter() string {
	keys := "entrée: continuer · échap: retour · alt+←/→: historique · ctrl+r: recommencer · ctrl+c: quitter"
	if a.statusMsg == "" {
		return keys
	}
	return a.statusMsg + "\n" + keys
}
