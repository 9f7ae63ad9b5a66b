package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/espace-membre/internal/config"
	"github.com/kingrea/espace-membre/internal/logbook"
	"github.com/kingrea/espace-membre/internal/member"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/wizard"
)

var testNow = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// nudge is an unrelated message that lets the app notice a step change.
type nudge struct{}

// queuedTick holds a poll tick until the test lets a second elapse.
type queuedTick struct {
	msg tea.Msg
}

type harness struct {
	t       *testing.T
	app     *App
	ctrl    *wizard.Controller
	history *wizard.History
	portal  *portal.Memory
	store   *wizard.MemoryStore
	logbook *logbook.Logbook
	clock   *testClock
	ticks   []tea.Msg
	quit    bool
}

func newHarness(t *testing.T, store *wizard.MemoryStore, opts portal.MemoryOptions, members ...member.Snapshot) *harness {
	t.Helper()
	clock := &testClock{now: testNow}
	opts.Clock = clock.Now
	p := portal.NewMemory(opts)
	p.Seed(members...)
	if store == nil {
		store = wizard.NewMemoryStore()
	}
	history := wizard.NewHistory()
	ctrl, err := wizard.New(store, wizard.WithClock(clock.Now), wizard.WithNavigator(history))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	lb, err := logbook.New(filepath.Join(t.TempDir(), "journal.log"), logbook.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	h := &harness{t: t, ctrl: ctrl, history: history, portal: p, store: store, logbook: lb, clock: clock}
	app, err := NewApp(ctrl, p,
		WithClock(clock.Now),
		WithLogbook(lb),
		WithPolling(config.PollingConfig{Connectivity: 30 * time.Second, Account: 60 * time.Second, Merge: 60 * time.Second}),
		WithTickFunc(func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
			return func() tea.Msg { return queuedTick{msg: fn(clock.Now().Add(d))} }
		}),
	)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	h.app = app
	h.run(app.Init())
	return h
}

// run executes cmd and every command it leads to, feeding messages back
// through Update like the bubbletea runtime does.
func (h *harness) run(cmd tea.Cmd) {
	h.t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 1000 {
			h.t.Fatalf("command chain did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case queuedTick:
			h.ticks = append(h.ticks, msg.msg)
		case tea.QuitMsg:
			h.quit = true
		default:
			model, follow := h.app.Update(msg)
			app, ok := model.(*App)
			if !ok {
				h.t.Fatalf("unexpected model type: %T", model)
			}
			h.app = app
			queue = append(queue, follow)
		}
	}
}

func (h *harness) send(msg tea.Msg) {
	h.t.Helper()
	_, cmd := h.app.Update(msg)
	h.run(cmd)
}

func (h *harness) press(key string) {
	h.t.Helper()
	switch key {
	case "enter":
		h.send(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		h.send(tea.KeyMsg{Type: tea.KeyEsc})
	case "ctrl+r":
		h.send(tea.KeyMsg{Type: tea.KeyCtrlR})
	case "alt+left":
		h.send(tea.KeyMsg{Type: tea.KeyLeft, Alt: true})
	case "alt+right":
		h.send(tea.KeyMsg{Type: tea.KeyRight, Alt: true})
	default:
		h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	}
}

// elapse delivers one round of poll ticks per second.
func (h *harness) elapse(seconds int) {
	h.t.Helper()
	for i := 0; i < seconds; i++ {
		pending := h.ticks
		h.ticks = nil
		for _, msg := range pending {
			h.send(msg)
		}
	}
}

func (h *harness) expectStep(want wizard.Step) {
	h.t.Helper()
	if got := h.ctrl.Step(); got != want {
		h.t.Fatalf("step = %s, want %s", got, want)
	}
}

func (h *harness) journal() string {
	lines, _ := h.logbook.Tail(100)
	return strings.Join(lines, "\n")
}

func adaLovelace() member.Snapshot {
	return member.Snapshot{
		Info: member.Info{
			ID:       "ada.lovelace",
			Fullname: "Ada Lovelace",
			Role:     "Développeuse",
			Startups: []string{"analytical-engine"},
			End:      member.NewDate(2023, time.December, 31),
		},
		SecondaryEmail:     "ada@example.com",
		HasSecondaryEmail:  true,
		IsExpired:          true,
		PrimaryEmailStatus: member.EmailStatusDeleted,
	}
}

func marieCurie() member.Snapshot {
	return member.Snapshot{
		Info: member.Info{
			ID:       "marie.curie",
			Fullname: "Marie Curie",
			End:      member.NewDate(2025, time.June, 30),
		},
		EmailInfos:         &member.EmailInfos{Email: "marie.curie@beta.gouv.fr"},
		HasEmailInfos:      true,
		PrimaryEmailStatus: member.EmailStatusActive,
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	ctrl, err := wizard.New(wizard.NewMemoryStore())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if _, err := NewApp(nil, portal.NewMemory(portal.MemoryOptions{})); err == nil {
		t.Fatalf("expected error without controller")
	}
	if _, err := NewApp(ctrl, nil); err == nil {
		t.Fatalf("expected error without portal")
	}
}

func TestFullRemediationRun(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{
		MergeDelay:   2 * time.Minute,
		MailboxDelay: time.Minute,
	}, adaLovelace())

	h.expectStep(wizard.StepSelectMember)
	if !h.app.membersLoaded {
		t.Fatalf("members were not loaded on start")
	}
	h.press("enter")
	h.expectStep(wizard.StepShowMember)
	if !strings.Contains(h.app.View(), "Le contrat de Ada Lovelace est arrivé à terme le 31/12/2023.") {
		t.Fatalf("member sheet misses the diagnosis:\n%s", h.app.View())
	}

	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)
	if got := h.app.endDate.Value(); got != "01/09/2024" {
		t.Fatalf("default end date = %q", got)
	}
	h.press("enter")
	h.expectStep(wizard.StepAwaitEndDateApplied)
	if h.ctrl.PullRequestURL() == "" {
		t.Fatalf("pull request url not recorded")
	}
	if h.app.tracker.Status() != wizard.MergeStatusNotMerged {
		t.Fatalf("tracker status = %s", h.app.tracker.Status())
	}

	h.press("enter")
	h.expectStep(wizard.StepAwaitEndDateApplied)

	h.clock.Advance(3 * time.Minute)
	h.elapse(60)
	if !h.app.tracker.Validated() {
		t.Fatalf("tracker status = %s after merge", h.app.tracker.Status())
	}
	h.elapse(1)
	if running := h.app.loops.Running(); len(running) != 0 {
		t.Fatalf("loops still running after validation: %v", running)
	}

	h.press("enter")
	h.expectStep(wizard.StepCreateEmail)
	if !h.app.gate.Checked() || h.app.gate.Open() {
		t.Fatalf("expected an anonymous session")
	}
	h.press("enter")
	if len(h.portal.SentLinks()) != 0 {
		t.Fatalf("empty login address must not be sent")
	}
	h.press("ops@beta.gouv.fr")
	h.press("enter")
	if !h.app.gate.Open() || h.app.gate.Operator() != "ops" {
		t.Fatalf("gate did not open after login: %+v", h.app.gate)
	}
	if got := h.app.recovery.Value(); got != "ada@example.com" {
		t.Fatalf("recovery address = %q", got)
	}

	h.press("enter")
	h.expectStep(wizard.StepAwaitAccount)
	snap, _ := h.ctrl.Member()
	if snap.PrimaryEmailStatus != member.EmailStatusCreationPending {
		t.Fatalf("status = %s", snap.PrimaryEmailStatus)
	}
	h.clock.Advance(2 * time.Minute)
	h.elapse(60)
	snap, _ = h.ctrl.Member()
	if !snap.EmailActive() {
		t.Fatalf("mailbox not active after provisioning: %s", snap.PrimaryEmailStatus)
	}
	if !strings.Contains(h.app.View(), "L'email est actif") {
		t.Fatalf("await view does not report the active mailbox")
	}

	h.press("enter")
	h.expectStep(wizard.StepAccountCreated)
	h.press("enter")
	h.expectStep(wizard.StepDone)
	h.press("enter")
	h.expectStep(wizard.StepSelectMember)
	if h.store.Raw() != nil {
		t.Fatalf("finished run left state behind")
	}
	journal := h.journal()
	for _, want := range []string{"PR mergée", "Connecté en tant que ops", "Session terminée pour ada.lovelace"} {
		if !strings.Contains(journal, want) {
			t.Fatalf("journal misses %q:\n%s", want, journal)
		}
	}
}

func TestHealthyMemberGoesStraightToDone(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, marieCurie())
	h.press("enter")
	h.expectStep(wizard.StepShowMember)
	if !strings.Contains(h.app.View(), "Aucun problème") {
		t.Fatalf("expected the no-issue sheet:\n%s", h.app.View())
	}
	h.press("enter")
	h.expectStep(wizard.StepDone)
}

func TestUnknownMemberStaysOnPicker(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, marieCurie())
	h.app.searching = "ghost"
	h.send(memberFetchedMsg{
		origin:  origin{step: wizard.StepSelectMember},
		purpose: fetchSelect,
		id:      "ghost",
		err:     portal.ErrNotFound,
	})
	h.expectStep(wizard.StepSelectMember)
	if h.app.notice != "Aucune info sur l'utilisateur" {
		t.Fatalf("notice = %q", h.app.notice)
	}
}

func TestEndDateFormErrors(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, adaLovelace())
	h.press("enter")
	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)

	h.app.endDate.SetValue("15/01/2020")
	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)
	if !strings.Contains(h.app.formErr, "31/01/2020") {
		t.Fatalf("form error = %q", h.app.formErr)
	}

	h.app.endDate.SetValue("pas une date")
	h.press("enter")
	if !strings.Contains(h.app.formErr, "jj/mm/aaaa") {
		t.Fatalf("form error = %q", h.app.formErr)
	}

	h.app.endDate.SetValue("01/02/2023")
	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)
	if h.app.formErr != "Erreur dans le formulaire" {
		t.Fatalf("form error = %q", h.app.formErr)
	}
	if len(h.app.fieldErrs) != 1 || h.app.fieldErrs[0] != "la date doit être dans le futur" {
		t.Fatalf("field errors = %v", h.app.fieldErrs)
	}
	if h.app.submitting {
		t.Fatalf("failed submission must re-enable the form")
	}
}

func TestEndDateSubmitsOnce(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, adaLovelace())
	h.press("enter")
	h.press("enter")
	h.app.submitting = true
	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)
	if h.ctrl.PullRequestURL() != "" {
		t.Fatalf("a pending submission must block a second one")
	}
}

func TestFutureEndDateValidatesImmediately(t *testing.T) {
	snap := adaLovelace()
	snap.Info.End = member.NewDate(2024, time.June, 30)
	snap.HasEmailInfos = true
	snap.PrimaryEmailStatus = member.EmailStatusActive
	h := newHarness(t, nil, portal.MemoryOptions{MergeDelay: time.Hour}, snap)
	h.press("enter")
	h.press("enter")
	h.press("enter")
	h.expectStep(wizard.StepAwaitEndDateApplied)
	if !h.app.tracker.Validated() {
		t.Fatalf("tracker status = %s", h.app.tracker.Status())
	}
	if running := h.app.loops.Running(); len(running) != 0 {
		t.Fatalf("merge loop started for a validated change: %v", running)
	}
	h.press("enter")
	h.expectStep(wizard.StepDone)
}

func TestStaleResultsAreIgnored(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, adaLovelace())
	h.press("enter")
	h.expectStep(wizard.StepShowMember)

	late := adaLovelace()
	late.PrimaryEmailStatus = member.EmailStatusActive
	h.send(memberFetchedMsg{
		origin:  origin{step: wizard.StepAwaitAccount, memberID: "ada.lovelace"},
		purpose: fetchAccount,
		id:      "ada.lovelace",
		snap:    late,
	})
	snap, _ := h.ctrl.Member()
	if snap.EmailActive() {
		t.Fatalf("result from a left step was applied")
	}
	h.send(endDateSubmittedMsg{
		origin: origin{step: wizard.StepUpdateEndDate, memberID: "ada.lovelace"},
		url:    "https://github.com/org/repo/pull/99",
	})
	h.expectStep(wizard.StepShowMember)
	if h.ctrl.PullRequestURL() != "" {
		t.Fatalf("stale submission recorded a pull request")
	}
}

func TestRetreatResetAndHistoryKeys(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, adaLovelace())
	h.press("enter")
	h.press("enter")
	h.expectStep(wizard.StepUpdateEndDate)

	h.press("alt+left")
	h.expectStep(wizard.StepShowMember)
	h.press("alt+right")
	h.expectStep(wizard.StepUpdateEndDate)

	h.press("esc")
	h.expectStep(wizard.StepShowMember)

	h.press("ctrl+r")
	h.expectStep(wizard.StepSelectMember)
	if h.store.Raw() != nil {
		t.Fatalf("reset left state behind")
	}
	h.press("esc")
	if h.store.Raw() != nil {
		t.Fatalf("esc on the picker must not persist a run")
	}
}

func TestQuitFromPicker(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, marieCurie())
	h.press("q")
	if !h.quit {
		t.Fatalf("q on the picker should quit")
	}
}

func TestRestoreResumesAndRefreshesMember(t *testing.T) {
	store := wizard.NewMemoryStore()
	first := newHarness(t, store, portal.MemoryOptions{}, adaLovelace())
	first.press("enter")
	first.press("enter")
	first.expectStep(wizard.StepUpdateEndDate)

	refreshed := adaLovelace()
	refreshed.Info.Role = "Intrapreneuse"
	second := newHarness(t, store, portal.MemoryOptions{}, refreshed)
	second.expectStep(wizard.StepUpdateEndDate)
	snap, _ := second.ctrl.Member()
	if snap.Info.Role != "Intrapreneuse" {
		t.Fatalf("restored member was not refreshed: %+v", snap.Info)
	}
	if got := second.history.Entries(); len(got) != 2 || got[1] != wizard.StepUpdateEndDate {
		t.Fatalf("history after restore = %v", got)
	}
	if !strings.Contains(second.journal(), "Reprise de la session pour ada.lovelace") {
		t.Fatalf("journal misses the restore entry:\n%s", second.journal())
	}
}

func TestCreateEmailSkippedWhenMailboxExists(t *testing.T) {
	planned := adaLovelace()
	provisioned := adaLovelace()
	provisioned.HasEmailInfos = true
	provisioned.EmailInfos = &member.EmailInfos{Email: "ada.lovelace@beta.gouv.fr"}
	provisioned.PrimaryEmailStatus = member.EmailStatusActive

	store := wizard.NewMemoryStore()
	err := store.Save(wizard.State{
		Version:  wizard.StateVersion,
		RunID:    "run-1",
		Step:     wizard.StepCreateEmail,
		Steps:    wizard.AssembleSteps(planned),
		MemberID: planned.ID(),
		Member:   &provisioned,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	h := newHarness(t, store, portal.MemoryOptions{}, provisioned)
	h.expectStep(wizard.StepAwaitAccount)
}

func TestConnectivityFailureKeepsFormDisabled(t *testing.T) {
	h := newHarness(t, nil, portal.MemoryOptions{}, adaLovelace())
	if err := h.ctrl.Start(adaLovelace()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for h.ctrl.Step() != wizard.StepCreateEmail {
		if _, err := h.ctrl.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	h.send(nudge{})
	if !h.app.gate.Checked() {
		t.Fatalf("entering the step should check the session")
	}
	h.send(sessionCheckedMsg{
		origin: origin{step: wizard.StepCreateEmail, memberID: "ada.lovelace"},
		err:    errors.New("connection refused"),
	})
	if h.app.gate.Open() {
		t.Fatalf("a failed check must not open the gate")
	}
	h.press("ops@beta.gouv.fr")
	if h.app.recovery.Value() != "ada@example.com" {
		t.Fatalf("disabled form accepted input: %q", h.app.recovery.Value())
	}
}
