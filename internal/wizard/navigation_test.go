package wizard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHistoryPushTruncatesForwardEntries(t *testing.T) {
	h := NewHistory()
	var popped []Step
	h.OnPopped(func(step Step) { popped = append(popped, step) })

	h.PushStep(StepShowMember)
	h.PushStep(StepUpdateEndDate)
	if !h.Back() || !h.Back() {
		t.Fatalf("expected two back moves")
	}
	if h.Back() {
		t.Fatalf("back past the oldest entry")
	}
	if !h.Forward() {
		t.Fatalf("expected forward move")
	}
	h.PushStep(StepDone)
	if h.Forward() {
		t.Fatalf("forward entries should be dropped on push")
	}
	if diff := cmp.Diff([]Step{StepSelectMember, StepShowMember, StepDone}, h.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Step{StepShowMember, StepSelectMember, StepShowMember}, popped); diff != "" {
		t.Fatalf("popped mismatch (-want +got):\n%s", diff)
	}
}

func TestGateOpensOnLateLogin(t *testing.T) {
	var g Gate
	if g.Checked() || g.NeedsLogin() || g.Open() {
		t.Fatalf("unchecked gate should render nothing")
	}
	g.Observe("")
	if !g.NeedsLogin() || g.Open() {
		t.Fatalf("anonymous check should show the login notice")
	}
	g.MarkLoginSent()
	g.Observe("  jean.dupont ")
	if !g.Open() || g.Operator() != "jean.dupont" {
		t.Fatalf("gate did not open: %+v", g)
	}
	if !g.NeedsLogin() || !g.LoginSent() {
		t.Fatalf("late login keeps the notice visible")
	}
}

func TestGateAlreadyConnected(t *testing.T) {
	var g Gate
	g.Observe("marie.curie")
	if !g.Open() || g.NeedsLogin() {
		t.Fatalf("connected operator should not see the login notice")
	}
}
