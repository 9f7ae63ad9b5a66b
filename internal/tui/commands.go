package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/espace-membre/internal/member"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/wizard"
)

// fetchPurpose tells the update loop what a member fetch was issued for.
type fetchPurpose int

const (
	fetchSelect fetchPurpose = iota
	fetchRefresh
	fetchMerge
	fetchAccount
)

func (p fetchPurpose) String() string {
	switch p {
	case fetchSelect:
		return "select"
	case fetchRefresh:
		return "refresh"
	case fetchMerge:
		return "merge"
	case fetchAccount:
		return "account"
	default:
		return "unknown"
	}
}

// origin is the step and member a request was issued from. Results whose
// origin no longer matches the controller are dropped.
type origin struct {
	step     wizard.Step
	memberID string
}

type membersLoadedMsg struct {
	members []member.Summary
	err     error
}

type memberFetchedMsg struct {
	origin
	purpose fetchPurpose
	id      string
	snap    member.Snapshot
	err     error
}

type changeRequestsMsg struct {
	origin
	urls []string
	err  error
}

type sessionCheckedMsg struct {
	origin
	operator string
	err      error
}

type endDateSubmittedMsg struct {
	origin
	url string
	err error
}

type mailboxCreatedMsg struct {
	origin
	err error
}

type loginLinkMsg struct {
	origin
	email string
	err   error
}

func (a *App) origin() origin {
	return origin{step: a.ctrl.Step(), memberID: a.ctrl.MemberID()}
}

// stale reports whether a result issued from o arrived after its step was left.
func (a *App) stale(o origin) bool {
	return a.ctrl.Step() != o.step || a.ctrl.MemberID() != o.memberID
}

func (a *App) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *App) loadMembers() tea.Cmd {
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		members, err := p.Members(ctx)
		return membersLoadedMsg{members: members, err: err}
	}
}

func (a *App) fetchMember(purpose fetchPurpose, id string) tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		snap, err := p.Member(ctx, id)
		return memberFetchedMsg{origin: from, purpose: purpose, id: id, snap: snap, err: err}
	}
}

func (a *App) fetchChangeRequests() tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		requests, err := p.OpenChangeRequests(ctx)
		return changeRequestsMsg{origin: from, urls: portal.URLs(requests), err: err}
	}
}

func (a *App) checkSession() tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		operator, err := p.CurrentUser(ctx)
		return sessionCheckedMsg{origin: from, operator: operator, err: err}
	}
}

func (a *App) submitEndDate(id string, change portal.EndDateChange) tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		url, err := p.SubmitEndDate(ctx, id, change)
		return endDateSubmittedMsg{origin: from, url: url, err: err}
	}
}

func (a *App) createMailbox(id, recovery string) tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		return mailboxCreatedMsg{origin: from, err: p.CreateMailbox(ctx, id, recovery)}
	}
}

func (a *App) requestLoginLink(email string) tea.Cmd {
	from := a.origin()
	p := a.portal
	return func() tea.Msg {
		ctx, cancel := a.requestContext()
		defer cancel()
		return loginLinkMsg{origin: from, email: email, err: p.RequestLoginLink(ctx, email)}
	}
}

// batch drops nil commands so tests can tell "nothing to do" apart.
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
