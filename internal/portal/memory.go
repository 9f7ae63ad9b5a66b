package portal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/espace-membre/internal/member"
)

// MinEndDate is the earliest end date the portal accepts.
var MinEndDate = member.NewDate(2020, time.January, 31)

// MemoryOptions tunes the in-memory portal. Delays model the asynchronous
// parts of the real portal: change requests wait for a reviewer, mailboxes for
// the mail provider and login links for the operator to click them.
type MemoryOptions struct {
	MergeDelay   time.Duration
	MailboxDelay time.Duration
	LoginDelay   time.Duration
	RepoURL      string
	Clock        func() time.Time
}

type pendingChange struct {
	url     string
	id      string
	change  EndDateChange
	mergeAt time.Time
}

type pendingMailbox struct {
	id       string
	activeAt time.Time
}

type pendingLogin struct {
	operator string
	at       time.Time
}

// Memory is an in-process Portal. It backs the sandbox server and tests.
type Memory struct {
	mu        sync.Mutex
	opts      MemoryOptions
	members   map[string]member.Snapshot
	changes   []pendingChange
	mailboxes []pendingMailbox
	logins    []pendingLogin
	sentLinks []string
	operator  string
	nextPR    int
}

// NewMemory returns an empty in-memory portal.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RepoURL == "" {
		opts.RepoURL = "https://github.com/betagouv/beta.gouv.fr"
	}
	return &Memory{
		opts:    opts,
		members: make(map[string]member.Snapshot),
		nextPR:  1,
	}
}

// Seed adds or replaces members.
func (m *Memory) Seed(snaps ...member.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		m.members[snap.ID()] = snap.Clone()
	}
}

// Login opens an operator session.
func (m *Memory) Login(operator string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operator = strings.TrimSpace(operator)
}

// Logout closes the operator session.
func (m *Memory) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operator = ""
}

// SentLinks lists the addresses login links were sent to.
func (m *Memory) SentLinks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sentLinks...)
}

// Member returns a snapshot of one member.
func (m *Memory) Member(_ context.Context, id string) (member.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	snap, ok := m.members[id]
	if !ok {
		return member.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snap.Clone(), nil
}

// Members lists every member sorted by identifier.
func (m *Memory) Members(context.Context) ([]member.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]member.Summary, 0, len(m.members))
	for id, snap := range m.members {
		out = append(out, member.Summary{ID: id, Fullname: snap.Info.Fullname})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OpenChangeRequests lists the change requests not merged yet.
func (m *Memory) OpenChangeRequests(context.Context) ([]ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	out := make([]ChangeRequest, 0, len(m.changes))
	for _, change := range m.changes {
		out = append(out, ChangeRequest{URL: change.url})
	}
	return out, nil
}

// SubmitEndDate validates the change and opens a change request for it.
func (m *Memory) SubmitEndDate(_ context.Context, id string, change EndDateChange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	if _, ok := m.members[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := m.opts.Clock()
	switch {
	case change.End.IsZero():
		return "", endDateRejected("la date de fin est obligatoire")
	case change.End.Before(MinEndDate.Time):
		return "", endDateRejected("la date doit être postérieure au " + MinEndDate.French())
	case !change.End.InFuture(now):
		return "", endDateRejected("la date doit être dans le futur")
	}
	url := fmt.Sprintf("%s/pull/%d", m.opts.RepoURL, m.nextPR)
	m.nextPR++
	m.changes = append(m.changes, pendingChange{
		url:     url,
		id:      id,
		change:  change,
		mergeAt: now.Add(m.opts.MergeDelay),
	})
	return url, nil
}

// CreateMailbox starts provisioning the member's mailbox.
func (m *Memory) CreateMailbox(_ context.Context, id, recoveryEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	if m.operator == "" {
		return ErrUnauthorized
	}
	snap, ok := m.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if snap.HasEmailInfos {
		return &ValidationError{Message: "Le compte mail existe déjà"}
	}
	recoveryEmail = strings.TrimSpace(recoveryEmail)
	if !strings.Contains(recoveryEmail, "@") {
		return &ValidationError{
			Message: "Erreur dans le formulaire",
			Fields:  map[string][]string{"to_email": {"adresse email invalide"}},
		}
	}
	snap.PrimaryEmailStatus = member.EmailStatusCreationPending
	if snap.SecondaryEmail == "" {
		snap.SecondaryEmail = recoveryEmail
		snap.HasSecondaryEmail = true
	}
	m.members[id] = snap
	m.mailboxes = append(m.mailboxes, pendingMailbox{id: id, activeAt: m.opts.Clock().Add(m.opts.MailboxDelay)})
	return nil
}

// CurrentUser returns the logged-in operator.
func (m *Memory) CurrentUser(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle()
	if m.operator == "" {
		return "", ErrUnauthorized
	}
	return m.operator, nil
}

// RequestLoginLink records a login link; the session opens after LoginDelay
// as if the operator had clicked it.
func (m *Memory) RequestLoginLink(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.TrimSpace(email)
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return &ValidationError{
			Message: "Erreur dans le formulaire",
			Fields:  map[string][]string{"emailInput": {"adresse email invalide"}},
		}
	}
	m.sentLinks = append(m.sentLinks, email)
	m.logins = append(m.logins, pendingLogin{operator: local, at: m.opts.Clock().Add(m.opts.LoginDelay)})
	return nil
}

func endDateRejected(reason string) *ValidationError {
	return &ValidationError{
		Message: "Erreur dans le formulaire",
		Fields:  map[string][]string{EndDateField: {reason}},
	}
}

// settle applies every asynchronous event that is due. Callers hold mu.
func (m *Memory) settle() {
	now := m.opts.Clock()

	open := m.changes[:0]
	for _, change := range m.changes {
		if now.Before(change.mergeAt) {
			open = append(open, change)
			continue
		}
		snap, ok := m.members[change.id]
		if !ok {
			continue
		}
		snap.Info.End = change.change.End
		if change.change.Role != "" {
			snap.Info.Role = change.change.Role
		}
		if len(change.change.Startups) > 0 {
			snap.Info.Startups = append([]string(nil), change.change.Startups...)
		}
		snap.IsExpired = !snap.Info.End.InFuture(now)
		m.members[change.id] = snap
	}
	m.changes = open

	provisioning := m.mailboxes[:0]
	for _, box := range m.mailboxes {
		if now.Before(box.activeAt) {
			provisioning = append(provisioning, box)
			continue
		}
		snap, ok := m.members[box.id]
		if !ok {
			continue
		}
		snap.HasEmailInfos = true
		snap.EmailInfos = &member.EmailInfos{Email: box.id + "@beta.gouv.fr"}
		snap.PrimaryEmailStatus = member.EmailStatusActive
		m.members[box.id] = snap
	}
	m.mailboxes = provisioning

	waiting := m.logins[:0]
	for _, login := range m.logins {
		if now.Before(login.at) {
			waiting = append(waiting, login)
			continue
		}
		m.operator = login.operator
	}
	m.logins = waiting
}
