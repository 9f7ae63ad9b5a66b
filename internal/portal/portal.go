// Package portal talks to the member portal: the member directory, the change
// requests that carry end-date updates, mailbox provisioning and the operator
// session.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/espace-membre/internal/member"
)

var (
	// ErrNotFound is returned when the directory has no such member.
	ErrNotFound = errors.New("portal: member not found")
	// ErrUnauthorized is returned when the operator session is anonymous.
	ErrUnauthorized = errors.New("portal: not authenticated")
)

// EndDateField is the form field carrying the new end date.
const EndDateField = "nouvelle date de fin"

// ValidationError carries the portal's rejection of a submitted form.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "portal: " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(e.Fields[key], ", ")))
	}
	return fmt.Sprintf("portal: %s (%s)", e.Message, strings.Join(parts, "; "))
}

// FieldErrors returns the messages attached to one field.
func (e *ValidationError) FieldErrors(field string) []string {
	return e.Fields[field]
}

// ChangeRequest is an open pull request on the directory repository.
type ChangeRequest struct {
	URL string `json:"html_url"`
}

// EndDateChange is the body of an end-date update.
type EndDateChange struct {
	End      member.Date `json:"end"`
	Role     string      `json:"role"`
	Startups []string    `json:"startups"`
}

// Directory reads members.
type Directory interface {
	Member(ctx context.Context, id string) (member.Snapshot, error)
	Members(ctx context.Context) ([]member.Summary, error)
}

// ChangeRequests lists and opens directory change requests.
type ChangeRequests interface {
	OpenChangeRequests(ctx context.Context) ([]ChangeRequest, error)
	// SubmitEndDate opens a change request and returns its URL.
	SubmitEndDate(ctx context.Context, id string, change EndDateChange) (string, error)
}

// Mailboxes provisions member mailboxes.
type Mailboxes interface {
	CreateMailbox(ctx context.Context, id, recoveryEmail string) error
}

// Session checks the operator session and requests login links.
type Session interface {
	// CurrentUser returns the authenticated operator or ErrUnauthorized.
	CurrentUser(ctx context.Context) (string, error)
	RequestLoginLink(ctx context.Context, email string) error
}

// Portal is everything the wizard needs from the member portal.
type Portal interface {
	Directory
	ChangeRequests
	Mailboxes
	Session
}

// URLs flattens change requests into their URLs.
func URLs(requests []ChangeRequest) []string {
	out := make([]string, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.URL)
	}
	return out
}
