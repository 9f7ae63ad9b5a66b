// Package member models the read-only member snapshot served by the portal
// directory and the diagnosis the remediation wizard is built from.
package member

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EmailStatus is the normalised status code of a member's primary mailbox.
type EmailStatus string

const (
	EmailStatusUnknown           EmailStatus = ""
	EmailStatusActive            EmailStatus = "EMAIL_ACTIVE"
	EmailStatusSuspended         EmailStatus = "EMAIL_SUSPENDED"
	EmailStatusDeleted           EmailStatus = "EMAIL_DELETED"
	EmailStatusExpired           EmailStatus = "EMAIL_EXPIRED"
	EmailStatusCreationPending   EmailStatus = "EMAIL_CREATION_PENDING"
	EmailStatusRecreationPending EmailStatus = "EMAIL_RECREATION_PENDING"
	EmailStatusUnset             EmailStatus = "EMAIL_UNSET"
)

// readableEmailStatus mirrors the labels the portal puts in primaryEmailStatus.
var readableEmailStatus = map[EmailStatus]string{
	EmailStatusActive:            "Actif",
	EmailStatusSuspended:         "Suspendu",
	EmailStatusDeleted:           "Supprimé",
	EmailStatusExpired:           "Expiré",
	EmailStatusCreationPending:   "Création en cours",
	EmailStatusRecreationPending: "Recréation en cours",
	EmailStatusUnset:             "Non défini",
}

// ParseEmailStatus accepts either a status code or the portal's readable label.
// Unrecognised values are kept verbatim so they can still be displayed.
func ParseEmailStatus(value string) EmailStatus {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return EmailStatusUnknown
	}
	for code, label := range readableEmailStatus {
		if strings.EqualFold(trimmed, string(code)) || strings.EqualFold(trimmed, label) {
			return code
		}
	}
	return EmailStatus(trimmed)
}

// Readable returns the label shown to operators.
func (s EmailStatus) Readable() string {
	if label, ok := readableEmailStatus[s]; ok {
		return label
	}
	if s == EmailStatusUnknown {
		return "Inconnu"
	}
	return string(s)
}

// UnmarshalJSON normalises labels and codes alike.
func (s *EmailStatus) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("member: email status: %w", err)
	}
	if raw == nil {
		*s = EmailStatusUnknown
		return nil
	}
	*s = ParseEmailStatus(*raw)
	return nil
}

const dateLayout = "2006-01-02"

// Date is a calendar day as exchanged with the portal ("2006-01-02").
type Date struct {
	time.Time
}

// ParseDate reads a portal date. RFC 3339 timestamps are accepted too.
func ParseDate(value string) (Date, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, trimmed); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("member: invalid date %q", value)
	}
	return Date{Time: t}, nil
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String renders the wire format, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// French renders the date the way the portal pages do (fr-FR).
func (d Date) French() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

// InFuture reports whether the date is strictly after now.
func (d Date) InFuture(now time.Time) bool {
	return !d.IsZero() && d.After(now)
}

// MarshalJSON writes null for the zero date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "" and both supported layouts.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("member: date: %w", err)
	}
	if raw == nil {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Info carries the member's identity and contract data.
type Info struct {
	ID       string   `json:"id"`
	Fullname string   `json:"fullname"`
	Role     string   `json:"role,omitempty"`
	Startups []string `json:"startups,omitempty"`
	End      Date     `json:"end"`
	Employer string   `json:"employer,omitempty"`
	GitHub   string   `json:"github,omitempty"`
}

// DisplayName falls back to a name derived from the identifier when no full
// name is known.
func (i Info) DisplayName() string {
	if name := strings.TrimSpace(i.Fullname); name != "" {
		return name
	}
	return NameFromID(i.ID)
}

// NameFromID turns a directory identifier ("jean.dupont") into a readable name
// ("Jean Dupont").
func NameFromID(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '.' || r == '_'
	})
	return cases.Title(language.French).String(strings.Join(words, " "))
}

// EmployerName strips the directory prefix used for administrations.
func (i Info) EmployerName() string {
	return strings.TrimPrefix(strings.TrimSpace(i.Employer), "admin/")
}

// EmailInfos describes the provisioned primary mailbox.
type EmailInfos struct {
	Email      string `json:"email"`
	IsPro      bool   `json:"isPro,omitempty"`
	IsExchange bool   `json:"isExchange,omitempty"`
	IsBlocked  bool   `json:"isBlocked,omitempty"`
}

// Offer names the mailbox plan, if it is not the basic one.
func (e EmailInfos) Offer() string {
	switch {
	case e.IsExchange:
		return "offre OVH Exchange"
	case e.IsPro:
		return "offre OVH Pro"
	default:
		return ""
	}
}

// Snapshot is one fetch of a member from the directory. It is never patched in
// place; a refresh replaces it.
type Snapshot struct {
	Info                  Info        `json:"userInfos"`
	EmailInfos            *EmailInfos `json:"emailInfos,omitempty"`
	SecondaryEmail        string      `json:"secondaryEmail,omitempty"`
	IsExpired             bool        `json:"isExpired"`
	IsEmailBlocked        bool        `json:"isEmailBlocked"`
	HasEmailInfos         bool        `json:"hasEmailInfos"`
	HasSecondaryEmail     bool        `json:"hasSecondaryEmail"`
	HasPublicServiceEmail bool        `json:"hasPublicServiceEmail,omitempty"`
	PrimaryEmailStatus    EmailStatus `json:"primaryEmailStatus"`
}

// ID returns the member identifier.
func (s Snapshot) ID() string {
	return s.Info.ID
}

// EmailSuspended reports whether the primary mailbox is suspended.
func (s Snapshot) EmailSuspended() bool {
	return s.PrimaryEmailStatus == EmailStatusSuspended
}

// EmailActive reports whether the primary mailbox is active.
func (s Snapshot) EmailActive() bool {
	return s.PrimaryEmailStatus == EmailStatusActive
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	if len(s.Info.Startups) > 0 {
		out.Info.Startups = append([]string(nil), s.Info.Startups...)
	}
	if s.EmailInfos != nil {
		infos := *s.EmailInfos
		out.EmailInfos = &infos
	}
	return out
}

// Summary is one entry of the member picker.
type Summary struct {
	ID       string `json:"id"`
	Fullname string `json:"fullname"`
}

// Label is what the picker shows for a member.
func (s Summary) Label() string {
	if name := strings.TrimSpace(s.Fullname); name != "" {
		return name
	}
	return NameFromID(s.ID)
}
