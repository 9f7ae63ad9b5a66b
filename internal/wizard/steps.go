// Package wizard drives the guided remediation of a member account: it assembles
// the step sequence from a diagnosis, moves through it, mirrors forward moves onto
// a navigation history and persists progress so a run survives restarts.
package wizard

import "github.com/kingrea/espace-membre/internal/member"

// Step names one screen of the remediation wizard.
type Step string

const (
	StepSelectMember        Step = "select-member"
	StepShowMember          Step = "show-member"
	StepUpdateEndDate       Step = "update-end-date"
	StepAwaitEndDateApplied Step = "await-end-date-applied"
	StepCreateEmail         Step = "create-email"
	StepAwaitAccount        Step = "await-account-creation"
	StepAccountCreated      Step = "account-created"
	StepEmailSuspended      Step = "email-suspended"
	StepEmailBlocked        Step = "email-blocked"
	StepDone                Step = "done"
)

var stepNames = map[Step]string{
	StepSelectMember:        "Choix du membre",
	StepShowMember:          "Fiche du membre",
	StepUpdateEndDate:       "Date de fin",
	StepAwaitEndDateApplied: "Attente du merge",
	StepCreateEmail:         "Création de l'email",
	StepAwaitAccount:        "Création en cours",
	StepAccountCreated:      "Compte créé",
	StepEmailSuspended:      "Email suspendu",
	StepEmailBlocked:        "Email bloqué",
	StepDone:                "Terminé",
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

// FriendlyName returns the label used in the progress line.
func (s Step) FriendlyName() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return string(s)
}

// AssembleSteps builds the ordered step list for one remediation run. Rules are
// evaluated in a fixed order and each appends its own block before StepDone.
func AssembleSteps(s member.Snapshot) []Step {
	steps := []Step{StepSelectMember, StepShowMember}
	if s.IsExpired {
		steps = append(steps, StepUpdateEndDate, StepAwaitEndDateApplied)
	}
	if !s.HasEmailInfos {
		steps = append(steps, StepCreateEmail, StepAwaitAccount, StepAccountCreated)
	}
	suspended := s.EmailSuspended()
	if suspended && !s.IsEmailBlocked {
		steps = append(steps, StepEmailSuspended)
	}
	if !suspended && s.IsEmailBlocked {
		steps = append(steps, StepEmailBlocked)
	}
	return append(steps, StepDone)
}

func indexOf(steps []Step, step Step) int {
	for i, candidate := range steps {
		if candidate == step {
			return i
		}
	}
	return -1
}

func cloneSteps(steps []Step) []Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}
