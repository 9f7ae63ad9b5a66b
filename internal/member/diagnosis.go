package member

import "fmt"

// Problem is one issue detected on a member account.
type Problem string

const (
	ProblemContractExpired Problem = "contract-expired"
	ProblemEmailSuspended  Problem = "email-suspended"
	ProblemMailboxDeleted  Problem = "mailbox-deleted"
	ProblemEmailBlocked    Problem = "email-blocked"
)

// Diagnosis is what the member sheet shows before a remediation run starts.
type Diagnosis struct {
	Problems []Problem
	// Remedies is the ordered checklist needed to reactivate the account.
	Remedies []string
	// Notes explains who can recreate a deleted mailbox.
	Notes []string
}

// HasProblems reports whether a remediation run should be offered.
func (d Diagnosis) HasProblems() bool {
	return len(d.Problems) > 0
}

// Has reports whether p was detected.
func (d Diagnosis) Has(p Problem) bool {
	for _, candidate := range d.Problems {
		if candidate == p {
			return true
		}
	}
	return false
}

// Diagnose inspects the derived flags of a snapshot.
func Diagnose(s Snapshot) Diagnosis {
	var d Diagnosis
	name := s.Info.DisplayName()
	if s.IsExpired {
		d.Problems = append(d.Problems, ProblemContractExpired)
		d.Remedies = append(d.Remedies, "changer sa date de fin et merger la PR")
	}
	if s.EmailSuspended() {
		d.Problems = append(d.Problems, ProblemEmailSuspended)
	}
	if !s.HasEmailInfos {
		d.Problems = append(d.Problems, ProblemMailboxDeleted)
		d.Remedies = append(d.Remedies, "re-créer son email beta")
	}
	if s.EmailSuspended() {
		d.Remedies = append(d.Remedies, "changer son mot de passe pour réactiver son email")
	}
	if s.IsEmailBlocked {
		d.Problems = append(d.Problems, ProblemEmailBlocked)
		d.Remedies = append(d.Remedies, "l'email est bloqué pour cause de spam, il faut le réactiver en changeant le mot de passe")
	}
	if !s.HasEmailInfos {
		if s.HasSecondaryEmail {
			d.Notes = append(d.Notes,
				fmt.Sprintf("Si tu es un collègue de %s tu pourras recréer l'email pour lui/elle.", name),
				fmt.Sprintf("Si tu es %s tu pourras recréer l'email toi même une fois ta date de fin à jour.", name),
			)
		} else {
			d.Notes = append(d.Notes,
				fmt.Sprintf("%s n'a pas d'email secondaire, si tu es toi même %s il va falloir qu'un collègue le fasse à ta place.", name, name),
			)
		}
	}
	return d
}

// Describe renders p for the member sheet.
func (p Problem) Describe(s Snapshot) string {
	name := s.Info.DisplayName()
	switch p {
	case ProblemContractExpired:
		return fmt.Sprintf("Le contrat de %s est arrivé à terme le %s.", name, s.Info.End.French())
	case ProblemEmailSuspended:
		return "Son email @beta.gouv.fr est suspendu car sa date de fin a été mise à jour en retard."
	case ProblemMailboxDeleted:
		return "Son email a été supprimé."
	case ProblemEmailBlocked:
		return "Son email a été bloqué pour cause de spam."
	default:
		return string(p)
	}
}
