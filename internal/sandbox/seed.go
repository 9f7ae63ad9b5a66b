package sandbox

import (
	"time"

	"github.com/kingrea/espace-membre/internal/member"
)

// DemoMembers returns one member per remediation path, dated relative to now.
func DemoMembers(now time.Time) []member.Snapshot {
	day := func(months int) member.Date {
		t := now.AddDate(0, months, 0)
		return member.NewDate(t.Year(), t.Month(), t.Day())
	}
	return []member.Snapshot{
		{
			Info: member.Info{
				ID: "ada.lovelace", Fullname: "Ada Lovelace", Role: "Développeuse",
				Startups: []string{"espace-membre"}, End: day(-2), Employer: "admin/DINUM", GitHub: "ada",
			},
			IsExpired:          true,
			SecondaryEmail:     "ada@example.org",
			HasSecondaryEmail:  true,
			PrimaryEmailStatus: member.EmailStatusDeleted,
		},
		{
			Info: member.Info{
				ID: "alan.turing", Fullname: "Alan Turing", Role: "Coach",
				Startups: []string{"signalconso"}, End: day(-1),
			},
			IsExpired:          true,
			HasEmailInfos:      true,
			EmailInfos:         &member.EmailInfos{Email: "alan.turing@beta.gouv.fr", IsPro: true},
			PrimaryEmailStatus: member.EmailStatusSuspended,
		},
		{
			Info: member.Info{
				ID: "grace.hopper", Fullname: "Grace Hopper", Role: "Intrapreneuse",
				Startups: []string{"aides-jeunes"}, End: day(6),
			},
			HasEmailInfos:      true,
			IsEmailBlocked:     true,
			EmailInfos:         &member.EmailInfos{Email: "grace.hopper@beta.gouv.fr", IsBlocked: true},
			PrimaryEmailStatus: member.EmailStatusActive,
		},
		{
			Info: member.Info{
				ID: "marie.curie", Fullname: "Marie Curie", Role: "Designer",
				Startups: []string{"mon-suivi-justice"}, End: day(8), Employer: "admin/Beta",
			},
			HasEmailInfos:      true,
			EmailInfos:         &member.EmailInfos{Email: "marie.curie@beta.gouv.fr", IsExchange: true},
			PrimaryEmailStatus: member.EmailStatusActive,
		},
		{
			Info: member.Info{
				ID: "jean.dupont", Role: "Product owner", End: day(3),
			},
			HasPublicServiceEmail: true,
			SecondaryEmail:        "jean.dupont@interieur.gouv.fr",
			HasSecondaryEmail:     true,
		},
	}
}
