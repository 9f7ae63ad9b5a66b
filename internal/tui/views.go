package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/espace-membre/internal/member"
	"github.com/kingrea/espace-membre/internal/portal"
	"github.com/kingrea/espace-membre/internal/wizard"
)

const frenchDateLayout = "02/01/2006"

var (
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// stepView is one entry of the dispatch table. enter runs once each time the
// step becomes current; key receives the keys the app did not consume.
type stepView struct {
	enter  func(a *App) tea.Cmd
	key    func(a *App, msg tea.KeyMsg) tea.Cmd
	render func(a *App) string
	// input steps capture plain letters, so "q" does not quit.
	input bool
}

func stepViews() map[wizard.Step]stepView {
	return map[wizard.Step]stepView{
		wizard.StepSelectMember: {
			enter:  enterSelectMember,
			key:    keySelectMember,
			render: renderSelectMember,
		},
		wizard.StepShowMember: {
			key:    keyAdvance,
			render: renderShowMember,
		},
		wizard.StepUpdateEndDate: {
			enter:  enterUpdateEndDate,
			key:    keyUpdateEndDate,
			render: renderUpdateEndDate,
			input:  true,
		},
		wizard.StepAwaitEndDateApplied: {
			enter:  enterAwaitEndDate,
			key:    keyAwaitEndDate,
			render: renderAwaitEndDate,
		},
		wizard.StepCreateEmail: {
			enter:  enterCreateEmail,
			key:    keyCreateEmail,
			render: renderCreateEmail,
			input:  true,
		},
		wizard.StepAwaitAccount: {
			key:    keyAdvance,
			render: renderAwaitAccount,
		},
		wizard.StepAccountCreated: {
			key:    keyAdvance,
			render: renderAccountCreated,
		},
		wizard.StepEmailSuspended: {
			key:    keyAdvance,
			render: renderEmailSuspended,
		},
		wizard.StepEmailBlocked: {
			key:    keyAdvance,
			render: renderEmailBlocked,
		},
		wizard.StepDone: {
			key:    keyDone,
			render: renderDone,
		},
	}
}

func keyAdvance(a *App, msg tea.KeyMsg) tea.Cmd {
	if msg.String() != "enter" {
		return nil
	}
	return a.advance()
}

func renderUnknown(a *App) string {
	return labelStyleBlocked.Render(fmt.Sprintf("Étape inconnue : %s", a.ctrl.Step())) +
		"\n" + detailTextStyle.Render("ctrl+r pour recommencer.")
}

// Select member

func enterSelectMember(a *App) tea.Cmd {
	if a.membersLoaded {
		return nil
	}
	return a.loadMembers()
}

func keySelectMember(a *App, msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "enter" && a.picker.FilterState() != list.Filtering {
		if a.searching != "" {
			return nil
		}
		if !a.membersLoaded {
			return a.loadMembers()
		}
		item, ok := a.picker.SelectedItem().(memberItem)
		if !ok {
			return nil
		}
		a.searching = item.id
		a.notice = ""
		return a.fetchMember(fetchSelect, item.id)
	}
	var cmd tea.Cmd
	a.picker, cmd = a.picker.Update(msg)
	return cmd
}

func (a *App) handleMembersLoaded(msg membersLoadedMsg) tea.Cmd {
	if msg.err != nil {
		a.logger.Warnw("list members", "error", msg.err)
		a.notice = "Impossible de charger la liste des membres, entrée pour réessayer."
		return nil
	}
	items := make([]list.Item, 0, len(msg.members))
	for _, m := range msg.members {
		items = append(items, memberItem{id: m.ID, label: m.Label()})
	}
	a.membersLoaded = true
	if a.notice != "" && a.searching == "" {
		a.notice = ""
	}
	return a.picker.SetItems(items)
}

func (a *App) handleMemberFetched(msg memberFetchedMsg) tea.Cmd {
	switch msg.purpose {
	case fetchSelect:
		return a.memberSelected(msg)
	case fetchRefresh:
		if msg.err != nil {
			a.logger.Warnw("refresh restored member", "member", msg.id, "error", msg.err)
			return nil
		}
		a.ctrl.ApplyMember(msg.snap)
		return nil
	}
	if a.stale(msg.origin) {
		return nil
	}
	if msg.err != nil {
		a.logger.Warnw("poll member", "purpose", msg.purpose.String(), "member", msg.id, "error", msg.err)
		if !portal.IsTransient(msg.err) {
			a.logWarn("Échec du suivi de %s : %v", msg.id, msg.err)
		}
		return nil
	}
	a.ctrl.ApplyMember(msg.snap)
	switch msg.purpose {
	case fetchMerge:
		if a.tracker != nil && a.tracker.ObserveMember(msg.snap) == wizard.MergeStatusValidated {
			a.logInfo("Date de fin à jour pour %s : %s", msg.id, msg.snap.Info.End.French())
		}
	case fetchAccount:
		a.logProgress(fmt.Sprintf("Statut de l'email de %s : %s", msg.id, msg.snap.PrimaryEmailStatus.Readable()))
	}
	return nil
}

func (a *App) memberSelected(msg memberFetchedMsg) tea.Cmd {
	if a.ctrl.Step() != wizard.StepSelectMember || a.searching != msg.id {
		return nil
	}
	a.searching = ""
	if msg.err != nil {
		if errors.Is(msg.err, portal.ErrNotFound) {
			a.notice = "Aucune info sur l'utilisateur"
		} else {
			a.logger.Warnw("fetch member", "member", msg.id, "error", msg.err)
			a.notice = "Impossible de joindre l'espace membre, réessaie."
		}
		return nil
	}
	if err := a.ctrl.Start(msg.snap); err != nil {
		a.persistFailed(err)
	}
	a.logInfo("Diagnostic de %s (%d étapes)", msg.snap.Info.DisplayName(), len(a.ctrl.Steps()))
	return nil
}

func renderSelectMember(a *App) string {
	var b strings.Builder
	if !a.membersLoaded {
		b.WriteString(detailTextStyle.Render("Chargement des membres..."))
	} else {
		b.WriteString(a.picker.View())
	}
	if a.searching != "" {
		b.WriteString("\n" + labelStyleRunning.Render("Recherche de "+a.searching+"..."))
	}
	if a.notice != "" {
		b.WriteString("\n" + labelStyleBlocked.Render(a.notice))
	}
	b.WriteString("\n" + detailTextStyle.Render("/ pour filtrer, entrée pour choisir, q pour quitter"))
	return b.String()
}

// Show member

func renderShowMember(a *App) string {
	snap, ok := a.ctrl.Member()
	if !ok {
		return renderUnknown(a)
	}
	info := snap.Info
	lines := []string{labelStyleRunning.Render(info.DisplayName())}
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("%s %s", labelStyleSkipped.Render(label+" :"), value))
	}
	field("Identifiant", info.ID)
	field("Rôle", info.Role)
	field("Startups", strings.Join(info.Startups, ", "))
	field("Date de fin", info.End.French())
	field("Employeur", info.EmployerName())
	field("GitHub", info.GitHub)
	if snap.EmailInfos != nil {
		email := snap.EmailInfos.Email
		if offer := snap.EmailInfos.Offer(); offer != "" {
			email = fmt.Sprintf("%s (%s)", email, offer)
		}
		field("Email", email)
	}
	field("Statut de l'email", snap.PrimaryEmailStatus.Readable())
	if snap.IsEmailBlocked {
		lines = append(lines, labelStyleBlocked.Render("Email bloqué"))
	}
	lines = append(lines, "")

	diag := member.Diagnose(snap)
	if !diag.HasProblems() {
		lines = append(lines, labelStyleReady.Render("Aucun problème détecté sur ce compte."))
		lines = append(lines, "", detailTextStyle.Render("entrée pour terminer"))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, labelStyleBlocked.Render("Problèmes"))
	for _, p := range diag.Problems {
		lines = append(lines, "  • "+p.Describe(snap))
	}
	if len(diag.Remedies) > 0 {
		lines = append(lines, "", labelStyleGate.Render("Pour réactiver le compte il faut :"))
		for i, r := range diag.Remedies {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, r))
		}
	}
	for _, note := range diag.Notes {
		lines = append(lines, detailTextStyle.Render(note))
	}
	lines = append(lines, "", detailTextStyle.Render("entrée pour commencer"))
	return strings.Join(lines, "\n")
}

// Update end date

func enterUpdateEndDate(a *App) tea.Cmd {
	a.endDate.SetValue(a.clock().AddDate(0, 6, 0).Format(frenchDateLayout))
	a.endDate.CursorEnd()
	return a.endDate.Focus()
}

func keyUpdateEndDate(a *App, msg tea.KeyMsg) tea.Cmd {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		a.endDate, cmd = a.endDate.Update(msg)
		return cmd
	}
	if a.submitting {
		return nil
	}
	end, err := parseFrenchDate(a.endDate.Value())
	if err != nil {
		a.formErr = "Date invalide, format attendu jj/mm/aaaa."
		a.fieldErrs = nil
		return nil
	}
	if end.Before(portal.MinEndDate.Time) {
		a.formErr = "La date doit être postérieure au " + portal.MinEndDate.French() + "."
		a.fieldErrs = nil
		return nil
	}
	snap, _ := a.ctrl.Member()
	a.submitting = true
	a.formErr = ""
	a.fieldErrs = nil
	return a.submitEndDate(a.ctrl.MemberID(), portal.EndDateChange{
		End:      end,
		Role:     snap.Info.Role,
		Startups: snap.Info.Startups,
	})
}

func parseFrenchDate(value string) (member.Date, error) {
	t, err := time.Parse(frenchDateLayout, strings.TrimSpace(value))
	if err != nil {
		return member.Date{}, fmt.Errorf("tui: parse date %q: %w", value, err)
	}
	return member.NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (a *App) handleEndDateSubmitted(msg endDateSubmittedMsg) tea.Cmd {
	if a.stale(msg.origin) {
		return nil
	}
	a.submitting = false
	if msg.err != nil {
		a.showFormError(msg.err, portal.EndDateField, "la mise à jour de la date de fin")
		return nil
	}
	if err := a.ctrl.SetPullRequestURL(msg.url); err != nil {
		a.persistFailed(err)
	}
	a.logInfo("PR ouverte pour %s : %s", msg.memberID, msg.url)
	return a.advance()
}

func (a *App) showFormError(err error, field, action string) {
	var verr *portal.ValidationError
	if errors.As(err, &verr) {
		a.formErr = verr.Message
		a.fieldErrs = verr.FieldErrors(field)
		return
	}
	a.fieldErrs = nil
	if errors.Is(err, portal.ErrUnauthorized) {
		a.formErr = "Tu dois être connecté à l'espace membre."
		return
	}
	a.logger.Errorw("portal request failed", "action", action, "member", a.ctrl.MemberID(), "error", err)
	a.logError("Échec de %s : %v", action, err)
	a.formErr = "Une erreur est survenue, réessaie dans un instant."
}

func (a *App) renderFormErrors() []string {
	var lines []string
	if a.formErr != "" {
		lines = append(lines, labelStyleBlocked.Render(a.formErr))
	}
	for _, e := range a.fieldErrs {
		lines = append(lines, labelStyleBlocked.Render("  • "+e))
	}
	return lines
}

func renderUpdateEndDate(a *App) string {
	snap, _ := a.ctrl.Member()
	lines := []string{
		labelStyleRunning.Render("Mettre à jour la date de fin de " + snap.Info.DisplayName()),
		detailTextStyle.Render("Date de fin actuelle : " + snap.Info.End.French()),
		"",
		"Nouvelle date de fin : " + a.endDate.View(),
	}
	lines = append(lines, a.renderFormErrors()...)
	if a.submitting {
		lines = append(lines, labelStyleRunning.Render("Envoi en cours..."))
	}
	lines = append(lines, "", detailTextStyle.Render("entrée pour valider, une PR sera ouverte sur le dépôt"))
	return strings.Join(lines, "\n")
}

// Await end date applied

func enterAwaitEndDate(a *App) tea.Cmd {
	a.tracker = wizard.NewMergeTracker(a.ctrl.PullRequestURL(), a.clock)
	if a.tracker.URL() == "" {
		a.tracker.ObserveOpen(nil)
	}
	if snap, ok := a.ctrl.Member(); ok {
		a.tracker.ObserveMember(snap)
	}
	return nil
}

func keyAwaitEndDate(a *App, msg tea.KeyMsg) tea.Cmd {
	if msg.String() != "enter" {
		return nil
	}
	if a.tracker == nil || !a.tracker.Validated() {
		a.notice = "La date de fin n'est pas encore à jour."
		return nil
	}
	return a.advance()
}

func (a *App) handleChangeRequests(msg changeRequestsMsg) tea.Cmd {
	if a.stale(msg.origin) || a.tracker == nil {
		return nil
	}
	if msg.err != nil {
		a.logger.Warnw("list change requests", "error", msg.err)
		return nil
	}
	if a.tracker.ObserveOpen(msg.urls) != wizard.MergeStatusMerged {
		return nil
	}
	a.logInfo("PR mergée : %s", a.tracker.URL())
	return a.fetchMember(fetchMerge, a.ctrl.MemberID())
}

func renderAwaitEndDate(a *App) string {
	lines := []string{labelStyleRunning.Render("Mise à jour de la date de fin")}
	if url := a.ctrl.PullRequestURL(); url != "" {
		lines = append(lines, detailTextStyle.Render("PR : "+url))
	}
	status := wizard.MergeStatusNotMerged
	if a.tracker != nil {
		status = a.tracker.Status()
	}
	switch status {
	case wizard.MergeStatusNotMerged:
		lines = append(lines, labelStyleGate.Render("La PR n'est pas encore mergée. Demande à un membre de l'équipe de la merger."))
	case wizard.MergeStatusMerged:
		lines = append(lines, labelStyleGate.Render("La PR a été mergée, la date de fin sera prise en compte d'ici quelques minutes."))
	case wizard.MergeStatusValidated:
		snap, _ := a.ctrl.Member()
		lines = append(lines, labelStyleReady.Render("La date de fin est à jour : "+snap.Info.End.French()))
	}
	if remaining := a.countdown(loopMerge); remaining > 0 {
		lines = append(lines, detailTextStyle.Render(fmt.Sprintf("Prochaine vérification dans %ds", remaining)))
	}
	if a.notice != "" {
		lines = append(lines, labelStyleBlocked.Render(a.notice))
	}
	if status == wizard.MergeStatusValidated {
		lines = append(lines, "", detailTextStyle.Render("entrée pour passer à l'étape suivante"))
	}
	return strings.Join(lines, "\n")
}

// Create email

func enterCreateEmail(a *App) tea.Cmd {
	snap, ok := a.ctrl.Member()
	if ok && snap.HasEmailInfos {
		a.logInfo("%s a déjà un email, étape de création ignorée", snap.ID())
		return a.advance()
	}
	a.recovery.SetValue(snap.SecondaryEmail)
	a.recovery.CursorEnd()
	a.loginEmail.SetValue("")
	return nil
}

func keyCreateEmail(a *App, msg tea.KeyMsg) tea.Cmd {
	if !a.gate.Checked() {
		return nil
	}
	if !a.gate.Open() {
		if msg.String() != "enter" {
			var cmd tea.Cmd
			a.loginEmail, cmd = a.loginEmail.Update(msg)
			return cmd
		}
		if a.submitting {
			return nil
		}
		a.submitting = true
		a.formErr = ""
		a.fieldErrs = nil
		return a.requestLoginLink(strings.TrimSpace(a.loginEmail.Value()))
	}
	if msg.String() != "enter" {
		var cmd tea.Cmd
		a.recovery, cmd = a.recovery.Update(msg)
		return cmd
	}
	if a.submitting {
		return nil
	}
	a.submitting = true
	a.formErr = ""
	a.fieldErrs = nil
	return a.createMailbox(a.ctrl.MemberID(), strings.TrimSpace(a.recovery.Value()))
}

func (a *App) handleSessionChecked(msg sessionCheckedMsg) tea.Cmd {
	if a.stale(msg.origin) || a.gate.Open() {
		return nil
	}
	operator := msg.operator
	if msg.err != nil {
		if !errors.Is(msg.err, portal.ErrUnauthorized) {
			a.logger.Warnw("check operator session", "error", msg.err)
		}
		operator = ""
	}
	a.gate.Observe(operator)
	if !a.gate.Open() {
		return a.loginEmail.Focus()
	}
	a.loginEmail.Blur()
	a.logInfo("Connecté en tant que %s", a.gate.Operator())
	return a.recovery.Focus()
}

func (a *App) handleLoginLink(msg loginLinkMsg) tea.Cmd {
	if a.stale(msg.origin) {
		return nil
	}
	a.submitting = false
	if msg.err != nil {
		a.showFormError(msg.err, "emailInput", "l'envoi du lien de connexion")
		return nil
	}
	a.gate.MarkLoginSent()
	a.logInfo("Lien de connexion envoyé à %s", msg.email)
	return a.checkSession()
}

func (a *App) handleMailboxCreated(msg mailboxCreatedMsg) tea.Cmd {
	if a.stale(msg.origin) {
		return nil
	}
	a.submitting = false
	if msg.err != nil {
		if errors.Is(msg.err, portal.ErrUnauthorized) {
			a.gate = wizard.Gate{}
		}
		a.showFormError(msg.err, "to_email", "la création de l'email")
		return nil
	}
	a.logInfo("Création de l'email demandée pour %s", msg.memberID)
	return a.advance()
}

func renderCreateEmail(a *App) string {
	snap, _ := a.ctrl.Member()
	lines := []string{labelStyleRunning.Render("Re-créer l'email de " + snap.Info.DisplayName())}
	if !a.gate.Checked() {
		lines = append(lines, detailTextStyle.Render("Vérification de ta connexion..."))
		return strings.Join(lines, "\n")
	}
	if a.gate.NeedsLogin() {
		if a.gate.Open() {
			lines = append(lines, labelStyleReady.Render("Tu es maintenant connecté en tant que "+a.gate.Operator()+"."))
		} else {
			lines = append(lines, labelStyleGate.Render("Tu dois être connecté à l'espace membre pour créer l'email."))
			if a.gate.LoginSent() {
				lines = append(lines, detailTextStyle.Render("Un lien de connexion t'a été envoyé, clique dessus puis reviens ici."))
			}
			lines = append(lines, "Ton email : "+a.loginEmail.View())
			if remaining := a.countdown(loopConnectivity); remaining > 0 {
				lines = append(lines, detailTextStyle.Render(fmt.Sprintf("Prochaine vérification dans %ds", remaining)))
			}
		}
		lines = append(lines, "")
	}
	form := []string{
		"Email de récupération : " + a.recovery.View(),
		fmt.Sprintf("L'email créé sera %s@beta.gouv.fr", snap.ID()),
	}
	if snap.HasPublicServiceEmail {
		form = append(form, labelStyleGate.Render("L'email de récupération est une adresse de l'administration, préfère une adresse personnelle."))
	}
	block := strings.Join(form, "\n")
	if !a.gate.Open() {
		block = lipgloss.NewStyle().Faint(true).Render(block)
	}
	lines = append(lines, block)
	lines = append(lines, a.renderFormErrors()...)
	if a.submitting {
		lines = append(lines, labelStyleRunning.Render("Envoi en cours..."))
	}
	return strings.Join(lines, "\n")
}

// Await account creation

func renderAwaitAccount(a *App) string {
	snap, _ := a.ctrl.Member()
	lines := []string{
		labelStyleRunning.Render("Création de l'email en cours"),
		fmt.Sprintf("Statut : %s", snap.PrimaryEmailStatus.Readable()),
	}
	if snap.EmailActive() {
		lines = append(lines, labelStyleReady.Render("L'email est actif, tu peux passer à la suite."))
	} else {
		lines = append(lines, labelStyleGate.Render("La création peut prendre quelques minutes, tu peux passer à la suite sans attendre."))
		if remaining := a.countdown(loopAccount); remaining > 0 {
			lines = append(lines, detailTextStyle.Render(fmt.Sprintf("Prochaine vérification dans %ds", remaining)))
		}
	}
	lines = append(lines, "", detailTextStyle.Render("entrée pour continuer"))
	return strings.Join(lines, "\n")
}

// Instructions

func renderAccountCreated(a *App) string {
	snap, _ := a.ctrl.Member()
	return strings.Join([]string{
		labelStyleReady.Render("L'email a été créé"),
		fmt.Sprintf("%s va recevoir ses identifiants sur %s.", snap.Info.DisplayName(), recoveryAddress(snap)),
		"Il faut ensuite se connecter au webmail et définir un nouveau mot de passe.",
		"",
		detailTextStyle.Render("entrée pour continuer"),
	}, "\n")
}

func recoveryAddress(snap member.Snapshot) string {
	if snap.SecondaryEmail != "" {
		return snap.SecondaryEmail
	}
	return "son email secondaire"
}

func renderEmailSuspended(a *App) string {
	snap, _ := a.ctrl.Member()
	return strings.Join([]string{
		labelStyleGate.Render("Email suspendu"),
		fmt.Sprintf("Pour réactiver l'email de %s il faut changer son mot de passe.", snap.Info.DisplayName()),
		"Rendez-vous sur l'espace membre, rubrique \"Mon compte\", puis \"Changer mon mot de passe\".",
		"L'email sera réactivé dans les minutes qui suivent.",
		"",
		detailTextStyle.Render("entrée pour continuer"),
	}, "\n")
}

func renderEmailBlocked(a *App) string {
	snap, _ := a.ctrl.Member()
	return strings.Join([]string{
		labelStyleBlocked.Render("Email bloqué"),
		fmt.Sprintf("L'email de %s a été bloqué pour cause d'envoi de spam.", snap.Info.DisplayName()),
		"Il faut changer le mot de passe depuis l'espace membre pour le débloquer.",
		"",
		detailTextStyle.Render("entrée pour continuer"),
	}, "\n")
}

// Done

func keyDone(a *App, msg tea.KeyMsg) tea.Cmd {
	if msg.String() != "enter" {
		return nil
	}
	return a.finish()
}

func renderDone(a *App) string {
	snap, _ := a.ctrl.Member()
	return strings.Join([]string{
		labelStyleReady.Render("C'est terminé !"),
		fmt.Sprintf("Le compte de %s est en ordre.", snap.Info.DisplayName()),
		"",
		detailTextStyle.Render("entrée : Terminer"),
	}, "\n")
}
