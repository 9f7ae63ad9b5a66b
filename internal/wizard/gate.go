package wizard

import "strings"

// Gate tracks whether the operator is authenticated before destructive actions
// such as mailbox creation. Until the first check completes nothing is shown;
// until a positive check the gated form stays disabled.
type Gate struct {
	checked          bool
	connected        bool
	alreadyConnected bool
	loginSent        bool
	operator         string
}

// Observe records one connectivity check. An empty operator means the check
// failed or the session is anonymous.
func (g *Gate) Observe(operator string) {
	operator = strings.TrimSpace(operator)
	if operator != "" {
		if !g.checked {
			g.alreadyConnected = true
		}
		g.connected = true
		g.operator = operator
	}
	g.checked = true
}

// Checked reports whether at least one check completed.
func (g *Gate) Checked() bool {
	return g.checked
}

// Open reports whether the gated actions are enabled.
func (g *Gate) Open() bool {
	return g.connected
}

// NeedsLogin reports whether the login notice is shown. It stays visible after a
// late login so the operator sees the confirmation.
func (g *Gate) NeedsLogin() bool {
	return g.checked && !g.alreadyConnected
}

// Operator returns the authenticated operator, if any.
func (g *Gate) Operator() string {
	return g.operator
}

// LoginSent reports whether a login link was requested.
func (g *Gate) LoginSent() bool {
	return g.loginSent
}

// MarkLoginSent records a successful login-link request.
func (g *Gate) MarkLoginSent() {
	g.loginSent = true
}
