// Package policy defines the capability model gating ledger mutations. The
// original design left authorization as an unimplemented seam; here every
// mutating operation takes an explicit capability and evaluates it before any
// state changes. What authority grants capabilities is out of scope.
package policy

// Action names a guarded ledger operation.
type Action string

const (
	ActionSubmit             Action = "submit"
	ActionRequestReveal      Action = "request_reveal"
	ActionRequestCountReveal Action = "request_count_reveal"
)

// Capability is the authorization evidence a caller presents: who they are
// and which actions they may perform.
type Capability struct {
	Subject string
	Actions []Action
}

// Allows reports whether the capability covers the action.
func (c Capability) Allows(action Action) bool {
	for _, a := range c.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Unrestricted grants every action; used for local runs and tests.
func Unrestricted(subject string) Capability {
	return Capability{
		Subject: subject,
		Actions: []Action{ActionSubmit, ActionRequestReveal, ActionRequestCountReveal},
	}
}
