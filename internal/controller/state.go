package controller

import (
	"time"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
)

type View string

const (
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
	ViewContacts  View = "contacts"
	ViewUsers     View = "users"
)

func ParseView(s string) (View, bool) {
	switch v := View(s); v {
	case ViewLogin, ViewDashboard, ViewContacts, ViewUsers:
		return v, true
	}
	return "", false
}

type NotificationKind string

const (
	KindError   NotificationKind = "error"
	KindSuccess NotificationKind = "success"
)

// Notification is a message that stops showing once ExpiresAt passes.
// The zero value is never active.
type Notification struct {
	Kind      NotificationKind
	Message   string
	ExpiresAt time.Time
}

func (n Notification) Active(now time.Time) bool {
	return n.Message != "" && now.Before(n.ExpiresAt)
}

// State is a copy of the controller state. Mutating it has no effect on
// the controller.
type State struct {
	User     *agenda.User
	View     View
	Users    []agenda.User
	Contacts []agenda.Contact
	Loading  bool
	Error    Notification
	Success  Notification
}

func (s State) LoggedIn() bool {
	return s.User != nil
}

func (s State) IsAdmin() bool {
	return s.User != nil && s.User.IsAdmin()
}

// CanDeleteUser is false for the session user's own row.
func (s State) CanDeleteUser(u agenda.User) bool {
	return s.User != nil && s.User.ID != u.ID
}

// Notices returns the notifications still active at now, error first.
func (s State) Notices(now time.Time) []Notification {
	var out []Notification
	if s.Error.Active(now) {
		out = append(out, s.Error)
	}
	if s.Success.Active(now) {
		out = append(out, s.Success)
	}
	return out
}

// appState is the single owner of mutable client state.
type appState struct {
	user     *agenda.User
	view     View
	users    []agenda.User
	contacts []agenda.Contact
	loading  bool
	errMsg   Notification
	success  Notification
}

func (a *appState) snapshot() State {
	st := State{
		View:     a.view,
		Users:    append([]agenda.User(nil), a.users...),
		Contacts: append([]agenda.Contact(nil), a.contacts...),
		Loading:  a.loading,
		Error:    a.errMsg,
		Success:  a.success,
	}
	if a.user != nil {
		u := *a.user
		st.User = &u
	}
	return st
}

func (a *appState) reset() {
	*a = appState{view: ViewLogin}
}
