// Package tui renders the agenda client in a terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/controller"
)

const tickInterval = 500 * time.Millisecond

type Controller interface {
	Snapshot() controller.State
	Now() time.Time
	Login(ctx context.Context, email, password string) error
	Logout() error
	Navigate(ctx context.Context, v controller.View) error
	CreateUser(ctx context.Context, in agenda.NewUser) error
	DeleteUser(ctx context.Context, id int64, confirm controller.Confirmer) error
	CreateContact(ctx context.Context, in agenda.ContactInput) error
	DeleteContact(ctx context.Context, id int64, confirm controller.Confirmer) error
}

type doneMsg struct{ err error }

type tickMsg time.Time

type pendingDelete struct {
	user   bool
	id     int64
	prompt string
}

type Model struct {
	ctx  context.Context
	ctrl Controller
	demo []config.DemoAccount

	login    *form
	entry    *form
	cursor   int
	confirm  *pendingDelete
	demoNext int
	busy     bool
	lastErr  error
}

func New(ctx context.Context, ctrl Controller, demo []config.DemoAccount) Model {
	return Model{ctx: ctx, ctrl: ctrl, demo: demo, login: newLoginForm()}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// LastError is the error returned by the most recent controller command.
func (m Model) LastError() error {
	return m.lastErr
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case doneMsg:
		m.busy = false
		m.lastErr = msg.err
		m.clampCursor()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		st := m.ctrl.Snapshot()
		switch {
		case !st.LoggedIn():
			return m.updateLogin(msg, st)
		case m.confirm != nil:
			return m.updateConfirm(msg)
		case m.entry != nil:
			return m.updateEntry(msg, st)
		default:
			return m.updateBrowse(msg, st)
		}
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg, st controller.State) (tea.Model, tea.Cmd) {
	m.entry = nil
	m.confirm = nil
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		m.login.next()
	case tea.KeyShiftTab, tea.KeyUp:
		m.login.prev()
	case tea.KeyBackspace:
		m.login.backspace()
	case tea.KeyCtrlD:
		if len(m.demo) > 0 {
			acc := m.demo[m.demoNext%len(m.demo)]
			m.demoNext++
			m.login.set(0, acc.Email)
			m.login.set(1, acc.Password)
		}
	case tea.KeyEnter:
		email := strings.TrimSpace(m.login.value(0))
		password := m.login.value(1)
		if st.Loading || m.busy || email == "" || password == "" {
			return m, nil
		}
		m.busy = true
		m.login.set(1, "")
		return m, m.run(func(ctx context.Context) error {
			return m.ctrl.Login(ctx, email, password)
		})
	case tea.KeyRunes, tea.KeySpace:
		m.login.insert(msg.Runes)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg, st controller.State) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "1":
		return m.navigate(controller.ViewDashboard)
	case "2":
		return m.navigate(controller.ViewContacts)
	case "3":
		if !st.IsAdmin() {
			return m, nil
		}
		return m.navigate(controller.ViewUsers)
	case "l":
		m.busy = true
		return m, m.run(func(context.Context) error { return m.ctrl.Logout() })
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rows(st)-1 {
			m.cursor++
		}
	case "n":
		switch st.View {
		case controller.ViewContacts:
			m.entry = newContactForm()
		case controller.ViewUsers:
			if st.IsAdmin() {
				m.entry = newUserForm()
			}
		}
	case "d":
		m.confirm = m.deleteTarget(st)
	}
	return m, nil
}

func (m Model) deleteTarget(st controller.State) *pendingDelete {
	switch st.View {
	case controller.ViewContacts:
		if m.cursor < len(st.Contacts) {
			return &pendingDelete{id: st.Contacts[m.cursor].ID, prompt: controller.PromptDeleteContact}
		}
	case controller.ViewUsers:
		if st.IsAdmin() && m.cursor < len(st.Users) && st.CanDeleteUser(st.Users[m.cursor]) {
			return &pendingDelete{user: true, id: st.Users[m.cursor].ID, prompt: controller.PromptDeleteUser}
		}
	}
	return nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var yes bool
	switch msg.String() {
	case "y", "s":
		yes = true
	case "n", "esc":
	default:
		return m, nil
	}
	target := *m.confirm
	m.confirm = nil
	answer := controller.Always(yes)
	m.busy = true
	return m, m.run(func(ctx context.Context) error {
		if target.user {
			return m.ctrl.DeleteUser(ctx, target.id, answer)
		}
		return m.ctrl.DeleteContact(ctx, target.id, answer)
	})
}

func (m Model) updateEntry(msg tea.KeyMsg, st controller.State) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.entry = nil
	case tea.KeyTab, tea.KeyDown:
		m.entry.next()
	case tea.KeyShiftTab, tea.KeyUp:
		m.entry.prev()
	case tea.KeyBackspace:
		m.entry.backspace()
	case tea.KeyRunes, tea.KeySpace:
		m.entry.insert(msg.Runes)
	case tea.KeyEnter:
		return m.submitEntry(st)
	}
	return m, nil
}

func (m Model) submitEntry(st controller.State) (tea.Model, tea.Cmd) {
	f := m.entry
	var cmd tea.Cmd
	switch st.View {
	case controller.ViewContacts:
		in := agenda.ContactInput{Nombre: f.value(0), Email: f.value(1), Telefono: f.value(2)}
		if strings.TrimSpace(in.Nombre) == "" {
			return m, nil
		}
		cmd = m.run(func(ctx context.Context) error { return m.ctrl.CreateContact(ctx, in) })
	case controller.ViewUsers:
		in := agenda.NewUser{Nombre: f.value(0), Email: f.value(1), Password: f.value(2), Rol: f.value(3)}
		if strings.TrimSpace(in.Nombre) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
			return m, nil
		}
		cmd = m.run(func(ctx context.Context) error { return m.ctrl.CreateUser(ctx, in) })
	default:
		m.entry = nil
		return m, nil
	}
	m.entry = nil
	m.busy = true
	return m, cmd
}

func (m Model) navigate(v controller.View) (tea.Model, tea.Cmd) {
	m.cursor = 0
	m.entry = nil
	m.busy = true
	return m, m.run(func(ctx context.Context) error { return m.ctrl.Navigate(ctx, v) })
}

func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{err: fn(ctx)}
	}
}

func (m Model) rows(st controller.State) int {
	switch st.View {
	case controller.ViewContacts:
		return len(st.Contacts)
	case controller.ViewUsers:
		return len(st.Users)
	}
	return 0
}

func (m *Model) clampCursor() {
	n := m.rows(m.ctrl.Snapshot())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	st := m.ctrl.Snapshot()
	var b strings.Builder
	b.WriteString("Sistema de Agenda\n\n")

	if !st.LoggedIn() {
		m.viewLogin(&b, st)
		return b.String()
	}

	b.WriteString("[1] Dashboard  [2] Contactos")
	if st.IsAdmin() {
		b.WriteString("  [3] Usuarios")
	}
	b.WriteString("  [l] Cerrar Sesión  [q] Salir\n\n")
	m.viewNotices(&b, st)

	switch {
	case m.confirm != nil:
		b.WriteString(m.confirm.prompt + " [y/n]\n")
	case m.entry != nil:
		m.entry.render(&b)
		b.WriteString("\n[enter] guardar  [tab] siguiente campo  [esc] cancelar\n")
	case st.View == controller.ViewContacts:
		m.viewContacts(&b, st)
	case st.View == controller.ViewUsers && st.IsAdmin():
		m.viewUsers(&b, st)
	default:
		viewDashboard(&b, st)
	}
	return b.String()
}

func (m Model) viewLogin(b *strings.Builder, st controller.State) {
	if len(m.demo) > 0 {
		b.WriteString("Credenciales de Prueba ([ctrl+d] usar):\n")
		for _, d := range m.demo {
			b.WriteString("  " + d.Label + ": " + d.Email + "\n")
		}
		b.WriteString("\n")
	}
	m.viewNotices(b, st)
	m.login.render(b)
	if st.Loading || m.busy {
		b.WriteString("\nIniciando...\n")
	} else {
		b.WriteString("\n[enter] Iniciar Sesión  [tab] siguiente campo  [esc] salir\n")
	}
}

func (m Model) viewNotices(b *strings.Builder, st controller.State) {
	for _, n := range st.Notices(m.ctrl.Now()) {
		b.WriteString("[" + string(n.Kind) + "] " + n.Message + "\n")
	}
}

func viewDashboard(b *strings.Builder, st controller.State) {
	fmt.Fprintf(b, "Bienvenido, %s\n", st.User.Nombre)
	fmt.Fprintf(b, "Email: %s\n", st.User.Email)
	fmt.Fprintf(b, "Rol: %s\n", st.User.Rol)
	fmt.Fprintf(b, "Total de Contactos: %d\n", len(st.Contacts))
}

func (m Model) viewContacts(b *strings.Builder, st controller.State) {
	fmt.Fprintf(b, "Mis Contactos (%d)   [n] nuevo  [d] eliminar\n\n", len(st.Contacts))
	if len(st.Contacts) == 0 {
		b.WriteString("No tienes contactos aún.\n")
		return
	}
	for i, c := range st.Contacts {
		fmt.Fprintf(b, "%s%s | %s | %s\n", m.marker(i), c.Nombre, c.EmailOrPlaceholder(), c.TelefonoOrPlaceholder())
	}
}

func (m Model) viewUsers(b *strings.Builder, st controller.State) {
	fmt.Fprintf(b, "Gestión de Usuarios (%d)   [n] nuevo  [d] eliminar\n\n", len(st.Users))
	for i, u := range st.Users {
		tag := ""
		if !st.CanDeleteUser(u) {
			tag = "  (" + agenda.SelfRowLabel + ")"
		}
		fmt.Fprintf(b, "%s%s | %s | %s%s\n", m.marker(i), u.Nombre, u.Email, u.Rol, tag)
	}
}

func (m Model) marker(i int) string {
	if i == m.cursor {
		return "> "
	}
	return "  "
}

// Run starts the terminal program and blocks until the user quits.
func Run(ctx context.Context, ctrl Controller, demo []config.DemoAccount) error {
	p := tea.NewProgram(New(ctx, ctrl, demo), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
