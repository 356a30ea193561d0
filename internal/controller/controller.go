package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/apiclient"
	"github.com/joshuabejaranog21-afk/software/internal/audit"
	"github.com/joshuabejaranog21-afk/software/internal/session"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("admin role required")
	ErrSelfDelete       = errors.New("cannot delete the current user")
	ErrCancelled        = errors.New("cancelled by user")
	ErrRequiredField    = errors.New("required field missing")
	ErrInvalidView      = errors.New("invalid view")
	ErrBusy             = errors.New("login already in progress")
	// ErrStale reports a result that arrived after the session it belonged
	// to had ended. It is never shown to the user.
	ErrStale = errors.New("session changed during request")
)

const (
	MsgLoginOK        = "Login exitoso!"
	MsgLoginFailed    = "Error en el login"
	MsgSessionExpired = "Tu sesión ha expirado. Inicia sesión nuevamente."

	MsgLoadUsersFailed    = "Error cargando usuarios"
	MsgLoadContactsFailed = "Error cargando contactos"

	MsgUserCreated      = "Usuario creado exitosamente"
	MsgUserCreateFailed = "Error creando usuario"
	MsgUserDeleted      = "Usuario eliminado"
	MsgUserDeleteFailed = "Error eliminando usuario"

	MsgContactCreated      = "Contacto creado exitosamente"
	MsgContactCreateFailed = "Error creando contacto"
	MsgContactUpdated      = "Contacto actualizado"
	MsgContactUpdateFailed = "Error actualizando contacto"
	MsgContactDeleted      = "Contacto eliminado"
	MsgContactDeleteFailed = "Error eliminando contacto"

	PromptDeleteUser    = "¿Estás seguro de eliminar este usuario?"
	PromptDeleteContact = "¿Estás seguro de eliminar este contacto?"
)

const (
	DefaultErrorTTL   = 5 * time.Second
	DefaultSuccessTTL = 3 * time.Second
)

type API interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResult, error)
	GetUsers(ctx context.Context) ([]agenda.User, error)
	CreateUser(ctx context.Context, u agenda.NewUser) (agenda.User, error)
	DeleteUser(ctx context.Context, id int64) error
	GetContacts(ctx context.Context) ([]agenda.Contact, error)
	CreateContact(ctx context.Context, in agenda.ContactInput) (agenda.Contact, error)
	UpdateContact(ctx context.Context, id int64, in agenda.ContactInput) (agenda.Contact, error)
	DeleteContact(ctx context.Context, id int64) error
}

type SessionStore interface {
	Load() (session.Session, error)
	Save(s session.Session) error
	Clear() error
}

// Confirmer asks the person at the keyboard a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Always answers every prompt with the same value.
type Always bool

func (a Always) Confirm(string) bool { return bool(a) }

type Options struct {
	ErrorTTL   time.Duration
	SuccessTTL time.Duration
	Journal    *audit.Journal
	Logger     *slog.Logger
	Now        func() time.Time
}

type Controller struct {
	api        API
	sessions   SessionStore
	journal    *audit.Journal
	log        *slog.Logger
	nowFunc    func() time.Time
	errorTTL   time.Duration
	successTTL time.Duration

	mu sync.Mutex
	st appState
	// epoch changes whenever the session starts or ends; results from an
	// older epoch are dropped.
	epoch uint64
}

func New(api API, sessions SessionStore, opts Options) (*Controller, error) {
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	c := &Controller{
		api:        api,
		sessions:   sessions,
		journal:    opts.Journal,
		log:        opts.Logger,
		nowFunc:    opts.Now,
		errorTTL:   opts.ErrorTTL,
		successTTL: opts.SuccessTTL,
		st:         appState{view: ViewLogin},
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	if c.errorTTL <= 0 {
		c.errorTTL = DefaultErrorTTL
	}
	if c.successTTL <= 0 {
		c.successTTL = DefaultSuccessTTL
	}
	return c, nil
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// Now is the clock notifications are measured against.
func (c *Controller) Now() time.Time {
	return c.nowFunc()
}

// RestoreSession picks up a session persisted by an earlier run. The token
// is not checked with the server; the first rejected request ends it.
func (c *Controller) RestoreSession(ctx context.Context) (bool, error) {
	sess, err := c.sessions.Load()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return false, nil
		}
		return false, fmt.Errorf("restore session: %w", err)
	}

	c.mu.Lock()
	u := sess.User
	c.st.reset()
	c.st.user = &u
	c.st.view = ViewDashboard
	c.epoch++
	c.mu.Unlock()

	c.log.Info("session restored", "email", u.Email, "rol", u.Rol)
	if err := c.loadFor(ctx, ViewDashboard); err != nil {
		c.log.Warn("dashboard load after restore failed", "error", err)
	}
	return true, nil
}

func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.mu.Lock()
	if c.st.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.st.loading = true
	c.st.errMsg = Notification{}
	epoch := c.epoch
	c.mu.Unlock()

	res, err := c.api.Login(ctx, email, password)
	if c.staleLogin(epoch) {
		return ErrStale
	}
	if err == nil {
		err = c.sessions.Save(session.Session{Token: res.AccessToken, User: res.User})
		if err != nil {
			err = fmt.Errorf("persist session: %w", err)
		}
	}
	if err != nil {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return ErrStale
		}
		c.st.loading = false
		c.setErrorLocked(messageFor(err, MsgLoginFailed))
		c.mu.Unlock()
		c.record(email, audit.ActionLogin, "", audit.OutcomeFailed, err)
		c.log.Warn("login failed", "email", email, "error", err)
		return fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// A logout landed while the session was being written.
		c.mu.Unlock()
		if err := c.sessions.Clear(); err != nil {
			c.log.Error("clear stored session failed", "error", err)
		}
		return ErrStale
	}
	u := res.User
	c.st.reset()
	c.st.user = &u
	c.st.view = ViewDashboard
	c.setSuccessLocked(MsgLoginOK)
	c.epoch++
	c.mu.Unlock()

	c.record(u.Email, audit.ActionLogin, "", audit.OutcomeSuccess, nil)
	c.log.Info("login succeeded", "email", u.Email, "rol", u.Rol)
	if err := c.loadFor(ctx, ViewDashboard); err != nil {
		c.log.Warn("dashboard load after login failed", "error", err)
	}
	return nil
}

// staleLogin reports whether the session changed while a login was in flight.
func (c *Controller) staleLogin(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		return false
	}
	c.log.Info("login result dropped after session change")
	return true
}

func (c *Controller) Logout() error {
	c.mu.Lock()
	actor := c.actorLocked()
	c.st.reset()
	c.epoch++
	c.mu.Unlock()

	err := c.sessions.Clear()
	if err != nil {
		c.log.Error("clear stored session failed", "error", err)
		err = fmt.Errorf("logout: %w", err)
	}
	c.record(actor, audit.ActionLogout, "", outcomeOf(err), err)
	return err
}

// SessionExpired ends the session after the server rejected its token. The
// stored keys are already gone by the time it runs.
func (c *Controller) SessionExpired() {
	c.mu.Lock()
	if c.st.user == nil {
		c.mu.Unlock()
		return
	}
	actor := c.actorLocked()
	c.st.reset()
	c.setErrorLocked(MsgSessionExpired)
	c.epoch++
	c.mu.Unlock()

	c.record(actor, audit.ActionSessionExpired, "", audit.OutcomeSuccess, nil)
	c.log.Warn("session expired", "email", actor)
}

// Navigate switches the active view and loads what it shows.
func (c *Controller) Navigate(ctx context.Context, v View) error {
	c.mu.Lock()
	if c.st.user == nil {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	switch v {
	case ViewDashboard, ViewContacts:
	case ViewUsers:
		if !c.st.user.IsAdmin() {
			c.mu.Unlock()
			c.log.Warn("users view refused for non-admin")
			return ErrForbidden
		}
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidView, v)
	}
	c.st.view = v
	c.mu.Unlock()

	return c.loadFor(ctx, v)
}

func (c *Controller) loadFor(ctx context.Context, v View) error {
	switch v {
	case ViewDashboard, ViewContacts:
		return c.LoadContacts(ctx)
	case ViewUsers:
		return c.LoadUsers(ctx)
	}
	return nil
}

func (c *Controller) LoadUsers(ctx context.Context) error {
	epoch, err := c.begin(true)
	if err != nil {
		return err
	}
	users, err := c.api.GetUsers(ctx)
	if err != nil {
		c.fail(epoch, err, MsgLoadUsersFailed, false)
		return fmt.Errorf("load users: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrStale
	}
	c.st.users = users
	return nil
}

func (c *Controller) LoadContacts(ctx context.Context) error {
	epoch, err := c.begin(false)
	if err != nil {
		return err
	}
	contacts, err := c.api.GetContacts(ctx)
	if err != nil {
		c.fail(epoch, err, MsgLoadContactsFailed, false)
		return fmt.Errorf("load contacts: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return ErrStale
	}
	c.st.contacts = contacts
	return nil
}

func (c *Controller) CreateUser(ctx context.Context, in agenda.NewUser) error {
	in = in.Normalized()
	epoch, err := c.begin(true)
	if err != nil {
		return err
	}
	if in.Nombre == "" || in.Email == "" || in.Password == "" {
		err := fmt.Errorf("%w: nombre, email and password", ErrRequiredField)
		c.fail(epoch, err, MsgUserCreateFailed, false)
		return err
	}

	created, err := c.api.CreateUser(ctx, in)
	if err != nil {
		c.fail(epoch, err, MsgUserCreateFailed, true)
		c.record(c.actor(), audit.ActionUserCreate, in.Email, audit.OutcomeFailed, err)
		return fmt.Errorf("create user: %w", err)
	}
	c.succeed(epoch, MsgUserCreated)
	c.record(c.actor(), audit.ActionUserCreate, strconv.FormatInt(created.ID, 10), audit.OutcomeSuccess, nil)
	return c.reload(ctx, c.LoadUsers)
}

func (c *Controller) DeleteUser(ctx context.Context, id int64, confirm Confirmer) error {
	epoch, err := c.begin(true)
	if err != nil {
		return err
	}
	c.mu.Lock()
	self := c.st.user != nil && c.st.user.ID == id
	c.mu.Unlock()
	if self {
		return ErrSelfDelete
	}
	target := strconv.FormatInt(id, 10)
	if confirm == nil || !confirm.Confirm(PromptDeleteUser) {
		c.record(c.actor(), audit.ActionUserDelete, target, audit.OutcomeCancelled, nil)
		return ErrCancelled
	}

	if err := c.api.DeleteUser(ctx, id); err != nil {
		c.fail(epoch, err, MsgUserDeleteFailed, false)
		c.record(c.actor(), audit.ActionUserDelete, target, audit.OutcomeFailed, err)
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	c.succeed(epoch, MsgUserDeleted)
	c.record(c.actor(), audit.ActionUserDelete, target, audit.OutcomeSuccess, nil)
	return c.reload(ctx, c.LoadUsers)
}

func (c *Controller) CreateContact(ctx context.Context, in agenda.ContactInput) error {
	in = in.Normalized()
	epoch, err := c.begin(false)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.st.errMsg = Notification{}
	c.st.success = Notification{}
	c.mu.Unlock()
	if in.Nombre == "" {
		err := fmt.Errorf("%w: nombre", ErrRequiredField)
		c.fail(epoch, err, MsgContactCreateFailed, false)
		return err
	}

	created, err := c.api.CreateContact(ctx, in)
	if err != nil {
		c.fail(epoch, err, MsgContactCreateFailed, true)
		c.record(c.actor(), audit.ActionContactCreate, in.Nombre, audit.OutcomeFailed, err)
		return fmt.Errorf("create contact: %w", err)
	}
	c.succeed(epoch, MsgContactCreated)
	c.record(c.actor(), audit.ActionContactCreate, strconv.FormatInt(created.ID, 10), audit.OutcomeSuccess, nil)
	return c.reload(ctx, c.LoadContacts)
}

// UpdateContact has no trigger in either UI; it is kept for API parity.
func (c *Controller) UpdateContact(ctx context.Context, id int64, in agenda.ContactInput) error {
	in = in.Normalized()
	epoch, err := c.begin(false)
	if err != nil {
		return err
	}
	if in.Nombre == "" {
		err := fmt.Errorf("%w: nombre", ErrRequiredField)
		c.fail(epoch, err, MsgContactUpdateFailed, false)
		return err
	}

	target := strconv.FormatInt(id, 10)
	if _, err := c.api.UpdateContact(ctx, id, in); err != nil {
		c.fail(epoch, err, MsgContactUpdateFailed, true)
		c.record(c.actor(), audit.ActionContactUpdate, target, audit.OutcomeFailed, err)
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	c.succeed(epoch, MsgContactUpdated)
	c.record(c.actor(), audit.ActionContactUpdate, target, audit.OutcomeSuccess, nil)
	return c.reload(ctx, c.LoadContacts)
}

func (c *Controller) DeleteContact(ctx context.Context, id int64, confirm Confirmer) error {
	epoch, err := c.begin(false)
	if err != nil {
		return err
	}
	target := strconv.FormatInt(id, 10)
	if confirm == nil || !confirm.Confirm(PromptDeleteContact) {
		c.record(c.actor(), audit.ActionContactDelete, target, audit.OutcomeCancelled, nil)
		return ErrCancelled
	}

	if err := c.api.DeleteContact(ctx, id); err != nil {
		c.fail(epoch, err, MsgContactDeleteFailed, false)
		c.record(c.actor(), audit.ActionContactDelete, target, audit.OutcomeFailed, err)
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	c.succeed(epoch, MsgContactDeleted)
	c.record(c.actor(), audit.ActionContactDelete, target, audit.OutcomeSuccess, nil)
	return c.reload(ctx, c.LoadContacts)
}

// begin checks the caller may run a command and returns the session epoch
// the command belongs to.
func (c *Controller) begin(adminOnly bool) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.user == nil {
		return 0, ErrNotAuthenticated
	}
	if adminOnly && !c.st.user.IsAdmin() {
		return 0, ErrForbidden
	}
	return c.epoch, nil
}

// fail turns err into an error notification. A 401 already produced the
// session-expired notice, so it is left alone.
func (c *Controller) fail(epoch uint64, err error, fallback string, useDetail bool) {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return
	}
	msg := fallback
	if useDetail {
		msg = messageFor(err, fallback)
	}
	c.log.Warn("command failed", "message", fallback, "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.setErrorLocked(msg)
}

func (c *Controller) succeed(epoch uint64, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.setSuccessLocked(msg)
}

// reload refreshes a list after a successful write. Its failure is already
// shown as a notification and does not fail the write.
func (c *Controller) reload(ctx context.Context, load func(context.Context) error) error {
	if err := load(ctx); err != nil && !errors.Is(err, ErrStale) {
		c.log.Warn("reload after write failed", "error", err)
	}
	return nil
}

func (c *Controller) setErrorLocked(msg string) {
	c.st.errMsg = Notification{Kind: KindError, Message: msg, ExpiresAt: c.nowFunc().Add(c.errorTTL)}
}

func (c *Controller) setSuccessLocked(msg string) {
	c.st.success = Notification{Kind: KindSuccess, Message: msg, ExpiresAt: c.nowFunc().Add(c.successTTL)}
}

func (c *Controller) actor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actorLocked()
}

func (c *Controller) actorLocked() string {
	if c.st.user == nil {
		return ""
	}
	return c.st.user.Email
}

func (c *Controller) record(actor, action, target, outcome string, err error) {
	e := audit.Entry{Actor: actor, Action: action, Target: target, Outcome: outcome}
	if err != nil {
		e.Detail = err.Error()
	}
	if recErr := c.journal.Record(e); recErr != nil {
		c.log.Error("journal write failed", "action", action, "error", recErr)
	}
}

// messageFor prefers the server's own explanation over the fallback text.
func messageFor(err error, fallback string) string {
	if d := apiclient.Detail(err); d != "" {
		return d
	}
	return fallback
}

func outcomeOf(err error) string {
	if err != nil {
		return audit.OutcomeFailed
	}
	return audit.OutcomeSuccess
}
