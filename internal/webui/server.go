package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/config"
	"github.com/joshuabejaranog21-afk/software/internal/controller"
	"github.com/joshuabejaranog21-afk/software/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

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

type TokenSource interface {
	Token() (string, error)
}

type Deps struct {
	Controller   Controller
	Tokens       TokenSource
	DemoAccounts []config.DemoAccount
	Logger       *slog.Logger
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(logger(deps), handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Controller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	h := &handlers{deps: deps, log: logger(deps), confirms: newConfirmTokens()}
	mux.HandleFunc("/", h.index)
	mux.HandleFunc("/login", h.login)
	mux.HandleFunc("/logout", h.logout)
	mux.HandleFunc("/view/", h.navigate)
	mux.HandleFunc("/contacts", h.createContact)
	mux.HandleFunc("/contacts/", h.deleteContact)
	mux.HandleFunc("/users", h.createUser)
	mux.HandleFunc("/users/", h.deleteUser)
	return rejectCrossSite(mux)
}

// rejectCrossSite refuses state-changing requests sent from another origin.
func rejectCrossSite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			writeError(w, http.StatusForbidden, "cross-site request refused")
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				writeError(w, http.StatusForbidden, "cross-site request refused")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

const maxConfirmTokens = 64

// confirmTokens hands out single-use tokens binding a confirmation page to
// the delete it asks about.
type confirmTokens struct {
	mu     sync.Mutex
	action map[string]string
}

func newConfirmTokens() *confirmTokens {
	return &confirmTokens{action: make(map[string]string)}
}

func (c *confirmTokens) issue(action string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.action) >= maxConfirmTokens {
		c.action = make(map[string]string)
	}
	token := uuid.NewString()
	c.action[token] = action
	return token
}

// consume reports whether token was issued for action. A token works once.
func (c *confirmTokens) consume(token, action string) bool {
	if token == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	want, ok := c.action[token]
	if !ok {
		return false
	}
	delete(c.action, token)
	return want == action
}

func logger(deps Deps) *slog.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}

type handlers struct {
	deps     Deps
	log      *slog.Logger
	confirms *confirmTokens
}

type confirmation struct {
	Prompt string
	Action string
	Token  string
}

type pageData struct {
	State       controller.State
	Notices     []controller.Notification
	Demo        []config.DemoAccount
	Email       string
	Password    string
	TokenExpiry string
	Confirm     *confirmation
	SelfLabel   string
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data := h.page()
	if !data.State.LoggedIn() {
		if i, err := strconv.Atoi(r.URL.Query().Get("demo")); err == nil && i >= 0 && i < len(h.deps.DemoAccounts) {
			data.Email = h.deps.DemoAccounts[i].Email
			data.Password = h.deps.DemoAccounts[i].Password
		}
	}
	h.render(w, http.StatusOK, data)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := h.deps.Controller.Login(r.Context(), email, password); err != nil {
		h.log.Info("web login failed", "email", email, "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.deps.Controller.Logout(); err != nil {
		h.log.Error("web logout failed", "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) navigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/view/")
	v, ok := controller.ParseView(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	err := h.deps.Controller.Navigate(r.Context(), v)
	switch {
	case errors.Is(err, controller.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
		return
	case err != nil:
		h.log.Info("navigation failed", "view", v, "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) createContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	in := agenda.ContactInput{
		Nombre:   r.FormValue("nombre"),
		Email:    r.FormValue("email"),
		Telefono: r.FormValue("telefono"),
	}
	if err := h.deps.Controller.CreateContact(r.Context(), in); err != nil {
		h.log.Info("create contact failed", "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	in := agenda.NewUser{
		Nombre:   r.FormValue("nombre"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Rol:      r.FormValue("rol"),
	}
	err := h.deps.Controller.CreateUser(r.Context(), in)
	if errors.Is(err, controller.ErrForbidden) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.log.Info("create user failed", "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := deleteTarget(w, r, "/contacts/")
	if !ok {
		return
	}
	if r.Method == http.MethodGet {
		h.confirm(w, controller.PromptDeleteContact, r.URL.Path)
		return
	}
	confirmed := h.confirmed(r)
	if err := h.deps.Controller.DeleteContact(r.Context(), id, confirmed); err != nil {
		h.log.Info("delete contact not done", "id", id, "error", err)
	}
	redirectHome(w, r)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := deleteTarget(w, r, "/users/")
	if !ok {
		return
	}
	st := h.deps.Controller.Snapshot()
	if !st.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if r.Method == http.MethodGet {
		if st.User.ID == id {
			writeError(w, http.StatusBadRequest, "cannot delete the current user")
			return
		}
		h.confirm(w, controller.PromptDeleteUser, r.URL.Path)
		return
	}
	confirmed := h.confirmed(r)
	err := h.deps.Controller.DeleteUser(r.Context(), id, confirmed)
	if errors.Is(err, controller.ErrSelfDelete) {
		writeError(w, http.StatusBadRequest, "cannot delete the current user")
		return
	}
	if err != nil {
		h.log.Info("delete user not done", "id", id, "error", err)
	}
	redirectHome(w, r)
}

// deleteTarget parses "<prefix><id>/delete".
func deleteTarget(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return 0, false
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	raw, ok := strings.CutSuffix(rest, "/delete")
	if !ok || raw == "" || strings.Contains(raw, "/") {
		http.NotFound(w, r)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *handlers) confirm(w http.ResponseWriter, prompt, action string) {
	data := h.page()
	if data.State.LoggedIn() {
		data.Confirm = &confirmation{Prompt: prompt, Action: action, Token: h.confirms.issue(action)}
	}
	h.render(w, http.StatusOK, data)
}

// confirmed is yes only for a POST carrying confirm=yes and the token of a
// confirmation page shown for the same path.
func (h *handlers) confirmed(r *http.Request) controller.Always {
	if r.FormValue("confirm") != "yes" {
		return false
	}
	if !h.confirms.consume(r.FormValue("token"), r.URL.Path) {
		h.log.Warn("delete without a valid confirmation token", "path", r.URL.Path)
		return false
	}
	return true
}

func (h *handlers) page() pageData {
	st := h.deps.Controller.Snapshot()
	data := pageData{
		State:     st,
		Notices:   st.Notices(h.deps.Controller.Now()),
		Demo:      h.deps.DemoAccounts,
		SelfLabel: agenda.SelfRowLabel,
	}
	if st.LoggedIn() && h.deps.Tokens != nil {
		if token, err := h.deps.Tokens.Token(); err == nil {
			if info, err := session.ParseTokenInfo(token); err == nil && !info.ExpiresAt.IsZero() {
				data.TokenExpiry = info.ExpiresAt.Local().Format("2006-01-02 15:04")
			}
		}
	}
	return data
}

func (h *handlers) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pageTemplate.ExecuteTemplate(w, "page", data); err != nil {
		h.log.Error("render page failed", "error", err)
	}
}

// redirectHome is the full-reload path: every action ends on GET /.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("web request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"rid", reqID,
			"duration", time.Since(start),
		)
	})
}
