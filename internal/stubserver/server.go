// Package stubserver is an in-process stand-in for the agenda REST service,
// used by tests that exercise the client end to end.
package stubserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
)

// Request is one call the stub has received.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type failure struct {
	method string
	path   string
	status int
	body   any
}

type Server struct {
	dir    *Directory
	tokens *tokenIssuer
	router *mux.Router

	mu       sync.Mutex
	requests []Request
	failures []failure
}

// New returns a stub that signs tokens with a random key generated for this
// instance.
func New() *Server {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("stubserver: generate signing key: %v", err))
	}
	return NewWithKey(key)
}

// NewWithKey returns a stub that signs tokens with key, so tokens survive a
// restart of the stub.
func NewWithKey(key []byte) *Server {
	if len(key) == 0 {
		return New()
	}
	s := &Server{
		dir:    NewDirectory(),
		tokens: newTokenIssuer(append([]byte(nil), key...)),
	}
	s.router = s.routes()
	return s
}

// Start serves the stub on a loopback listener. Callers close the returned
// server.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-Id"),
	})
	for i, f := range s.failures {
		if f.method == r.Method && f.path == r.URL.Path {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			s.mu.Unlock()
			writeJSON(w, f.status, f.body)
			return
		}
	}
	s.mu.Unlock()

	s.router.ServeHTTP(w, r)
}

func (s *Server) Directory() *Directory {
	return s.dir
}

// Seed creates an account directly, bypassing the admin check.
func (s *Server) Seed(nombre, email, password, rol string) agenda.User {
	u, err := s.dir.CreateUser(agenda.NewUser{Nombre: nombre, Email: email, Password: password, Rol: rol})
	if err != nil {
		panic(fmt.Sprintf("seed %s: %v", email, err))
	}
	return u
}

func (s *Server) IssueToken(u agenda.User) (string, error) {
	return s.tokens.issue(u)
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.tokens.revokeAll()
}

// SetClock replaces the clock used to issue and check token expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.tokens.mu.Lock()
	s.tokens.nowFunc = now
	s.tokens.mu.Unlock()
}

// FailNext makes the next request matching method and path answer with
// status and body instead of reaching the handler.
func (s *Server) FailNext(method, path string, status int, body any) {
	s.mu.Lock()
	s.failures = append(s.failures, failure{method: method, path: path, status: status, body: body})
	s.mu.Unlock()
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/verify-token", s.withClaims(s.handleVerify)).Methods(http.MethodGet)
	r.HandleFunc("/usuarios", s.withAdmin(s.handleListUsers)).Methods(http.MethodGet)
	r.HandleFunc("/usuarios", s.withAdmin(s.handleCreateUser)).Methods(http.MethodPost)
	r.HandleFunc("/usuarios/{id:[0-9]+}", s.withAdmin(s.handleDeleteUser)).Methods(http.MethodDelete)
	r.HandleFunc("/contactos", s.withClaims(s.handleListContacts)).Methods(http.MethodGet)
	r.HandleFunc("/contactos", s.withClaims(s.handleCreateContact)).Methods(http.MethodPost)
	r.HandleFunc("/contactos/{id:[0-9]+}", s.withClaims(s.handleUpdateContact)).Methods(http.MethodPut)
	r.HandleFunc("/contactos/{id:[0-9]+}", s.withClaims(s.handleDeleteContact)).Methods(http.MethodDelete)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

type claimsHandler func(w http.ResponseWriter, r *http.Request, c Claims)

func (s *Server) withClaims(next claimsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeDetail(w, http.StatusForbidden, "Not authenticated")
			return
		}
		claims, err := s.tokens.verify(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Token inválido")
			return
		}
		next(w, r, claims)
	}
}

func (s *Server) withAdmin(next claimsHandler) http.HandlerFunc {
	return s.withClaims(func(w http.ResponseWriter, r *http.Request, c Claims) {
		if c.Rol != agenda.RoleAdmin {
			writeDetail(w, http.StatusForbidden, "No tienes permisos de administrador")
			return
		}
		next(w, r, c)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "body", "invalid request body")
		return
	}

	u, err := s.dir.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			writeDetail(w, http.StatusUnauthorized, "Usuario no encontrado")
			return
		}
		writeDetail(w, http.StatusUnauthorized, "Credenciales incorrectas")
		return
	}
	token, err := s.tokens.issue(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         u,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, _ *http.Request, c Claims) {
	user := map[string]any{"sub": c.Subject, "id": c.UserID, "rol": c.Rol}
	if c.ExpiresAt != nil {
		user["exp"] = c.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request, _ Claims) {
	writeJSON(w, http.StatusOK, s.dir.Users())
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, _ Claims) {
	var req agenda.NewUser
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "body", "invalid request body")
		return
	}
	created, err := s.dir.CreateUser(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			writeDetail(w, http.StatusBadRequest, "El email ya está registrado")
		case errors.Is(err, ErrInvalidInput):
			writeValidationError(w, "body", err.Error())
		default:
			writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, c Claims) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if id == c.UserID {
		writeDetail(w, http.StatusBadRequest, "No puedes eliminarte a ti mismo")
		return
	}
	if err := s.dir.DeleteUser(id); err != nil {
		writeDetail(w, http.StatusNotFound, "Usuario no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Usuario eliminado correctamente"})
}

func (s *Server) handleListContacts(w http.ResponseWriter, _ *http.Request, c Claims) {
	writeJSON(w, http.StatusOK, s.dir.Contacts(c.UserID))
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request, c Claims) {
	var req agenda.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "body", "invalid request body")
		return
	}
	created, err := s.dir.CreateContact(c.UserID, req)
	if err != nil {
		writeValidationError(w, "nombre", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request, c Claims) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req agenda.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "body", "invalid request body")
		return
	}
	updated, err := s.dir.UpdateContact(c.UserID, id, req)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			writeDetail(w, http.StatusNotFound, "Contacto no encontrado")
			return
		}
		writeValidationError(w, "nombre", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request, c Claims) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.dir.DeleteContact(c.UserID, id); err != nil {
		writeDetail(w, http.StatusNotFound, "Contacto no encontrado")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Contacto eliminado correctamente"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeValidationError(w, "id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidationError answers the way the service reports schema errors:
// detail is a list, not a string.
func writeValidationError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}
