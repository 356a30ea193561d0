package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
	"github.com/joshuabejaranog21-afk/software/internal/session"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx answer from the agenda service. Detail holds the
// service's "detail" field when it was a plain string.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("agenda api: status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("agenda api: status %d", e.Status)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Detail returns the server-provided message carried by err, if any.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// TokenStore is the part of the persisted session the client needs.
type TokenStore interface {
	Token() (string, error)
	Clear() error
}

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        agenda.User `json:"user"`
}

type Verification struct {
	Valid bool           `json:"valid"`
	User  map[string]any `json:"user"`
}

type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenStore
	log            *slog.Logger
	onUnauthorized func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets a per-request timeout; zero keeps requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUnauthorizedHandler registers fn to run after a 401 has cleared the
// stored session.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		tokens:  tokens,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &out); err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

func (c *Client) VerifyToken(ctx context.Context) (Verification, error) {
	var out Verification
	if err := c.do(ctx, http.MethodGet, "/verify-token", nil, &out); err != nil {
		return Verification{}, err
	}
	return out, nil
}

func (c *Client) GetUsers(ctx context.Context) ([]agenda.User, error) {
	var out []agenda.User
	if err := c.do(ctx, http.MethodGet, "/usuarios", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, u agenda.NewUser) (agenda.User, error) {
	var out agenda.User
	if err := c.do(ctx, http.MethodPost, "/usuarios", u, &out); err != nil {
		return agenda.User{}, err
	}
	return out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/usuarios/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) GetContacts(ctx context.Context) ([]agenda.Contact, error) {
	var out []agenda.Contact
	if err := c.do(ctx, http.MethodGet, "/contactos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateContact(ctx context.Context, in agenda.ContactInput) (agenda.Contact, error) {
	var out agenda.Contact
	if err := c.do(ctx, http.MethodPost, "/contactos", in, &out); err != nil {
		return agenda.Contact{}, err
	}
	return out, nil
}

func (c *Client) UpdateContact(ctx context.Context, id int64, in agenda.ContactInput) (agenda.Contact, error) {
	var out agenda.Contact
	if err := c.do(ctx, http.MethodPut, "/contactos/"+strconv.FormatInt(id, 10), in, &out); err != nil {
		return agenda.Contact{}, err
	}
	return out, nil
}

func (c *Client) DeleteContact(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/contactos/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token()
	switch {
	case err == nil:
		req.Header.Set("Authorization", "Bearer "+token)
	case errors.Is(err, session.ErrNoSession):
	default:
		c.log.Warn("read session token failed", "error", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("agenda api request failed", "method", method, "path", path, "rid", reqID, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("agenda api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"rid", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode, Detail: parseDetail(raw)}
		if resp.StatusCode != http.StatusUnauthorized {
			c.log.Warn("agenda api error", "method", method, "path", path, "status", resp.StatusCode, "rid", reqID, "detail", apiErr.Detail)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) handleUnauthorized() {
	if err := c.tokens.Clear(); err != nil {
		c.log.Error("clear session after 401 failed", "error", err)
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// parseDetail only accepts a string detail; validation errors arrive as a
// list and are left to the caller's fallback message.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
