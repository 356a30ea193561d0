package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ActionLogin          = "session.login"
	ActionLogout         = "session.logout"
	ActionSessionExpired = "session.expired"
	ActionContactCreate  = "contact.create"
	ActionContactUpdate  = "contact.update"
	ActionContactDelete  = "contact.delete"
	ActionUserCreate     = "user.create"
	ActionUserDelete     = "user.delete"

	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

type Entry struct {
	At      string `json:"at"`
	Actor   string `json:"actor,omitempty"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Journal appends one JSON line per client action. A nil Journal or one
// without a path records nothing.
type Journal struct {
	path    string
	nowFunc func() time.Time

	mu sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{path: path, nowFunc: time.Now}
}

func (j *Journal) Record(e Entry) error {
	if j == nil || j.path == "" {
		return nil
	}
	if e.At == "" {
		e.At = j.nowFunc().UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("mkdir journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}
