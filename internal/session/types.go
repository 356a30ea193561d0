package session

import (
	"errors"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
)

// Fixed keys of the persisted client state.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

var (
	ErrKeyNotFound = errors.New("session key not found")
	ErrNoSession   = errors.New("no stored session")
)

type Session struct {
	Token string
	User  agenda.User
}
