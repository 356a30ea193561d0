package stubserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/joshuabejaranog21-afk/software/internal/agenda"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrContactNotFound    = errors.New("contact not found")
	ErrInvalidInput       = errors.New("invalid input")
)

type account struct {
	user         agenda.User
	passwordHash []byte
}

// Directory holds the users and their contacts in memory.
type Directory struct {
	cost int

	mu            sync.RWMutex
	users         map[int64]account
	contacts      map[int64]agenda.Contact
	nextUserID    int64
	nextContactID int64
}

func NewDirectory() *Directory {
	return &Directory{
		cost:          bcrypt.MinCost,
		users:         make(map[int64]account),
		contacts:      make(map[int64]agenda.Contact),
		nextUserID:    1,
		nextContactID: 1,
	}
}

func (d *Directory) Authenticate(email, password string) (agenda.User, error) {
	email = strings.TrimSpace(email)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, acc := range d.users {
		if !strings.EqualFold(acc.user.Email, email) {
			continue
		}
		if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
			return agenda.User{}, ErrInvalidCredentials
		}
		return acc.user, nil
	}
	return agenda.User{}, ErrUnknownUser
}

func (d *Directory) User(id int64) (agenda.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.users[id]
	if !ok {
		return agenda.User{}, ErrUnknownUser
	}
	return acc.user, nil
}

func (d *Directory) Users() []agenda.User {
	d.mu.RLock()
	out := make([]agenda.User, 0, len(d.users))
	for _, acc := range d.users {
		out = append(out, acc.user)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) CreateUser(in agenda.NewUser) (agenda.User, error) {
	in = in.Normalized()
	if in.Nombre == "" || in.Email == "" || in.Password == "" {
		return agenda.User{}, fmt.Errorf("%w: nombre, email and password are required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), d.cost)
	if err != nil {
		return agenda.User{}, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, acc := range d.users {
		if strings.EqualFold(acc.user.Email, in.Email) {
			return agenda.User{}, ErrEmailTaken
		}
	}
	u := agenda.User{ID: d.nextUserID, Nombre: in.Nombre, Email: in.Email, Rol: in.Rol}
	d.nextUserID++
	d.users[u.ID] = account{user: u, passwordHash: hash}
	return u, nil
}

// DeleteUser removes the user and every contact they own.
func (d *Directory) DeleteUser(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[id]; !ok {
		return ErrUnknownUser
	}
	delete(d.users, id)
	for cid, c := range d.contacts {
		if c.UsuarioID == id {
			delete(d.contacts, cid)
		}
	}
	return nil
}

func (d *Directory) Contacts(owner int64) []agenda.Contact {
	d.mu.RLock()
	out := make([]agenda.Contact, 0)
	for _, c := range d.contacts {
		if c.UsuarioID == owner {
			out = append(out, c)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) CreateContact(owner int64, in agenda.ContactInput) (agenda.Contact, error) {
	in = in.Normalized()
	if in.Nombre == "" {
		return agenda.Contact{}, fmt.Errorf("%w: nombre is required", ErrInvalidInput)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	c := agenda.Contact{
		ID:        d.nextContactID,
		Nombre:    in.Nombre,
		Email:     in.Email,
		Telefono:  in.Telefono,
		UsuarioID: owner,
	}
	d.nextContactID++
	d.contacts[c.ID] = c
	return c, nil
}

func (d *Directory) UpdateContact(owner, id int64, in agenda.ContactInput) (agenda.Contact, error) {
	in = in.Normalized()
	if in.Nombre == "" {
		return agenda.Contact{}, fmt.Errorf("%w: nombre is required", ErrInvalidInput)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.contacts[id]
	if !ok || existing.UsuarioID != owner {
		return agenda.Contact{}, ErrContactNotFound
	}
	existing.Nombre = in.Nombre
	existing.Email = in.Email
	existing.Telefono = in.Telefono
	d.contacts[id] = existing
	return existing, nil
}

func (d *Directory) DeleteContact(owner, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.contacts[id]
	if !ok || existing.UsuarioID != owner {
		return ErrContactNotFound
	}
	delete(d.contacts, id)
	return nil
}
