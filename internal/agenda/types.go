package agenda

import "strings"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	NoEmailPlaceholder = "Sin email"
	NoPhonePlaceholder = "Sin teléfono"
	SelfRowLabel       = "Tú"
)

type User struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Rol    string `json:"rol"`
}

func (u User) IsAdmin() bool {
	return u.Rol == RoleAdmin
}

type NewUser struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Rol      string `json:"rol"`
}

// Normalized trims text fields and defaults the role to "user".
func (n NewUser) Normalized() NewUser {
	n.Nombre = strings.TrimSpace(n.Nombre)
	n.Email = strings.TrimSpace(n.Email)
	n.Rol = strings.ToLower(strings.TrimSpace(n.Rol))
	if n.Rol != RoleAdmin {
		n.Rol = RoleUser
	}
	return n
}

type Contact struct {
	ID        int64  `json:"id"`
	Nombre    string `json:"nombre"`
	Email     string `json:"email,omitempty"`
	Telefono  string `json:"telefono,omitempty"`
	UsuarioID int64  `json:"usuario_id,omitempty"`
}

func (c Contact) EmailOrPlaceholder() string {
	if strings.TrimSpace(c.Email) == "" {
		return NoEmailPlaceholder
	}
	return c.Email
}

func (c Contact) TelefonoOrPlaceholder() string {
	if strings.TrimSpace(c.Telefono) == "" {
		return NoPhonePlaceholder
	}
	return c.Telefono
}

type ContactInput struct {
	Nombre   string `json:"nombre"`
	Email    string `json:"email,omitempty"`
	Telefono string `json:"telefono,omitempty"`
}

func (in ContactInput) Normalized() ContactInput {
	return ContactInput{
		Nombre:   strings.TrimSpace(in.Nombre),
		Email:    strings.TrimSpace(in.Email),
		Telefono: strings.TrimSpace(in.Telefono),
	}
}
