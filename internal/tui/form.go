package tui

import "strings"

type field struct {
	label  string
	value  string
	masked bool
}

// form is a vertical list of single-line text inputs.
type form struct {
	title  string
	fields []field
	focus  int
}

func newLoginForm() *form {
	return &form{
		title: "Iniciar Sesión",
		fields: []field{
			{label: "Email"},
			{label: "Contraseña", masked: true},
		},
	}
}

func newContactForm() *form {
	return &form{
		title: "Agregar Contacto",
		fields: []field{
			{label: "Nombre"},
			{label: "Email"},
			{label: "Teléfono"},
		},
	}
}

func newUserForm() *form {
	return &form{
		title: "Crear Usuario",
		fields: []field{
			{label: "Nombre"},
			{label: "Email"},
			{label: "Contraseña", masked: true},
			{label: "Rol (user/admin)", value: "user"},
		},
	}
}

func (f *form) value(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return f.fields[i].value
}

func (f *form) set(i int, v string) {
	if i >= 0 && i < len(f.fields) {
		f.fields[i].value = v
	}
}

func (f *form) next() {
	f.focus = (f.focus + 1) % len(f.fields)
}

func (f *form) prev() {
	f.focus = (f.focus - 1 + len(f.fields)) % len(f.fields)
}

func (f *form) insert(r []rune) {
	f.fields[f.focus].value += string(r)
}

func (f *form) backspace() {
	v := []rune(f.fields[f.focus].value)
	if len(v) > 0 {
		f.fields[f.focus].value = string(v[:len(v)-1])
	}
}

func (f *form) render(b *strings.Builder) {
	b.WriteString(f.title + "\n")
	for i, fl := range f.fields {
		cursor := "  "
		if i == f.focus {
			cursor = "> "
		}
		v := fl.value
		if fl.masked {
			v = strings.Repeat("*", len([]rune(v)))
		}
		b.WriteString(cursor + fl.label + ": " + v + "\n")
	}
}
