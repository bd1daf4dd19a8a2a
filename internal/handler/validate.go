package handler

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

// validator accumulates field errors so the client gets every problem in one
// round trip instead of fixing them one at a time.
type validator struct {
	fields []fieldError
}

func (v *validator) add(field, message string) {
	v.fields = append(v.fields, fieldError{Field: field, Message: message})
}

func (v *validator) ok() bool { return len(v.fields) == 0 }

func (v *validator) name(field, value string) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < 2 || n > 50 {
		v.add(field, "Name must be between 2 and 50 characters")
	}
}

func (v *validator) email(field, value string) {
	if value == "" {
		v.add(field, "Email is required")
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v.add(field, "Please provide a valid email")
	}
}

// password requires at least 6 characters containing a letter and a digit.
func (v *validator) password(field, value string) {
	if len(value) < 6 {
		v.add(field, "Password must be at least 6 characters")
		return
	}
	var hasLetter, hasDigit bool
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		v.add(field, "Password must contain at least one letter and one number")
	}
}

func (v *validator) role(field, value string) {
	if !model.ValidRole(value) {
		v.add(field, "Role must be either user or admin")
	}
}

func (v *validator) required(field, value, message string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, message)
	}
}
