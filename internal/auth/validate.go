package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"xitem.org/internal/apperr"
)

const (
	MinNameLength     = 3
	MaxNameLength     = 128
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt input limit
)

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.MissingArgument
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", apperr.InvalidEmail
	}
	return email, nil
}

// ValidateName checks a display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return "", apperr.ShortName
	}
	return name, nil
}

// ValidateNewPassword checks length and the repeat field.
func ValidateNewPassword(password, repeat string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return apperr.ShortPassword
	}
	if password != repeat {
		return apperr.RepeatWrong
	}
	return nil
}
