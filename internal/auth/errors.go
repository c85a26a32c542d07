package auth

import (
	"errors"

	"xitem.org/internal/store"
)

// Store-level sentinels. Services translate them into apperr codes.
var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// Token verification outcomes. Verify returns exactly one of these on failure.
var (
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: token malformed")
)
