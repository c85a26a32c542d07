// Package apperr defines the closed set of error codes returned by the
// service layer. A Code is itself an error; it carries the wire tag sent to
// clients and the HTTP status hint used by the transport.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups codes by taxonomy category.
type Kind int

const (
	KindInternal Kind = iota
	KindToken
	KindAuthorization
	KindInvariant
	KindNotFound
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindAuthorization:
		return "authorization"
	case KindInvariant:
		return "invariant"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Code is a typed error code. Values are compared by identity of all fields,
// so errors.Is(err, apperr.LastOwner) works through any wrapping.
type Code struct {
	tag    string
	status int
	kind   Kind
}

func (c Code) Error() string { return c.tag }

// Tag returns the machine-readable wire string.
func (c Code) Tag() string { return c.tag }

// Status returns the HTTP status hint.
func (c Code) Status() int { return c.status }

// Kind returns the taxonomy category.
func (c Code) Kind() Kind { return c.kind }

func code(tag string, status int, kind Kind) Code {
	return Code{tag: tag, status: status, kind: kind}
}

// Token errors.
var (
	InvalidToken    = code("invalid_token", http.StatusUnauthorized, KindToken)
	ExpiredToken    = code("expired_token", http.StatusUnauthorized, KindToken)
	TokenStillValid = code("token_still_valid", http.StatusBadRequest, KindToken)
	PasswordChanged = code("pass_changed", http.StatusUnauthorized, KindToken)
	Banned          = code("banned", http.StatusUnauthorized, KindToken)
	LoginBanned     = code("banned", http.StatusForbidden, KindToken)
	TokenRequired   = code("token_required", http.StatusUnauthorized, KindToken)
	AuthFailed      = code("auth_failed", http.StatusUnauthorized, KindToken)
)

// Authorization errors.
var (
	InsufficientPermissions = code("insufficient_permissions", http.StatusForbidden, KindAuthorization)
	AccessForbidden         = code("access_forbidden", http.StatusForbidden, KindAuthorization)
)

// Membership invariant errors.
var (
	LastMember    = code("last_member", http.StatusForbidden, KindInvariant)
	LastOwner     = code("last_owner", http.StatusForbidden, KindInvariant)
	AlreadyExists = code("already_exists", http.StatusForbidden, KindInvariant)
	NotJoinable   = code("calendar_not_joinable", http.StatusForbidden, KindInvariant)
	WrongPassword = code("wrong_password", http.StatusUnauthorized, KindInvariant)
)

// Voting invariant errors.
var (
	AlreadyVoted     = code("already_voted", http.StatusBadRequest, KindInvariant)
	NoMultipleChoice = code("no_multiple_choice_enabled", http.StatusBadRequest, KindInvariant)
)

// Not-found errors.
var (
	UserNotFound     = code("user_not_found", http.StatusNotFound, KindNotFound)
	CalendarNotFound = code("calendar_not_found", http.StatusNotFound, KindNotFound)
	MemberNotFound   = code("member_not_found", http.StatusNotFound, KindNotFound)
	EventNotFound    = code("event_not_found", http.StatusNotFound, KindNotFound)
	RoleNotFound     = code("role_not_found", http.StatusNotFound, KindNotFound)
	NoteNotFound     = code("note_not_found", http.StatusNotFound, KindNotFound)
	VotingNotFound   = code("voting_not_found", http.StatusNotFound, KindNotFound)
	ChoiceNotFound   = code("choice_not_found", http.StatusNotFound, KindNotFound)
	RouteNotFound    = code("not_found", http.StatusNotFound, KindNotFound)
)

// Validation errors.
var (
	MissingArgument = code("missing_argument", http.StatusBadRequest, KindValidation)
	ShortName       = code("short_name", http.StatusBadRequest, KindValidation)
	ShortPassword   = code("short_password", http.StatusBadRequest, KindValidation)
	RepeatWrong     = code("repeat_wrong", http.StatusBadRequest, KindValidation)
	EmailExists     = code("email_exists", http.StatusBadRequest, KindValidation)
	InvalidEmail    = code("invalid_email", http.StatusBadRequest, KindValidation)
	InvalidTitle    = code("invalid_title", http.StatusBadRequest, KindValidation)
	InvalidDate     = code("invalid_date", http.StatusBadRequest, KindValidation)
	InvalidColor    = code("invalid_color", http.StatusBadRequest, KindValidation)
	InvalidJSON     = code("invalid_json", http.StatusBadRequest, KindValidation)
	InvalidNumber   = code("invalid_number", http.StatusBadRequest, KindValidation)
	EndBeforeStart  = code("end_before_start", http.StatusBadRequest, KindValidation)
	StartAfter1900  = code("start_after_1900", http.StatusBadRequest, KindValidation)
	PayloadTooLarge = code("payload_too_large", http.StatusRequestEntityTooLarge, KindValidation)
	TooManyRequests = code("too_many_requests", http.StatusTooManyRequests, KindValidation)
)

// Internal is returned for every unexpected failure. Its tag leaks nothing.
var Internal = code("internal_error", http.StatusInternalServerError, KindInternal)

// Wrap attaches a cause to a code. The result matches the code with
// errors.Is and still unwraps to the cause.
func Wrap(c Code, cause error) error {
	if cause == nil {
		return c
	}
	return fmt.Errorf("%w: %w", c, cause)
}

// CodeOf returns the first Code found in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return Code{}
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Internal
}

// IsExpected reports whether err carries a code other than Internal.
func IsExpected(err error) bool {
	return CodeOf(err).kind != KindInternal
}
