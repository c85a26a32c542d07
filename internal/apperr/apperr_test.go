package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeMatchesThroughWrapping(t *testing.T) {
	cause := errors.New("row locked")
	err := fmt.Errorf("remove member: %w", Wrap(LastOwner, cause))

	if !errors.Is(err, LastOwner) {
		t.Fatalf("expected LastOwner in chain: %v", err)
	}
	if errors.Is(err, LastMember) {
		t.Fatalf("LastMember must not match LastOwner")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if got := CodeOf(err); got != LastOwner {
		t.Fatalf("CodeOf=%v, want %v", got, LastOwner)
	}
}

func TestCodeOfUnknownIsInternal(t *testing.T) {
	err := errors.New("connection refused")
	c := CodeOf(err)
	if c != Internal {
		t.Fatalf("CodeOf=%v, want internal", c)
	}
	if c.Status() != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", c.Status())
	}
	if IsExpected(err) {
		t.Fatal("plain error must not be expected")
	}
	if !IsExpected(ExpiredToken) {
		t.Fatal("ExpiredToken must be expected")
	}
}

func TestTaxonomyStatuses(t *testing.T) {
	cases := []struct {
		code   Code
		tag    string
		status int
		kind   Kind
	}{
		{InvalidToken, "invalid_token", http.StatusUnauthorized, KindToken},
		{TokenStillValid, "token_still_valid", http.StatusBadRequest, KindToken},
		{InsufficientPermissions, "insufficient_permissions", http.StatusForbidden, KindAuthorization},
		{LastMember, "last_member", http.StatusForbidden, KindInvariant},
		{WrongPassword, "wrong_password", http.StatusUnauthorized, KindInvariant},
		{CalendarNotFound, "calendar_not_found", http.StatusNotFound, KindNotFound},
		{ShortPassword, "short_password", http.StatusBadRequest, KindValidation},
	}
	for _, tc := range cases {
		if tc.code.Tag() != tc.tag || tc.code.Status() != tc.status || tc.code.Kind() != tc.kind {
			t.Fatalf("%s: got (%s, %d, %s)", tc.tag, tc.code.Tag(), tc.code.Status(), tc.code.Kind())
		}
	}
}
