package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := tokens.IssueSubject(KindAuth, testUserID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tokens.Verify(KindAuth, raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != testUserID {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("iat and exp must be set")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("unexpected auth ttl %s", got)
	}
}

func TestVerifyAcrossKindsFails(t *testing.T) {
	tokens := newTestTokens(t, newClock())
	kinds := []Kind{KindAuth, KindRefresh, KindSecurity, KindRecovery, KindDeletion}
	for _, issued := range kinds {
		raw, err := tokens.IssueSubject(issued, testUserID)
		if err != nil {
			t.Fatalf("issue %s: %v", issued, err)
		}
		for _, verified := range kinds {
			_, err := tokens.Verify(verified, raw)
			if issued == verified && err != nil {
				t.Fatalf("%s token rejected by its own kind: %v", issued, err)
			}
			if issued != verified && !errors.Is(err, ErrTokenMalformed) {
				t.Fatalf("%s token verified as %s: %v", issued, verified, err)
			}
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := tokens.IssueSubject(KindAuth, testUserID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.Advance(time.Hour + time.Second)
	if _, err := tokens.Verify(KindAuth, raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestInvitationExpiresAfterRequestedMinutes(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := tokens.Issue(KindInvitation, Claims{CalendarID: "cal"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.Advance(4 * time.Minute)
	if _, err := tokens.Verify(KindInvitation, raw); err != nil {
		t.Fatalf("invitation rejected before expiry: %v", err)
	}
	c.Advance(2 * time.Minute)
	if _, err := tokens.Verify(KindInvitation, raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired at minute 6, got %v", err)
	}
}

func TestVerifyRejectsMissingIssuedAt(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUserID,
		"iss": defaultIssuer,
		"aud": string(KindAuth),
		"exp": c.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("auth-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Verify(KindAuth, raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}

	// Past expiry the missing iat still yields malformed, not expired.
	c.Advance(2 * time.Hour)
	if _, err := tokens.Verify(KindAuth, raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed after expiry, got %v", err)
	}
}

func TestVerifyRejectsMissingExpiry(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUserID,
		"iss": defaultIssuer,
		"aud": string(KindAuth),
		"iat": c.Now().Unix(),
	}).SignedString([]byte("auth-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Verify(KindAuth, raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": testUserID,
		"iss": defaultIssuer,
		"aud": string(KindAuth),
		"iat": c.Now().Unix(),
		"exp": c.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("auth-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Verify(KindAuth, raw); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestNewTokensRejectsSharedSecrets(t *testing.T) {
	_, err := NewTokens(WithSecret(KindAuth, "same"), WithSecret(KindRefresh, "same"))
	if err == nil {
		t.Fatal("expected shared secret error")
	}
	if _, err := NewTokens(WithSecret(KindAuth, "  ")); err == nil {
		t.Fatal("expected empty secret error")
	}
}

func TestIssueWithoutSecretFails(t *testing.T) {
	tokens, err := NewTokens(WithSecret(KindAuth, "only-auth"))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	if _, err := tokens.IssueSubject(KindRefresh, testUserID); err == nil {
		t.Fatal("expected error for unconfigured kind")
	}
}

func TestClampInvitationTTL(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{time.Minute, MinInvitationTTL},
		{30 * time.Minute, 30 * time.Minute},
		{30 * 24 * time.Hour, MaxInvitationTTL},
	}
	for _, tc := range cases {
		if got := ClampInvitationTTL(tc.in); got != tc.want {
			t.Fatalf("ClampInvitationTTL(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDecodeIgnoresSignatureAndExpiry(t *testing.T) {
	c := newClock()
	tokens := newTestTokens(t, c)
	raw, err := tokens.IssueSubject(KindAuth, testUserID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.Advance(48 * time.Hour)
	claims, err := tokens.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Subject != testUserID {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if _, err := tokens.Decode("not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}
