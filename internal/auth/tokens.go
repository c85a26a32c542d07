package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"xitem.org/internal/obs"
)

// Kind selects the signing secret and default lifetime of a token.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindRefresh    Kind = "refresh"
	KindSecurity   Kind = "security"
	KindEmail      Kind = "email_verification"
	KindRecovery   Kind = "password_recovery"
	KindDeletion   Kind = "account_deletion"
	KindInvitation Kind = "calendar_invitation"
)

// Invitation lifetimes are chosen by the issuing owner within these bounds.
const (
	MinInvitationTTL = 5 * time.Minute
	MaxInvitationTTL = 10080 * time.Minute
)

const defaultIssuer = "xitem"

var defaultTTLs = map[Kind]time.Duration{
	KindAuth:     time.Hour,
	KindRefresh:  21 * 24 * time.Hour,
	KindSecurity: 5 * time.Minute,
	KindEmail:    time.Hour,
	KindRecovery: 30 * time.Minute,
	KindDeletion: 30 * time.Minute,
}

// Claims is the payload of every token kind. Action-specific fields are
// empty for bearer tokens.
type Claims struct {
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	Birthday        string `json:"birthday,omitempty"`
	CalendarID      string `json:"calendar_id,omitempty"`
	CanCreateEvents bool   `json:"can_create_events,omitempty"`
	CanEditEvents   bool   `json:"can_edit_events,omitempty"`
	// IssuedAtMicro repeats iat in microseconds for revocation checks.
	IssuedAtMicro   int64  `json:"iat_us,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens with one secret per kind.
type Tokens struct {
	keys   map[Kind][]byte
	ttls   map[Kind]time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures Tokens.
type TokenOption func(*Tokens) error

// WithSecret sets the signing secret for a kind.
func WithSecret(kind Kind, secret string) TokenOption {
	return func(t *Tokens) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return fmt.Errorf("auth: empty secret for %s tokens", kind)
		}
		t.keys[kind] = []byte(secret)
		return nil
	}
}

// WithTTL overrides the default lifetime for a kind.
func WithTTL(kind Kind, ttl time.Duration) TokenOption {
	return func(t *Tokens) error {
		if ttl > 0 {
			t.ttls[kind] = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *Tokens) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokens constructs a token service. Secrets must be pairwise distinct so
// that a token of one kind can never verify as another.
func NewTokens(opts ...TokenOption) (*Tokens, error) {
	t := &Tokens{
		keys:   make(map[Kind][]byte),
		ttls:   make(map[Kind]time.Duration, len(defaultTTLs)),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for k, v := range defaultTTLs {
		t.ttls[k] = v
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]Kind, len(t.keys))
	for kind, key := range t.keys {
		if other, ok := seen[string(key)]; ok {
			return nil, fmt.Errorf("auth: %s and %s tokens share a secret", other, kind)
		}
		seen[string(key)] = kind
	}
	return t, nil
}

// Now returns the service clock reading.
func (t *Tokens) Now() time.Time { return t.now() }

// ClampInvitationTTL bounds an invitation lifetime to the allowed window.
func ClampInvitationTTL(ttl time.Duration) time.Duration {
	if ttl < MinInvitationTTL {
		return MinInvitationTTL
	}
	if ttl > MaxInvitationTTL {
		return MaxInvitationTTL
	}
	return ttl
}

// Issue signs claims for kind. A non-positive ttl selects the kind's default.
func (t *Tokens) Issue(kind Kind, claims Claims, ttl time.Duration) (string, error) {
	key, ok := t.keys[kind]
	if !ok {
		return "", fmt.Errorf("auth: no secret configured for %s tokens", kind)
	}
	if ttl <= 0 {
		ttl = t.ttls[kind]
	}
	if kind == KindInvitation {
		ttl = ClampInvitationTTL(ttl)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("auth: no lifetime configured for %s tokens", kind)
	}

	now := t.now().UTC()
	claims.Issuer = t.issuer
	claims.Audience = jwt.ClaimStrings{string(kind)}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.IssuedAtMicro = now.UnixMicro()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.NotBefore = nil
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// IssueSubject signs a token whose only payload is the subject user id.
func (t *Tokens) IssueSubject(kind Kind, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: subject is required")
	}
	return t.Issue(kind, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, 0)
}

// Verify checks signature, kind, issuer, and timestamps. It fails with
// ErrTokenExpired only for an otherwise well-formed token past its expiry,
// and with ErrTokenMalformed for everything else.
func (t *Tokens) Verify(kind Kind, raw string) (*Claims, error) {
	claims, err := t.verify(kind, raw)
	switch {
	case err == nil:
		obs.ObserveToken(string(kind), "valid")
	case errors.Is(err, ErrTokenExpired):
		obs.ObserveToken(string(kind), "expired")
	default:
		obs.ObserveToken(string(kind), "malformed")
	}
	return claims, err
}

func (t *Tokens) verify(kind Kind, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	key, ok := t.keys[kind]
	if raw == "" || !ok {
		return nil, ErrTokenMalformed
	}
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(string(kind)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenMalformed
		}
		// Expired is reported only when the signature and claims shape hold.
		unchecked := &Claims{}
		if _, err := jwt.ParseWithClaims(raw, unchecked, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		); err != nil || unchecked.IssuedAt == nil {
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Decode reads claims without checking signature or expiry. The result must
// never be used for authorization on its own.
func (t *Tokens) Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
