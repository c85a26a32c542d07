package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"xitem.org/internal/apperr"
	"xitem.org/internal/obs"
)

// Resolver turns bearer tokens into verified identities.
type Resolver struct {
	tokens *Tokens
	store  Store
}

// NewResolver constructs a Resolver over the token service and user store.
func NewResolver(tokens *Tokens, store Store) *Resolver {
	return &Resolver{tokens: tokens, store: store}
}

// Resolve verifies a bearer token of the given kind and checks the subject
// against the user store. Missing users and bad signatures both yield
// apperr.InvalidToken.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, apperr.TokenRequired
	}
	claims, err := r.tokens.Verify(kind, token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Identity{}, apperr.ExpiredToken
		}
		return Identity{}, apperr.InvalidToken
	}
	user, err := r.checkSubject(ctx, claims)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: user.ID, Name: user.Name, Role: user.Role}, nil
}

// checkSubject loads the claim subject and applies the ban and
// password-change revocation rules.
func (r *Resolver) checkSubject(ctx context.Context, claims *Claims) (*User, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, apperr.InvalidToken
	}
	user, err := r.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.InvalidToken
		}
		return nil, apperr.Wrap(apperr.Internal, err)
	}
	if !user.Active {
		return nil, apperr.Banned
	}
	if issuedBefore(claims, user.PasswordChangedAt) {
		return nil, apperr.PasswordChanged
	}
	return user, nil
}

// issuedBefore compares in microseconds, the precision of the stored
// password_changed_at. Tokens without iat_us fall back to whole seconds.
func issuedBefore(claims *Claims, changedAt time.Time) bool {
	if claims.IssuedAtMicro > 0 {
		return claims.IssuedAtMicro < changedAt.UnixMicro()
	}
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Time.Before(changedAt.Truncate(time.Second))
}

// Refresh mints a new authentication token. The refresh token must resolve
// fully; the authentication token must have failed with exactly
// ExpiredToken and its unverified subject must equal the refresh subject.
func (r *Resolver) Refresh(ctx context.Context, authToken, refreshToken string) (string, Identity, error) {
	if strings.TrimSpace(authToken) == "" || strings.TrimSpace(refreshToken) == "" {
		return "", Identity{}, apperr.TokenRequired
	}
	id, err := r.Resolve(ctx, KindRefresh, refreshToken)
	if err != nil {
		return "", Identity{}, err
	}
	_, authErr := r.Resolve(ctx, KindAuth, authToken)
	switch {
	case authErr == nil:
		return "", Identity{}, apperr.TokenStillValid
	case !errors.Is(authErr, apperr.ExpiredToken):
		return "", Identity{}, apperr.InvalidToken
	}
	unverified, err := r.tokens.Decode(authToken)
	if err != nil || unverified.Subject != id.UserID {
		return "", Identity{}, apperr.InvalidToken
	}
	token, err := r.tokens.IssueSubject(KindAuth, id.UserID)
	if err != nil {
		return "", Identity{}, apperr.Wrap(apperr.Internal, err)
	}
	obs.Info("auth token renewed", map[string]any{"user_id": id.UserID})
	return token, id, nil
}

// SecurityToken performs step-up: both the authentication and the refresh
// token must resolve to the same subject.
func (r *Resolver) SecurityToken(ctx context.Context, authToken, refreshToken string) (string, Identity, error) {
	if strings.TrimSpace(authToken) == "" || strings.TrimSpace(refreshToken) == "" {
		return "", Identity{}, apperr.TokenRequired
	}
	authID, err := r.Resolve(ctx, KindAuth, authToken)
	if err != nil {
		return "", Identity{}, err
	}
	refreshID, err := r.Resolve(ctx, KindRefresh, refreshToken)
	if err != nil {
		return "", Identity{}, err
	}
	if authID.UserID != refreshID.UserID {
		return "", Identity{}, apperr.InvalidToken
	}
	token, err := r.tokens.IssueSubject(KindSecurity, authID.UserID)
	if err != nil {
		return "", Identity{}, apperr.Wrap(apperr.Internal, err)
	}
	obs.Info("security token issued", map[string]any{"user_id": authID.UserID})
	return token, authID, nil
}

// StepUp verifies a security token for an already resolved caller.
func (r *Resolver) StepUp(ctx context.Context, caller Identity, securityToken string) error {
	id, err := r.Resolve(ctx, KindSecurity, securityToken)
	if err != nil {
		return err
	}
	if id.UserID != caller.UserID {
		return apperr.InvalidToken
	}
	return nil
}
