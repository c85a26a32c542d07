package httpapi

import (
	"net/http"
	"strings"

	"xitem.org/internal/apperr"
	"xitem.org/internal/audit"
	"xitem.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authedFunc is a handler that runs for a resolved caller.
type authedFunc func(w http.ResponseWriter, r *http.Request, caller auth.Identity)

// authed resolves the authentication token and attaches the caller to the
// request context.
func (a *API) authed(next authedFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := authToken(r)
		caller, err := a.deps.Resolver.Resolve(r.Context(), auth.KindAuth, token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), caller)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = audit.WithActor(ctx, caller.UserID)
		next(w, r.WithContext(ctx), caller)
	})
}

// gate is authed plus a role condition.
func (a *API) gate(cond auth.Condition, next authedFunc) http.Handler {
	return a.authed(func(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
		if err := a.deps.Roles.Require(r.Context(), caller, cond, r.Pattern); err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, caller)
	})
}

// highSecurity is authed plus a security token issued to the same caller.
func (a *API) highSecurity(next authedFunc) http.Handler {
	return a.authed(func(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
		if err := a.deps.Resolver.StepUp(r.Context(), caller, r.Header.Get(headerSecurityToken)); err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, caller)
	})
}

// authToken reads the auth-token header, falling back to a bearer
// Authorization header.
func authToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(headerAuthToken)); t != "" {
		return t
	}
	t, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return ""
	}
	return t
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.TokenRequired
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", apperr.InvalidToken
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", apperr.TokenRequired
	}
	return token, nil
}
