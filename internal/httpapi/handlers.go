package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"xitem.org/api/spec"
	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
	"xitem.org/internal/event"
	"xitem.org/internal/note"
	"xitem.org/internal/obs"
	"xitem.org/internal/voting"
)

const serviceName = "xitem-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps: всё, что нужно HTTP слою.
type Deps struct {
	Resolver  *auth.Resolver
	Roles     *auth.RoleEngine
	Accounts  *auth.Accounts
	Calendars *calendar.Service
	Events    *event.Service
	Notes     *note.Service
	Votings   *voting.Service
	Ready     readinessChecker
	Version   string

	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	CORSOrigins  []string
}

// API: HTTP слой.
type API struct {
	mux     *http.ServeMux
	deps    Deps
	limiter *RateLimiter
}

func New(d Deps) *API {
	if d.RateBurst <= 0 {
		d.RateBurst = 20
	}
	if d.RatePerSec <= 0 {
		d.RatePerSec = 10
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:     http.NewServeMux(),
		deps:    d,
		limiter: NewRateLimiter(d.RateBurst, d.RatePerSec),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	verified := auth.AtLeast(auth.RoleVerified)

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.HandleFunc("GET /openapi.yaml", a.OpenAPISpec)
	a.mux.Handle("GET /metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("POST /auth/login", a.login)
	a.mux.Handle("POST /auth/change-password", a.authed(a.changePassword))
	a.mux.HandleFunc("POST /auth/send-verification", a.sendVerification)
	a.mux.HandleFunc("POST /auth/verify", a.verify)
	a.mux.HandleFunc("POST /auth/reset_password/{email}", a.requestRecovery)
	a.mux.HandleFunc("POST /auth/reset_password", a.resetPassword)
	a.mux.HandleFunc("GET /auth/refresh", a.refresh)
	a.mux.HandleFunc("GET /auth/security", a.security)
	a.mux.Handle("GET /auth/id", a.authed(a.whoami))

	// users
	a.mux.Handle("GET /user/{user_id}", a.authed(a.getUser))
	a.mux.Handle("PATCH /user/{user_id}", a.authed(a.patchUser))
	a.mux.Handle("DELETE /user/{user_id}", a.gate(auth.AnyOf(auth.RoleSysadmin), a.deleteUserByAdmin))
	a.mux.Handle("POST /user/{user_id}/deletion_request", a.highSecurity(a.requestDeletion))
	a.mux.Handle("GET /user/{user_id}/calendars", a.authed(a.userCalendars))
	a.mux.HandleFunc("DELETE /user", a.confirmDeletion)
	a.mux.Handle("GET /statistic/users", a.gate(auth.AnyOf(auth.RoleSysadmin, auth.RoleAdmin), a.userStatistics))

	// calendars
	a.mux.Handle("POST /calendar", a.gate(verified, a.createCalendar))
	a.mux.Handle("GET /calendar/{calendar_id}", a.authed(a.getCalendar))
	a.mux.Handle("PATCH /calendar/{calendar_id}", a.gate(verified, a.editCalendar))
	a.mux.Handle("DELETE /calendar/{calendar_id}", a.highSecurity(a.deleteCalendar))
	a.mux.Handle("GET /calendar/{calendar_id}/user", a.authed(a.listMembers))
	a.mux.Handle("POST /calendar/{calendar_name}/user", a.gate(verified, a.joinCalendar))
	a.mux.Handle("PATCH /calendar/{calendar_id}/layout", a.authed(a.patchLayout))
	a.mux.Handle("POST /calendar/{calendar_id}/invitation", a.highSecurity(a.createInvitation))
	a.mux.Handle("GET /calendar/{calendar_id}/user/{user_id}", a.authed(a.getMember))
	a.mux.Handle("PATCH /calendar/{calendar_id}/user/{user_id}", a.gate(verified, a.patchMember))
	a.mux.Handle("DELETE /calendar/{calendar_id}/user/{user_id}", a.highSecurity(a.removeMember))
	a.mux.Handle("POST /invitation", a.gate(verified, a.acceptInvitation))

	// events
	a.mux.Handle("POST /calendar/{calendar_id}/event", a.gate(verified, a.createEvent))
	a.mux.Handle("GET /calendar/{calendar_id}/event", a.authed(a.listEvents))
	a.mux.Handle("GET /calendar/{calendar_id}/event/{event_id}", a.authed(a.getEvent))
	a.mux.Handle("PATCH /calendar/{calendar_id}/event/{event_id}", a.gate(verified, a.editEvent))
	a.mux.Handle("DELETE /calendar/{calendar_id}/event/{event_id}", a.authed(a.deleteEvent))
	a.mux.Handle("GET /filter/calendar/{calendar_id}/period", a.authed(a.eventsPeriod))

	// notes
	a.mux.Handle("POST /calendar/{calendar_id}/note", a.gate(verified, a.createNote))
	a.mux.Handle("GET /calendar/{calendar_id}/note", a.gate(verified, a.listNotes))
	a.mux.Handle("GET /calendar/{calendar_id}/note/{note_id}", a.gate(verified, a.getNote))
	a.mux.Handle("PATCH /calendar/{calendar_id}/note/{note_id}", a.gate(verified, a.editNote))
	a.mux.Handle("DELETE /calendar/{calendar_id}/note/{note_id}", a.gate(verified, a.deleteNote))

	// votings
	a.mux.Handle("POST /calendar/{calendar_id}/voting", a.gate(verified, a.createVoting))
	a.mux.Handle("GET /calendar/{calendar_id}/voting", a.gate(verified, a.listVotings))
	a.mux.Handle("GET /calendar/{calendar_id}/voting/{voting_id}", a.gate(verified, a.getVoting))
	a.mux.Handle("DELETE /calendar/{calendar_id}/voting/{voting_id}", a.gate(verified, a.deleteVoting))
	a.mux.Handle("POST /calendar/{calendar_id}/voting/{voting_id}/vote", a.gate(verified, a.vote))

	// всё остальное: JSON 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.RouteNotFound)
	})
}

// Handler возвращает http.Handler со всей цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.deps.MaxBodyBytes)
	h = a.limiter.Middleware(h)
	h = CORS(a.deps.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Close stops background work owned by the API.
func (a *API) Close() { a.limiter.Stop() }

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.deps.Version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its wire tag. Unexpected errors are logged with
// their cause and reach the client as internal_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	if !apperr.IsExpected(err) {
		obs.Error("request failed", map[string]any{
			"request_id": RequestIDFromContext(r),
			"method":     r.Method,
			"path":       r.URL.Path,
			"error":      err,
		})
	}
	payload := map[string]any{
		"error": code.Tag(),
	}
	if rid := RequestIDFromContext(r); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code.Status(), payload)
}

// decodeJSON reads exactly one JSON object into dst. Unknown fields are
// ignored; an empty body decodes as {}.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &maxErr):
			return apperr.PayloadTooLarge
		}
		return apperr.Wrap(apperr.InvalidJSON, err)
	}
	var maxErr *http.MaxBytesError
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &maxErr):
		return apperr.PayloadTooLarge
	}
	return apperr.InvalidJSON
}
