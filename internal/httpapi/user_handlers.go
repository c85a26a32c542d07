package httpapi

import (
	"net/http"
	"time"

	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
)

type userView struct {
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Role         string     `json:"role,omitempty"`
	Birthday     *string    `json:"birthday,omitempty"`
	Active       *bool      `json:"active,omitempty"`
	RegisteredAt *time.Time `json:"registration_date,omitempty"`
}

// newUserView hides private fields unless full is set.
func newUserView(u *auth.User, full bool) userView {
	v := userView{UserID: u.ID, Name: u.Name}
	if !full {
		return v
	}
	v.Email = u.Email
	v.Role = u.Role
	if u.Birthday != nil {
		b := u.Birthday.Format(auth.BirthdayLayout)
		v.Birthday = &b
	}
	active := u.Active
	v.Active = &active
	registered := u.RegisteredAt
	v.RegisteredAt = &registered
	return v
}

type patchUserRequest struct {
	Name     *string `json:"name"`
	Birthday *string `json:"birthday"`
}

type confirmDeletionRequest struct {
	DeletionKey string `json:"deletion_key"`
	Password    string `json:"password"`
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	id := r.PathValue("user_id")
	u, err := a.deps.Accounts.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	full := u.ID == caller.UserID
	if !full {
		full, _ = a.deps.Roles.Check(r.Context(), caller, auth.AtLeast(auth.RoleAdmin))
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(u, full)})
}

func (a *API) patchUser(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req patchUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	birthday, err := parseDate(req.Birthday)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch := auth.UserPatch{Name: req.Name, Birthday: birthday}
	changes, err := a.deps.Accounts.PatchUser(r.Context(), caller, r.PathValue("user_id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "user updated", "changes": changes})
}

func (a *API) deleteUserByAdmin(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Accounts.DeleteUser(r.Context(), caller, r.PathValue("user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "user deleted"})
}

func (a *API) requestDeletion(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Accounts.RequestAccountDeletion(r.Context(), caller, r.PathValue("user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "deletion requested"})
}

func (a *API) confirmDeletion(w http.ResponseWriter, r *http.Request) {
	var req confirmDeletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DeletionKey == "" || req.Password == "" {
		writeError(w, r, apperr.MissingArgument)
		return
	}
	if err := a.deps.Accounts.ConfirmAccountDeletion(r.Context(), req.DeletionKey, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "user deleted"})
}

func (a *API) userCalendars(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	list, err := a.deps.Calendars.ForUser(r.Context(), caller, r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]associatedView, 0, len(list))
	for _, as := range list {
		out = append(out, newAssociatedView(as))
	}
	writeJSON(w, http.StatusOK, map[string]any{"associated_calendars": out})
}

type roleCountView struct {
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Users    int    `json:"amount"`
}

func (a *API) userStatistics(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	stats, err := a.deps.Accounts.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	roles := make([]roleCountView, 0, len(stats.Roles))
	for _, rc := range stats.Roles {
		roles = append(roles, roleCountView{Role: rc.Role.Name, FullName: rc.Role.FullName, Users: rc.Users})
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": stats.Registered, "roles": roles})
}
