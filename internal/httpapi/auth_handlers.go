package httpapi

import (
	"net/http"
	"strings"
	"time"

	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword    string `json:"old_password"`
	NewPassword    string `json:"new_password"`
	RepeatPassword string `json:"repeat_password"`
}

type verificationRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Birthday *string `json:"birthday"`
}

type verifyRequest struct {
	ValidationKey  string `json:"validation_key"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeat_password"`
}

type resetPasswordRequest struct {
	RecoveryKey    string `json:"recovery_key"`
	NewPassword    string `json:"new_password"`
	RepeatPassword string `json:"repeat_password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := a.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(headerAuthToken, sess.AuthToken)
	w.Header().Set(headerRefreshToken, sess.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": sess.UserID})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OldPassword == "" {
		writeError(w, r, apperr.MissingArgument)
		return
	}
	if err := a.deps.Accounts.ChangePassword(r.Context(), caller, req.OldPassword, req.NewPassword, req.RepeatPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "password changed"})
}

func (a *API) sendVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	birthday, err := parseDate(req.Birthday)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reg := auth.Registration{Name: req.Name, Email: req.Email, Birthday: birthday}
	if err := a.deps.Accounts.SendVerification(r.Context(), reg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "verification sent"})
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ValidationKey == "" {
		writeError(w, r, apperr.MissingArgument)
		return
	}
	id, err := a.deps.Accounts.Verify(r.Context(), req.ValidationKey, req.Password, req.RepeatPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": id})
}

func (a *API) requestRecovery(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Accounts.RequestPasswordRecovery(r.Context(), r.PathValue("email")); err != nil {
		writeError(w, r, err)
		return
	}
	// одинаковый ответ для известных и неизвестных адресов
	writeJSON(w, http.StatusOK, map[string]any{"info": "recovery sent"})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RecoveryKey == "" {
		writeError(w, r, apperr.MissingArgument)
		return
	}
	if err := a.deps.Accounts.ResetPassword(r.Context(), req.RecoveryKey, req.NewPassword, req.RepeatPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "password changed"})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	token, id, err := a.deps.Resolver.Refresh(r.Context(), authToken(r), r.Header.Get(headerRefreshToken))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(headerAuthToken, token)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id.UserID})
}

func (a *API) security(w http.ResponseWriter, r *http.Request) {
	token, id, err := a.deps.Resolver.SecurityToken(r.Context(), authToken(r), r.Header.Get(headerRefreshToken))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(headerSecurityToken, token)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id.UserID})
}

func (a *API) whoami(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": caller.UserID,
		"name":    caller.Name,
		"role":    caller.Role,
	})
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Nil and
// empty input yield nil.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*raw)
	if t, err := time.Parse(auth.BirthdayLayout, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.InvalidDate
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}
