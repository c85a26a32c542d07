package httpapi

import (
	"net/http"
	"time"

	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
)

type calendarView struct {
	CalendarID     string    `json:"calendar_id"`
	CalendarName   string    `json:"calendar_name"`
	Title          string    `json:"title"`
	CanJoin        bool      `json:"can_join"`
	RawColorLegend string    `json:"raw_color_legend"`
	CreatedAt      time.Time `json:"creation_date"`
}

func newCalendarView(c calendar.Calendar) calendarView {
	return calendarView{
		CalendarID:     c.ID,
		CalendarName:   c.Name,
		Title:          c.Title(),
		CanJoin:        c.CanJoin,
		RawColorLegend: c.RawColorLegend,
		CreatedAt:      c.CreatedAt,
	}
}

type memberView struct {
	CalendarID      string `json:"calendar_id"`
	UserID          string `json:"user_id"`
	IsOwner         bool   `json:"is_owner"`
	CanCreateEvents bool   `json:"can_create_events"`
	CanEditEvents   bool   `json:"can_edit_events"`
	Color           int    `json:"color"`
	Icon            int    `json:"icon"`
}

func newMemberView(m calendar.Membership) memberView {
	return memberView{
		CalendarID:      m.CalendarID,
		UserID:          m.UserID,
		IsOwner:         m.IsOwner,
		CanCreateEvents: m.CanCreateEvents,
		CanEditEvents:   m.CanEditEvents,
		Color:           m.Color,
		Icon:            m.Icon,
	}
}

type associatedView struct {
	calendarView
	IsOwner         bool `json:"is_owner"`
	CanCreateEvents bool `json:"can_create_events"`
	CanEditEvents   bool `json:"can_edit_events"`
	Color           int  `json:"color"`
	Icon            int  `json:"icon"`
}

func newAssociatedView(as calendar.Associated) associatedView {
	return associatedView{
		calendarView:    newCalendarView(as.Calendar),
		IsOwner:         as.Membership.IsOwner,
		CanCreateEvents: as.Membership.CanCreateEvents,
		CanEditEvents:   as.Membership.CanEditEvents,
		Color:           as.Membership.Color,
		Icon:            as.Membership.Icon,
	}
}

type createCalendarRequest struct {
	Title    string `json:"title"`
	Password string `json:"password"`
	CanJoin  *bool  `json:"can_join"`
	Color    *int   `json:"color"`
	Icon     *int   `json:"icon"`
}

type editCalendarRequest struct {
	Title          *string `json:"title"`
	Password       *string `json:"password"`
	CanJoin        *bool   `json:"can_join"`
	RawColorLegend *string `json:"raw_color_legend"`
}

type layoutRequest struct {
	Color *int `json:"color"`
	Icon  *int `json:"icon"`
}

type joinRequest struct {
	Password string `json:"password"`
	Color    *int   `json:"color"`
	Icon     *int   `json:"icon"`
}

type patchMemberRequest struct {
	IsOwner         *bool `json:"is_owner"`
	CanCreateEvents *bool `json:"can_create_events"`
	CanEditEvents   *bool `json:"can_edit_events"`
}

type invitationRequest struct {
	CanCreateEvents *bool `json:"can_create_events"`
	CanEditEvents   *bool `json:"can_edit_events"`
	Expire          int   `json:"expire"`
}

type acceptInvitationRequest struct {
	InvitationToken string `json:"invitation_token"`
	Color           *int   `json:"color"`
	Icon            *int   `json:"icon"`
}

func (a *API) createCalendar(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req createCalendarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	as, err := a.deps.Calendars.Create(r.Context(), caller, calendar.CreateInput{
		Title:    req.Title,
		Password: req.Password,
		CanJoin:  req.CanJoin,
		Color:    req.Color,
		Icon:     req.Icon,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"calendar_id": as.Calendar.ID,
		"calendar":    newAssociatedView(*as),
	})
}

func (a *API) getCalendar(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	as, err := a.deps.Calendars.Get(r.Context(), caller, r.PathValue("calendar_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendar": newAssociatedView(*as)})
}

func (a *API) editCalendar(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req editCalendarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := a.deps.Calendars.Edit(r.Context(), caller, r.PathValue("calendar_id"), calendar.EditInput{
		Title:          req.Title,
		Password:       req.Password,
		CanJoin:        req.CanJoin,
		RawColorLegend: req.RawColorLegend,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "calendar updated"})
}

func (a *API) deleteCalendar(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Calendars.Delete(r.Context(), caller, r.PathValue("calendar_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "calendar deleted"})
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	members, err := a.deps.Calendars.Members(r.Context(), caller, r.PathValue("calendar_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]memberView, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"associated_users": out})
}

func (a *API) joinCalendar(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cal, err := a.deps.Calendars.Join(r.Context(), caller, r.PathValue("calendar_name"), req.Password,
		calendar.Layout{Color: req.Color, Icon: req.Icon})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendar_id": cal.ID})
}

func (a *API) patchLayout(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req layoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err := a.deps.Calendars.PatchLayout(r.Context(), caller, r.PathValue("calendar_id"),
		calendar.Layout{Color: req.Color, Icon: req.Icon})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "layout updated"})
}

func (a *API) getMember(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	m, err := a.deps.Calendars.Member(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"associated_user": newMemberView(*m)})
}

func (a *API) patchMember(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req patchMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := a.deps.Calendars.PatchMember(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("user_id"),
		calendar.PermissionPatch{
			IsOwner:         req.IsOwner,
			CanCreateEvents: req.CanCreateEvents,
			CanEditEvents:   req.CanEditEvents,
		})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "member updated", "changes": changes})
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Calendars.RemoveMember(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "member removed"})
}

func (a *API) createInvitation(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req invitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := a.deps.Calendars.Invite(r.Context(), caller, r.PathValue("calendar_id"), calendar.InvitationInput{
		CanCreateEvents: req.CanCreateEvents,
		CanEditEvents:   req.CanEditEvents,
		ExpireMinutes:   req.Expire,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitation_token": token})
}

func (a *API) acceptInvitation(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req acceptInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cal, err := a.deps.Calendars.AcceptInvitation(r.Context(), caller, req.InvitationToken,
		calendar.Layout{Color: req.Color, Icon: req.Icon})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendar_id": cal.ID})
}
