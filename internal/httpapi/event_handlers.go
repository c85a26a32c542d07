package httpapi

import (
	"net/http"
	"time"

	"xitem.org/internal/apperr"
	"xitem.org/internal/auth"
	"xitem.org/internal/event"
)

type eventView struct {
	EventID     string    `json:"event_id"`
	CalendarID  string    `json:"calendar_id"`
	CreatedBy   *string   `json:"created_by_user"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Begin       time.Time `json:"begin_date"`
	End         time.Time `json:"end_date"`
	Daylong     bool      `json:"daylong"`
	Color       int64     `json:"color"`
	CreatedAt   time.Time `json:"creation_date"`
}

func newEventView(e event.Event) eventView {
	v := eventView{
		EventID:     e.ID,
		CalendarID:  e.CalendarID,
		Title:       e.Title,
		Description: e.Description,
		Begin:       e.Begin,
		End:         e.End,
		Daylong:     e.Daylong,
		Color:       e.Color,
		CreatedAt:   e.CreatedAt,
	}
	if e.CreatedBy != "" {
		by := e.CreatedBy
		v.CreatedBy = &by
	}
	return v
}

type eventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Begin       *time.Time `json:"begin_date"`
	End         *time.Time `json:"end_date"`
	Daylong     *bool      `json:"daylong"`
	Color       *int64     `json:"color"`
}

func (req eventRequest) input() event.Input {
	return event.Input{
		Title:       req.Title,
		Description: req.Description,
		Begin:       req.Begin,
		End:         req.End,
		Daylong:     req.Daylong,
		Color:       req.Color,
	}
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := a.deps.Events.Create(r.Context(), caller, r.PathValue("calendar_id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"event_id": e.ID, "event": newEventView(*e)})
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	win, err := queryWindow(r, "begin", "end", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.writeEvents(w, r, caller, win)
}

// eventsPeriod is the filter route: both bounds are mandatory.
func (a *API) eventsPeriod(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	win, err := queryWindow(r, "begin_date", "end_date", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.writeEvents(w, r, caller, win)
}

func queryWindow(r *http.Request, beginKey, endKey string, required bool) (event.Window, error) {
	var win event.Window
	for key, dst := range map[string]**time.Time{beginKey: &win.Begin, endKey: &win.End} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			if required {
				return event.Window{}, apperr.MissingArgument
			}
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return event.Window{}, apperr.InvalidDate
		}
		*dst = &t
	}
	return win, nil
}

func (a *API) writeEvents(w http.ResponseWriter, r *http.Request, caller auth.Identity, win event.Window) {
	list, err := a.deps.Events.List(r.Context(), caller, r.PathValue("calendar_id"), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventView, 0, len(list))
	for _, e := range list {
		out = append(out, newEventView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	e, err := a.deps.Events.Get(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("event_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": newEventView(*e)})
}

func (a *API) editEvent(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := a.deps.Events.Edit(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("event_id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "event updated", "changes": changes})
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Events.Delete(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("event_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "event deleted"})
}
