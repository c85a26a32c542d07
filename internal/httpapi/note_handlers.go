package httpapi

import (
	"net/http"
	"time"

	"xitem.org/internal/auth"
	"xitem.org/internal/note"
)

type noteView struct {
	NoteID     string    `json:"note_id"`
	CalendarID string    `json:"calendar_id"`
	OwnerID    *string   `json:"owner_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Color      int64     `json:"color"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"creation_date"`
	ModifiedAt time.Time `json:"modification_date"`
}

func newNoteView(n note.Note) noteView {
	v := noteView{
		NoteID:     n.ID,
		CalendarID: n.CalendarID,
		Title:      n.Title,
		Content:    n.Content,
		Color:      n.Color,
		Pinned:     n.Pinned,
		CreatedAt:  n.CreatedAt,
		ModifiedAt: n.ModifiedAt,
	}
	if n.OwnerID != "" {
		owner := n.OwnerID
		v.OwnerID = &owner
	}
	return v
}

type noteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Color   *int64  `json:"color"`
	Pinned  *bool   `json:"pinned"`
}

func (req noteRequest) input() note.Input {
	return note.Input{Title: req.Title, Content: req.Content, Color: req.Color, Pinned: req.Pinned}
}

func (a *API) createNote(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := a.deps.Notes.Create(r.Context(), caller, r.PathValue("calendar_id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"note_id": n.ID, "note": newNoteView(*n)})
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	list, err := a.deps.Notes.List(r.Context(), caller, r.PathValue("calendar_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]noteView, 0, len(list))
	for _, n := range list {
		out = append(out, newNoteView(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": out})
}

func (a *API) getNote(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	n, err := a.deps.Notes.Get(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("note_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"note": newNoteView(*n)})
}

func (a *API) editNote(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := a.deps.Notes.Edit(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("note_id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "note updated", "changes": changes})
}

func (a *API) deleteNote(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Notes.Delete(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("note_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "note deleted"})
}
