package httpapi

import (
	"net/http"
	"time"

	"xitem.org/internal/auth"
	"xitem.org/internal/voting"
)

// votingView is rendered for one caller: the tally is shared, the
// user_* fields are the caller's own.
type votingView struct {
	VotingID          string       `json:"voting_id"`
	CalendarID        string       `json:"calendar_id"`
	OwnerID           *string      `json:"owner_id"`
	Title             string       `json:"title"`
	AbstentionAllowed bool         `json:"abstention_allowed"`
	MultipleChoice    bool         `json:"multiple_choice"`
	UsersVoted        int          `json:"users_voted"`
	UserHasVoted      bool         `json:"user_has_voted"`
	UserVotedFor      []string     `json:"user_voted_for"`
	Choices           []choiceView `json:"choices"`
	CreatedAt         time.Time    `json:"creation_date"`
}

type choiceView struct {
	ChoiceID    string     `json:"choice_id"`
	Date        *time.Time `json:"date"`
	Comment     string     `json:"comment"`
	AmountVotes int        `json:"amount_votes"`
}

func newVotingView(v *voting.Voting, userID string) votingView {
	view := votingView{
		VotingID:          v.ID,
		CalendarID:        v.CalendarID,
		Title:             v.Title,
		AbstentionAllowed: v.AbstentionAllowed,
		MultipleChoice:    v.MultipleChoice,
		UsersVoted:        v.VoterCount(),
		UserVotedFor:      v.VotedFor(userID),
		Choices:           make([]choiceView, 0, len(v.Choices)),
		CreatedAt:         v.CreatedAt,
	}
	if v.OwnerID != "" {
		owner := v.OwnerID
		view.OwnerID = &owner
	}
	if view.UserVotedFor == nil {
		view.UserVotedFor = []string{}
	}
	view.UserHasVoted = len(view.UserVotedFor) > 0
	for _, c := range v.Choices {
		view.Choices = append(view.Choices, choiceView{ChoiceID: c.ID, Date: c.Date, Comment: c.Comment, AmountVotes: len(c.Voters)})
	}
	return view
}

type votingRequest struct {
	Title             *string `json:"title"`
	AbstentionAllowed *bool   `json:"abstention_allowed"`
	MultipleChoice    *bool   `json:"multiple_choice"`
	Choices           []struct {
		Date    *time.Time `json:"date"`
		Comment string     `json:"comment"`
	} `json:"choices"`
}

func (req votingRequest) input() voting.Input {
	in := voting.Input{
		Title:             req.Title,
		AbstentionAllowed: req.AbstentionAllowed,
		MultipleChoice:    req.MultipleChoice,
	}
	for _, c := range req.Choices {
		in.Choices = append(in.Choices, voting.ChoiceInput{Date: c.Date, Comment: c.Comment})
	}
	return in
}

func (a *API) createVoting(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req votingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := a.deps.Votings.Create(r.Context(), caller, r.PathValue("calendar_id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"voting_id": v.ID, "voting": newVotingView(v, caller.UserID)})
}

func (a *API) listVotings(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	list, err := a.deps.Votings.List(r.Context(), caller, r.PathValue("calendar_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]votingView, 0, len(list))
	for i := range list {
		out = append(out, newVotingView(&list[i], caller.UserID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"votings": out})
}

func (a *API) getVoting(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	v, err := a.deps.Votings.Get(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("voting_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voting": newVotingView(v, caller.UserID)})
}

func (a *API) deleteVoting(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	if err := a.deps.Votings.Delete(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("voting_id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"info": "voting deleted"})
}

func (a *API) vote(w http.ResponseWriter, r *http.Request, caller auth.Identity) {
	var req struct {
		ChoiceIDs []string `json:"choice_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.deps.Votings.Vote(r.Context(), caller, r.PathValue("calendar_id"), r.PathValue("voting_id"), req.ChoiceIDs); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"info": "vote recorded"})
}
