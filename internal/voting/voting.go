// Package voting runs date polls inside a calendar. A voting offers at
// least two choices; every member votes once, for one choice or, when the
// voting allows it, several.
package voting

import (
	"context"
	"time"

	"xitem.org/internal/calendar"
	"xitem.org/internal/store"
)

// MinTitleLength is the shortest accepted title.
const MinTitleLength = 3

// MinChoices is the fewest choices a voting can be created with,
// not counting abstention.
const MinChoices = 2

// AbstentionComment marks the choice added when abstention is allowed.
const AbstentionComment = "abstention"

// Earliest is the earliest accepted choice date.
var Earliest = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// Voting is a poll with its choices. OwnerID is empty once the creator's
// account is deleted.
type Voting struct {
	ID                string
	CalendarID        string
	OwnerID           string
	Title             string
	AbstentionAllowed bool
	MultipleChoice    bool
	CreatedAt         time.Time
	Choices           []Choice
}

// Choice is one option. Date is nil for the abstention choice. Voters
// holds the ids of the users who picked it.
type Choice struct {
	ID      string
	Date    *time.Time
	Comment string
	Voters  []string
}

// Voted reports whether userID picked any choice.
func (v *Voting) Voted(userID string) bool {
	return len(v.VotedFor(userID)) > 0
}

// VotedFor returns the ids of the choices userID picked.
func (v *Voting) VotedFor(userID string) []string {
	var out []string
	for _, c := range v.Choices {
		for _, u := range c.Voters {
			if u == userID {
				out = append(out, c.ID)
				break
			}
		}
	}
	return out
}

// VoterCount returns the number of distinct users who voted.
func (v *Voting) VoterCount() int {
	seen := make(map[string]struct{})
	for _, c := range v.Choices {
		for _, u := range c.Voters {
			seen[u] = struct{}{}
		}
	}
	return len(seen)
}

// Choice returns the choice with the given id.
func (v *Voting) Choice(id string) (*Choice, bool) {
	for i := range v.Choices {
		if v.Choices[i].ID == id {
			return &v.Choices[i], true
		}
	}
	return nil, false
}

// Store persists votings with their choices and votes. Get, Delete and Vote
// return ErrNotFound when the voting does not exist in the given calendar.
// Vote loads the voting under a lock held until the votes are written and
// calls check first; check's error aborts the write. Votes already present
// for the user yield ErrConflict.
type Store interface {
	Create(ctx context.Context, v *Voting) error
	Get(ctx context.Context, calendarID, votingID string) (*Voting, error)
	List(ctx context.Context, calendarID string) ([]Voting, error)
	Delete(ctx context.Context, calendarID, votingID string) error
	Vote(ctx context.Context, calendarID, votingID, userID string, choiceIDs []string, check func(*Voting) error) error
}

// Members looks up calendar memberships.
type Members interface {
	Member(ctx context.Context, calendarID, userID string) (*calendar.Membership, error)
}
