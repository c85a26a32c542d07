package calendar

import (
	"xitem.org/internal/apperr"
	"xitem.org/internal/obs"
)

// The guard functions below run against a membership set read inside
// Store.Locked, so no other writer can change it between check and write.

func ownerCount(members []Membership) int {
	n := 0
	for _, m := range members {
		if m.IsOwner {
			n++
		}
	}
	return n
}

func find(members []Membership, userID string) (Membership, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Membership{}, false
}

// CheckRemove validates removing target from members.
func CheckRemove(members []Membership, target string) error {
	err := checkRemove(members, target)
	observe("remove", err)
	return err
}

func checkRemove(members []Membership, target string) error {
	m, ok := find(members, target)
	if !ok {
		return apperr.MemberNotFound
	}
	if len(members) <= 1 {
		return apperr.LastMember
	}
	if m.IsOwner && ownerCount(members) <= 1 {
		return apperr.LastOwner
	}
	return nil
}

// CheckDemotion validates patch against the current set before any field
// is applied.
func CheckDemotion(members []Membership, target Membership, patch PermissionPatch) error {
	var err error
	if target.IsOwner && patch.IsOwner != nil && !*patch.IsOwner && ownerCount(members) <= 1 {
		err = apperr.LastOwner
	}
	observe("patch", err)
	return err
}

// CheckJoin validates adding a member. existing is the caller's current
// row, if any.
func CheckJoin(cal *Calendar, existing *Membership) error {
	var err error
	switch {
	case existing != nil:
		err = apperr.AlreadyExists
	case !cal.CanJoin:
		err = apperr.NotJoinable
	}
	observe("join", err)
	return err
}

func observe(operation string, err error) {
	outcome := "allowed"
	if err != nil {
		outcome = apperr.CodeOf(err).Tag()
	}
	obs.ObserveGuard(operation, outcome)
}
