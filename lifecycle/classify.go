// Package lifecycle implements the account lifecycle classification policy:
// the pure decision procedure that maps a directory account snapshot to the
// action a sweep should take, and the description codec that stamps disabled
// accounts with their inactive-since date.
package lifecycle

import (
	"strings"
	"time"
)

// Classify decides the lifecycle action for one account snapshot. The second
// return value is false when the snapshot is not applicable to the sweep at
// all (server and unknown-OS computers); no Result is produced then.
//
// The decision depends only on the snapshot, the policy and the supplied
// clock value, so calls are safe from any number of goroutines.
func Classify(snap AccountSnapshot, pol Policy, now time.Time) (Result, bool) {
	if snap.Kind == KindComputer && skipOperatingSystem(snap.OperatingSystem) {
		return Result{}, false
	}

	res := Result{AccountSnapshot: snap}
	res.Action = primaryAction(snap, pol, now)

	// Overrides protect accounts from the disable/remove outcome; an account
	// with a recent logon stays NONE regardless of name or description.
	if res.Action != ActionNone {
		res.Action = overrideAction(snap, res.Action, pol, now)
	}
	return res, true
}

// skipOperatingSystem reports whether a computer's operating system excludes
// it from the sweep. Servers are never touched, and an empty value means the
// object never completed a domain join we can reason about.
func skipOperatingSystem(os string) bool {
	if os == "" {
		return true
	}
	return strings.Contains(strings.ToLower(os), "server")
}

func primaryAction(snap AccountSnapshot, pol Policy, now time.Time) Action {
	if !beforeOrNever(snap.LastLogonDate, pol.DisableDate(now)) {
		return ActionNone
	}

	if snap.Enabled {
		return ActionDisable
	}

	// Already disabled: the inactive-since stamp written at disable time
	// gates removal. Without a decodable stamp we fall back to the last
	// logon against the combined window.
	if inactiveSince, ok := DecodeInactiveDate(snap.Description); ok {
		if inactiveSince.Before(pol.RemoveDate(now)) {
			return ActionRemove
		}
		return ActionWait
	}
	if beforeOrNever(snap.LastLogonDate, pol.NoDescRemoveDate(now)) {
		return ActionRemove
	}
	return ActionWait
}

// overrideAction applies the exemptions, lowest priority first so that a
// later match wins. KEEP is checked last and therefore always prevails.
func overrideAction(snap AccountSnapshot, action Action, pol Policy, now time.Time) Action {
	if snap.Kind == KindUser {
		if strings.HasPrefix(strings.ToLower(snap.Name), "svc") {
			action = ActionSvc
		}
		if snap.WhenCreated.After(pol.DisableDate(now)) {
			action = ActionNew
		}
	}
	if strings.Contains(strings.ToLower(snap.Description), "keep") {
		action = ActionKeep
	}
	return action
}

// beforeOrNever compares an optional timestamp against a threshold, treating
// a missing value (never logged on) as infinitely old.
func beforeOrNever(t *time.Time, threshold time.Time) bool {
	return t == nil || t.Before(threshold)
}
