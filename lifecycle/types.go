package lifecycle

import "time"

// Kind distinguishes the two account classes the sweep inspects.
type Kind int

const (
	KindComputer Kind = iota
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindComputer:
		return "computer"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Action is the lifecycle decision for a single account. The numeric order
// doubles as the grouping order in reports.
type Action int

const (
	// ActionNone - account is active, nothing to do.
	ActionNone Action = iota

	// ActionDisable - account is stale and still enabled; disable it and stamp
	// the description with the inactive-since date.
	ActionDisable

	// ActionWait - account is already disabled but has not been inactive long
	// enough to remove yet.
	ActionWait

	// ActionRemove - account has been disabled past the removal threshold.
	ActionRemove

	// ActionKeep - description carries the KEEP flag; exempt from automation.
	ActionKeep

	// ActionSvc - user account identified as a service account by naming
	// convention; exempt from disable/remove.
	ActionSvc

	// ActionNew - user account created after the disable threshold; protected
	// while it has no logon history.
	ActionNew
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionDisable:
		return "DISABLE"
	case ActionWait:
		return "WAIT"
	case ActionRemove:
		return "REMOVE"
	case ActionKeep:
		return "KEEP"
	case ActionSvc:
		return "SVC"
	case ActionNew:
		return "NEW"
	default:
		return "UNKNOWN"
	}
}

// AccountSnapshot is the point-in-time directory state of one account, as
// supplied by the caller for each evaluation. The classifier never mutates it.
type AccountSnapshot struct {
	Kind Kind

	// Name is the sAMAccountName, unique within its kind.
	Name string

	// DN is the Distinguished Name of the backing directory object.
	DN string

	// Enabled is derived from the ACCOUNTDISABLE bit of userAccountControl.
	Enabled bool

	// LastLogonDate is the replicated last-logon timestamp. Nil means the
	// directory never recorded a logon, which classification treats as
	// infinitely old.
	LastLogonDate *time.Time

	// WhenCreated is the object creation time. Only consulted for users.
	WhenCreated time.Time

	// OperatingSystem is set for computers only. Server or unknown operating
	// systems exclude the computer from classification entirely.
	OperatingSystem string

	// Description is the free-text description field. It may carry an
	// inactive-since stamp written by a previous sweep and/or a KEEP flag.
	Description string

	// RawAttributes preserves every fetched directory attribute so that a
	// removed account can be archived in full.
	RawAttributes map[string][]string
}

// Result echoes the snapshot it was computed from together with the decided
// action.
type Result struct {
	AccountSnapshot

	Action Action
}
