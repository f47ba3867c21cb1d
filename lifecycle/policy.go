package lifecycle

import (
	"fmt"
	"time"
)

// Policy holds the day thresholds that drive classification. Both values must
// be positive; Validate rejects anything else before a sweep starts.
type Policy struct {
	// DisableDays is how long an enabled account may go without a logon
	// before it is disabled.
	DisableDays int

	// RemoveDays is how long a disabled account waits, counted from its
	// inactive-since stamp, before it is removed.
	RemoveDays int
}

// DefaultComputerPolicy mirrors the thresholds the sweep has always shipped
// with for machine accounts.
func DefaultComputerPolicy() Policy {
	return Policy{DisableDays: 30, RemoveDays: 30}
}

// DefaultUserPolicy is deliberately more conservative than the computer
// policy; people come back from leave, machines rarely do.
func DefaultUserPolicy() Policy {
	return Policy{DisableDays: 90, RemoveDays: 180}
}

func (p Policy) Validate() error {
	if p.DisableDays <= 0 {
		return fmt.Errorf("disable days must be positive, got %d", p.DisableDays)
	}
	if p.RemoveDays <= 0 {
		return fmt.Errorf("remove days must be positive, got %d", p.RemoveDays)
	}
	return nil
}

// DisableDate is the cutoff for the last logon: accounts that have not logged
// on since this instant are considered stale.
func (p Policy) DisableDate(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.DisableDays)
}

// RemoveDate is the cutoff for the inactive-since stamp of a disabled account.
func (p Policy) RemoveDate(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RemoveDays)
}

// NoDescRemoveDate is the fallback removal cutoff used when a disabled
// account's description does not decode: the account must have been logon-free
// for the disable and remove windows combined.
func (p Policy) NoDescRemoveDate(now time.Time) time.Time {
	return now.AddDate(0, 0, -(p.DisableDays + p.RemoveDays))
}
