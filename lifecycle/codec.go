package lifecycle

import (
	"strings"
	"time"
)

// inactiveMarker prefixes the description of every account the sweep
// disables. The date that follows it is what later gates removal.
const inactiveMarker = "INACTIVE"

// stampLayout is the written form of the inactive-since date.
const stampLayout = "01/02/2006"

// decodeLayouts accepts the written form plus the variants administrators
// tend to type by hand (unpadded month/day, ISO date).
var decodeLayouts = []string{"1/2/2006", "2006-01-02"}

// EncodeDisabledDescription builds the description written when an account is
// disabled: the marker, the inactive-since date, then whatever description
// the account had before, preserved verbatim.
func EncodeDisabledDescription(prior string, disabledOn time.Time) string {
	stamped := inactiveMarker + " " + disabledOn.Format(stampLayout)
	if prior == "" {
		return stamped
	}
	return stamped + " " + prior
}

// DecodeInactiveDate recovers the inactive-since date from a description
// produced by EncodeDisabledDescription. It returns ok=false for anything it
// cannot read: no marker, no date token, or an unparseable date. Callers are
// expected to fall back to last-logon based removal in that case.
func DecodeInactiveDate(description string) (time.Time, bool) {
	fields := strings.Fields(description)
	if len(fields) < 2 || !strings.EqualFold(fields[0], inactiveMarker) {
		return time.Time{}, false
	}
	for _, layout := range decodeLayouts {
		if t, err := time.Parse(layout, fields[1]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
