package lifecycle

import (
	"testing"
	"time"
)

func TestEncodeDisabledDescription(t *testing.T) {
	on := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		prior string
		want  string
	}{
		{"empty prior", "", "INACTIVE 03/05/2024"},
		{"prior preserved", "Helpdesk ticket 4411", "INACTIVE 03/05/2024 Helpdesk ticket 4411"},
		{"prior with its own marker", "INACTIVE 01/01/2020 stale", "INACTIVE 03/05/2024 INACTIVE 01/01/2020 stale"},
	}

	for _, test := range tests {
		got := EncodeDisabledDescription(test.prior, on)
		if got != test.want {
			t.Errorf("%s: got %q, want %q", test.name, got, test.want)
		}
	}
}

func TestDecodeInactiveDate(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want time.Time
		ok   bool
	}{
		{"zero padded", "INACTIVE 03/05/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"unpadded", "INACTIVE 3/5/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"iso date", "INACTIVE 2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"lowercase marker", "inactive 03/05/2024 left org", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"trailing prior text", "INACTIVE 03/05/2024 Helpdesk ticket 4411", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"extra whitespace", "  INACTIVE   03/05/2024  ", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"marker only", "INACTIVE", time.Time{}, false},
		{"marker not first", "user INACTIVE 03/05/2024", time.Time{}, false},
		{"garbage date", "INACTIVE someday", time.Time{}, false},
		{"day out of range", "INACTIVE 13/45/2024", time.Time{}, false},
		{"plain description", "Helpdesk ticket 4411", time.Time{}, false},
	}

	for _, test := range tests {
		got, ok := DecodeInactiveDate(test.desc)
		if ok != test.ok {
			t.Errorf("%s: got ok=%v, want %v", test.name, ok, test.ok)
			continue
		}
		if ok && !got.Equal(test.want) {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// Whatever was in the description before disabling, encoding and decoding
// must hand back the disable date.
func TestDescriptionRoundTrip(t *testing.T) {
	on := time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC)

	priors := []string{
		"",
		"laptop for contractor",
		"KEEP until migration",
		"INACTIVE 01/01/2020",
		"multi  spaced   words",
		"dépôt régional",
	}

	for _, prior := range priors {
		encoded := EncodeDisabledDescription(prior, on)
		got, ok := DecodeInactiveDate(encoded)
		if !ok {
			t.Errorf("prior %q: encoded description %q did not decode", prior, encoded)
			continue
		}
		if !got.Equal(on) {
			t.Errorf("prior %q: decoded %v, want %v", prior, got, on)
		}
	}
}
