package activedirectory

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-ldap/ldap/v3"

	"f0oster/adsweep/lifecycle"
)

const (
	// userAccountControl bit for a disabled account.
	uacAccountDisable = 0x2

	// FILETIME counts 100ns intervals since 1601-01-01; the offset converts
	// to the Unix epoch. math.MaxInt64 is the "never expires" sentinel.
	filetimeEpochOffset = 116444736000000000
	filetimeNever       = int64(9223372036854775807)

	// whenCreated and friends use ASN.1 GeneralizedTime.
	generalizedTimeLayout = "20060102150405.0Z"
)

// Attributes fetched for every inspected account. lastLogonTimestamp is the
// replicated logon attribute, so any domain controller can answer for the
// whole domain.
var accountAttributes = []string{
	"sAMAccountName",
	"name",
	"distinguishedName",
	"description",
	"operatingSystem",
	"lastLogonTimestamp",
	"whenCreated",
	"userAccountControl",
	"whenChanged",
	"objectSid",
}

// snapshotFromEntry decodes an LDAP entry into an account snapshot. Malformed
// attribute values degrade to their zero value rather than failing the entry.
func snapshotFromEntry(entry *ldap.Entry, kind lifecycle.Kind) lifecycle.AccountSnapshot {
	name := entry.GetAttributeValue("sAMAccountName")
	if kind == lifecycle.KindComputer {
		// Computer sAMAccountNames carry a trailing $; the plain name reads better.
		if n := entry.GetAttributeValue("name"); n != "" {
			name = n
		}
	}

	snap := lifecycle.AccountSnapshot{
		Kind:            kind,
		Name:            name,
		DN:              entry.DN,
		Enabled:         accountEnabled(entry.GetAttributeValue("userAccountControl")),
		OperatingSystem: entry.GetAttributeValue("operatingSystem"),
		Description:     entry.GetAttributeValue("description"),
		RawAttributes:   rawAttributeMap(entry),
	}

	snap.LastLogonDate = decodeFiletime(entry.GetAttributeValue("lastLogonTimestamp"))

	if created, err := decodeGeneralizedTime(entry.GetAttributeValue("whenCreated")); err == nil {
		snap.WhenCreated = created
	}

	return snap
}

// accountEnabled reports whether the ACCOUNTDISABLE bit is clear. Values that
// do not parse are treated as enabled, which at worst re-disables an account.
func accountEnabled(uac string) bool {
	v, err := strconv.ParseInt(uac, 10, 64)
	if err != nil {
		return true
	}
	return v&uacAccountDisable == 0
}

// decodeFiletime converts a FILETIME integer string to a timestamp. Returns
// nil for empty, zero and "never" sentinel values.
func decodeFiletime(value string) *time.Time {
	if value == "" || value == "0" {
		return nil
	}

	ft, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	if ft == 0 || ft == filetimeNever {
		return nil
	}

	t := time.Unix(0, (ft-filetimeEpochOffset)*100).UTC()
	return &t
}

func decodeGeneralizedTime(value string) (time.Time, error) {
	return time.Parse(generalizedTimeLayout, value)
}

// rawAttributeMap captures every returned attribute for archival. Binary
// values that are not valid UTF-8 are base64 encoded so the map stays
// JSON-safe; SIDs additionally get their canonical string form.
func rawAttributeMap(entry *ldap.Entry) map[string][]string {
	raw := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		values := make([]string, len(attr.ByteValues))
		for i, b := range attr.ByteValues {
			switch {
			case attr.Name == "objectSid":
				if sid, err := sidString(b); err == nil {
					values[i] = sid
					continue
				}
				values[i] = base64.StdEncoding.EncodeToString(b)
			case utf8.Valid(b):
				values[i] = string(b)
			default:
				values[i] = base64.StdEncoding.EncodeToString(b)
			}
		}
		raw[attr.Name] = values
	}
	return raw
}

// sidString formats a binary object SID in S-R-I-S-S... form.
func sidString(sidBytes []byte) (string, error) {
	// Minimum SID length is 8 bytes: revision (1), sub-authority count (1), authority (6)
	if len(sidBytes) < 8 {
		return "", fmt.Errorf("invalid SID: too short")
	}

	revision := sidBytes[0]
	subAuthorityCount := int(sidBytes[1])

	// The authority is a 6 byte big-endian integer.
	authority := binary.BigEndian.Uint64(append([]byte{0, 0}, sidBytes[2:8]...))

	expectedLength := 8 + (subAuthorityCount * 4)
	if len(sidBytes) < expectedLength {
		return "", fmt.Errorf("invalid SID: insufficient length for sub-authorities")
	}

	var sidBuffer bytes.Buffer
	sidBuffer.WriteString(fmt.Sprintf("S-%d-%d", revision, authority))
	offset := 8
	for i := 0; i < subAuthorityCount; i++ {
		sidBuffer.WriteString(fmt.Sprintf("-%d", binary.LittleEndian.Uint32(sidBytes[offset:offset+4])))
		offset += 4
	}

	return sidBuffer.String(), nil
}
