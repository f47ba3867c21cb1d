package activedirectory

import (
	"encoding/binary"
	"fmt"
)

// Self-relative security descriptor layout, per MS-DTYP 2.4.6: a 20 byte
// header of revision, control flags and four part offsets, followed by the
// owner SID, group SID, SACL and DACL wherever the offsets point.
const (
	sdHeaderSize  = 20
	aclHeaderSize = 8
	aceHeaderSize = 4

	accessDeniedACEType = 0x01

	// Access mask bits set by the "protect from accidental deletion" flag.
	rightDelete     = 0x00010000
	rightDeleteTree = 0x00000040

	everyoneSID = "S-1-1-0"
)

type securityDescriptor struct {
	revision byte
	sbz1     byte
	control  uint16
	owner    []byte
	group    []byte
	sacl     []byte
	dacl     []byte
}

func parseSecurityDescriptor(b []byte) (*securityDescriptor, error) {
	if len(b) < sdHeaderSize {
		return nil, fmt.Errorf("security descriptor too short: %d bytes", len(b))
	}

	sd := &securityDescriptor{
		revision: b[0],
		sbz1:     b[1],
		control:  binary.LittleEndian.Uint16(b[2:4]),
	}

	var err error
	if off := binary.LittleEndian.Uint32(b[4:8]); off != 0 {
		if sd.owner, err = sidBytesAt(b, off); err != nil {
			return nil, fmt.Errorf("owner: %w", err)
		}
	}
	if off := binary.LittleEndian.Uint32(b[8:12]); off != 0 {
		if sd.group, err = sidBytesAt(b, off); err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
	}
	if off := binary.LittleEndian.Uint32(b[12:16]); off != 0 {
		if sd.sacl, err = aclBytesAt(b, off); err != nil {
			return nil, fmt.Errorf("sacl: %w", err)
		}
	}
	if off := binary.LittleEndian.Uint32(b[16:20]); off != 0 {
		if sd.dacl, err = aclBytesAt(b, off); err != nil {
			return nil, fmt.Errorf("dacl: %w", err)
		}
	}

	return sd, nil
}

func sidBytesAt(b []byte, off uint32) ([]byte, error) {
	start := int(off)
	if start+8 > len(b) {
		return nil, fmt.Errorf("SID at %d truncated", off)
	}
	length := 8 + 4*int(b[start+1])
	if start+length > len(b) {
		return nil, fmt.Errorf("SID at %d truncated", off)
	}
	return b[start : start+length], nil
}

func aclBytesAt(b []byte, off uint32) ([]byte, error) {
	start := int(off)
	if start+aclHeaderSize > len(b) {
		return nil, fmt.Errorf("ACL at %d truncated", off)
	}
	length := int(binary.LittleEndian.Uint16(b[start+2 : start+4]))
	if length < aclHeaderSize || start+length > len(b) {
		return nil, fmt.Errorf("ACL at %d has invalid size %d", off, length)
	}
	return b[start : start+length], nil
}

// marshal reassembles the descriptor with recomputed offsets, keeping the
// SACL, DACL, owner, group part order Windows emits.
func (sd *securityDescriptor) marshal() []byte {
	size := sdHeaderSize + len(sd.owner) + len(sd.group) + len(sd.sacl) + len(sd.dacl)
	out := make([]byte, sdHeaderSize, size)

	out[0] = sd.revision
	out[1] = sd.sbz1
	binary.LittleEndian.PutUint16(out[2:4], sd.control)

	appendPart := func(headerOffset int, part []byte) {
		if len(part) == 0 {
			return
		}
		binary.LittleEndian.PutUint32(out[headerOffset:headerOffset+4], uint32(len(out)))
		out = append(out, part...)
	}
	appendPart(12, sd.sacl)
	appendPart(16, sd.dacl)
	appendPart(4, sd.owner)
	appendPart(8, sd.group)

	return out
}

// stripDenyDeleteACEs removes the deny-delete entries for Everyone that
// implement deletion protection. Returns the rewritten descriptor and whether
// anything was removed; an untouched descriptor comes back as-is.
func stripDenyDeleteACEs(raw []byte) ([]byte, bool, error) {
	sd, err := parseSecurityDescriptor(raw)
	if err != nil {
		return nil, false, err
	}
	if sd.dacl == nil {
		return raw, false, nil
	}

	dacl, removed, err := filterACL(sd.dacl)
	if err != nil {
		return nil, false, err
	}
	if removed == 0 {
		return raw, false, nil
	}

	sd.dacl = dacl
	return sd.marshal(), true, nil
}

// filterACL walks the ACEs of an ACL and rebuilds it without the deny-delete
// entries, fixing the size and count header fields.
func filterACL(acl []byte) ([]byte, int, error) {
	aceCount := int(binary.LittleEndian.Uint16(acl[4:6]))

	var kept [][]byte
	removed := 0
	offset := aclHeaderSize
	for i := 0; i < aceCount; i++ {
		if offset+aceHeaderSize > len(acl) {
			return nil, 0, fmt.Errorf("ACE %d truncated", i)
		}
		aceSize := int(binary.LittleEndian.Uint16(acl[offset+2 : offset+4]))
		if aceSize < aceHeaderSize || offset+aceSize > len(acl) {
			return nil, 0, fmt.Errorf("ACE %d has invalid size %d", i, aceSize)
		}

		ace := acl[offset : offset+aceSize]
		if isDenyDeleteACE(ace) {
			removed++
		} else {
			kept = append(kept, ace)
		}
		offset += aceSize
	}

	size := aclHeaderSize
	for _, ace := range kept {
		size += len(ace)
	}

	out := make([]byte, aclHeaderSize, size)
	out[0] = acl[0]
	out[1] = acl[1]
	binary.LittleEndian.PutUint16(out[2:4], uint16(size))
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(kept)))
	copy(out[6:8], acl[6:8])
	for _, ace := range kept {
		out = append(out, ace...)
	}

	return out, removed, nil
}

// isDenyDeleteACE matches access-denied entries that withhold delete or
// delete-tree rights from Everyone.
func isDenyDeleteACE(ace []byte) bool {
	if ace[0] != accessDeniedACEType {
		return false
	}
	if len(ace) < aceHeaderSize+4+8 {
		return false
	}
	mask := binary.LittleEndian.Uint32(ace[4:8])
	if mask&(rightDelete|rightDeleteTree) == 0 {
		return false
	}
	sid, err := sidString(ace[8:])
	if err != nil {
		return false
	}
	return sid == everyoneSID
}
