package activedirectory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// NotFoundError reports that a directory object does not exist, typically
// because it was deleted between enumeration and inspection.
type NotFoundError struct {
	DN string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("directory object not found: %s", e.DN)
}

// IsNotFound reports whether err means the target object is gone, either as
// our own NotFoundError or as an LDAP noSuchObject result.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject)
}
