// Package activedirectory wraps the LDAP plumbing for inspecting and
// mutating computer and user accounts: paged searches, attribute decoding,
// disable/delete operations and security descriptor handling.
package activedirectory

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Security descriptor parts requested through the LDAP_SERVER_SD_FLAGS_OID
// control. We only ever touch the DACL.
const (
	sdFlagOwner = 0x1
	sdFlagGroup = 0x2
	sdFlagDACL  = 0x4
	sdFlagSACL  = 0x8
)

type Directory struct {
	URL      string
	BaseDN   string
	PageSize uint32

	conn   *ldap.Conn
	logger *zap.Logger
}

func New(url, baseDN string, pageSize uint32, logger *zap.Logger) *Directory {
	return &Directory{
		URL:      url,
		BaseDN:   baseDN,
		PageSize: pageSize,
		logger:   logger,
	}
}

// Connect dials the domain controller and binds with the given credentials.
func (d *Directory) Connect(username, password string) error {
	conn, err := ldap.DialURL(d.URL)
	if err != nil {
		return errors.Wrapf(err, "dial %s", d.URL)
	}

	// TODO: LDAPS client certs, IWA/GSSAPI
	if err := conn.Bind(username, password); err != nil {
		conn.Close()
		return errors.Wrapf(err, "bind as %s", username)
	}

	res, err := conn.WhoAmI(nil)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "whoami")
	}
	d.logger.Info("authenticated to directory",
		zap.String("url", d.URL),
		zap.String("authz_id", res.AuthzID),
	)

	d.conn = conn
	return nil
}

func (d *Directory) Close() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// createSDFlagsControl builds the LDAP_SERVER_SD_FLAGS_OID extended control
// restricting which security descriptor parts the server returns or applies.
// The value is the BER-encoded sequence [0x30 0x03 0x02 0x01 flags].
// https://learn.microsoft.com/en-us/previous-versions/windows/desktop/ldap/ldap-server-sd-flags-oid
func createSDFlagsControl(flags byte) ldap.Control {
	value := []byte{0x30, 0x03, 0x02, 0x01, flags}
	return ldap.NewControlString("1.2.840.113556.1.4.801", true, string(value))
}

// pagedSearch runs a subtree search under baseDN and invokes each per entry,
// following paging cookies until the server reports the last page.
func (d *Directory) pagedSearch(baseDN, filter string, attributes []string, each func(entry *ldap.Entry) error) error {
	pageControl := ldap.NewControlPaging(d.PageSize)
	request := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attributes,
		[]ldap.Control{pageControl},
	)

	for {
		results, err := d.conn.Search(request)
		if err != nil {
			return errors.Wrapf(err, "search %s under %s", filter, baseDN)
		}

		for _, entry := range results.Entries {
			if err := each(entry); err != nil {
				return err
			}
		}

		paging, ok := ldap.FindControl(results.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok || len(paging.Cookie) == 0 {
			break
		}
		pageControl.SetCookie(paging.Cookie)
	}

	return nil
}

// searchOne runs a base-scoped search against a single DN.
func (d *Directory) searchOne(dn string, attributes []string, controls []ldap.Control) (*ldap.Entry, error) {
	request := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		attributes,
		controls,
	)

	results, err := d.conn.Search(request)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, &NotFoundError{DN: dn}
		}
		return nil, errors.Wrapf(err, "read %s", dn)
	}
	if len(results.Entries) == 0 {
		return nil, &NotFoundError{DN: dn}
	}

	return results.Entries[0], nil
}
