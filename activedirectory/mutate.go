package activedirectory

import (
	"strconv"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DisableAccount sets the ACCOUNTDISABLE bit and replaces the description in
// one modify. Deletion protection is cleared first so the eventual removal is
// not blocked by a deny ACE.
func (d *Directory) DisableAccount(dn, description string) error {
	if err := d.ClearDeletionProtection(dn); err != nil {
		return err
	}

	entry, err := d.searchOne(dn, []string{"userAccountControl"}, nil)
	if err != nil {
		return err
	}
	uac, err := strconv.ParseInt(entry.GetAttributeValue("userAccountControl"), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parse userAccountControl of %s", dn)
	}

	request := ldap.NewModifyRequest(dn, nil)
	request.Replace("userAccountControl", []string{strconv.FormatInt(uac|uacAccountDisable, 10)})
	request.Replace("description", []string{description})
	if err := d.conn.Modify(request); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return &NotFoundError{DN: dn}
		}
		return errors.Wrapf(err, "disable %s", dn)
	}

	d.logger.Info("disabled account", zap.String("dn", dn))
	return nil
}

// DeleteAccount removes the object from the directory.
func (d *Directory) DeleteAccount(dn string) error {
	if err := d.ClearDeletionProtection(dn); err != nil {
		return err
	}

	request := ldap.NewDelRequest(dn, nil)
	if err := d.conn.Del(request); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return &NotFoundError{DN: dn}
		}
		return errors.Wrapf(err, "delete %s", dn)
	}

	d.logger.Info("deleted account", zap.String("dn", dn))
	return nil
}

// ClearDeletionProtection rewrites the object's DACL without the deny-delete
// entries for Everyone. Objects without the protection flag are left alone.
// The SD flags control scopes both the read and the write to the DACL, so
// owner, group and SACL stay untouched.
func (d *Directory) ClearDeletionProtection(dn string) error {
	control := createSDFlagsControl(sdFlagDACL)

	entry, err := d.searchOne(dn, []string{"nTSecurityDescriptor"}, []ldap.Control{control})
	if err != nil {
		return err
	}

	raw := entry.GetRawAttributeValue("nTSecurityDescriptor")
	if len(raw) == 0 {
		return nil
	}

	stripped, changed, err := stripDenyDeleteACEs(raw)
	if err != nil {
		return errors.Wrapf(err, "parse security descriptor of %s", dn)
	}
	if !changed {
		return nil
	}

	request := ldap.NewModifyRequest(dn, []ldap.Control{control})
	request.Replace("nTSecurityDescriptor", []string{string(stripped)})
	if err := d.conn.Modify(request); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return &NotFoundError{DN: dn}
		}
		return errors.Wrapf(err, "clear deletion protection on %s", dn)
	}

	d.logger.Info("cleared deletion protection", zap.String("dn", dn))
	return nil
}
