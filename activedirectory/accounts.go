package activedirectory

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"f0oster/adsweep/activedirectory/ldaphelpers"
	"f0oster/adsweep/lifecycle"
)

// kindFilter selects accounts of one kind. Computer objects are users too in
// the directory schema, so the user filter pins objectCategory=person.
func kindFilter(kind lifecycle.Kind) ldaphelpers.Filter {
	if kind == lifecycle.KindComputer {
		return ldaphelpers.Eq("objectClass", "computer")
	}
	return ldaphelpers.And(
		ldaphelpers.Eq("objectCategory", "person"),
		ldaphelpers.Eq("objectClass", "user"),
	)
}

// FetchAccounts enumerates every account of the given kind under searchBase,
// following paging cookies. An empty searchBase falls back to the directory
// base DN.
func (d *Directory) FetchAccounts(kind lifecycle.Kind, searchBase string) ([]lifecycle.AccountSnapshot, error) {
	base := searchBase
	if base == "" {
		base = d.BaseDN
	}

	var snapshots []lifecycle.AccountSnapshot
	err := d.pagedSearch(base, kindFilter(kind).String(), accountAttributes, func(entry *ldap.Entry) error {
		snapshots = append(snapshots, snapshotFromEntry(entry, kind))
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("enumerated accounts",
		zap.Stringer("kind", kind),
		zap.String("base", base),
		zap.Int("count", len(snapshots)),
	)
	return snapshots, nil
}

// FetchAccount looks up a single account by name. Computers match on either
// the plain name or the dollar-suffixed sAMAccountName.
func (d *Directory) FetchAccount(kind lifecycle.Kind, name string) (lifecycle.AccountSnapshot, error) {
	nameFilter := ldaphelpers.Eq("sAMAccountName", name)
	if kind == lifecycle.KindComputer {
		nameFilter = ldaphelpers.Or(
			ldaphelpers.Eq("name", name),
			ldaphelpers.Eq("sAMAccountName", name),
			ldaphelpers.Eq("sAMAccountName", name+"$"),
		)
	}

	request := ldap.NewSearchRequest(
		d.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		ldaphelpers.And(kindFilter(kind), nameFilter).String(),
		accountAttributes,
		nil,
	)

	results, err := d.conn.Search(request)
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return lifecycle.AccountSnapshot{}, errors.Wrapf(err, "lookup %s", name)
	}
	if results == nil || len(results.Entries) == 0 {
		return lifecycle.AccountSnapshot{}, &NotFoundError{DN: name}
	}

	return snapshotFromEntry(results.Entries[0], kind), nil
}
