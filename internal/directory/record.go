package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Record is one directory entry as seen by the formatter: the user
// identifier and the badge identifiers in the order the server returned them.
type Record struct {
	DN       string
	UID      string
	BadgeIDs []string
}

// NewRecord is an initializer function for Record.
func NewRecord(dn, uid string, badgeIDs []string) *Record {
	return &Record{
		DN:       dn,
		UID:      uid,
		BadgeIDs: badgeIDs,
	}
}

// NewRecordFromEntry converts an *ldap.Entry into a Record. Attribute names
// are matched case-insensitively. A missing uid attribute yields an empty
// UID; a multi-valued one keeps the first value.
func NewRecordFromEntry(entry *ldap.Entry, uidAttr, badgeAttr string) *Record {
	var (
		uid    string
		badges []string
	)

	for _, attr := range entry.Attributes {
		switch {
		case strings.EqualFold(attr.Name, uidAttr):
			if uid == "" && len(attr.Values) > 0 {
				uid = attr.Values[0]
			}
		case strings.EqualFold(attr.Name, badgeAttr):
			// Flatten in case the server split the values over several
			// attribute instances.
			badges = append(badges, attr.Values...)
		}
	}

	return NewRecord(entry.DN, uid, badges)
}

// Records converts entries in order.
func Records(entries []*ldap.Entry, uidAttr, badgeAttr string) []*Record {
	records := make([]*Record, 0, len(entries))

	for _, entry := range entries {
		records = append(records, NewRecordFromEntry(entry, uidAttr, badgeAttr))
	}

	return records
}

// HasBadge reports whether the record carries at least one non-empty badge
// identifier.
func (r *Record) HasBadge() bool {
	for _, id := range r.BadgeIDs {
		if id != "" {
			return true
		}
	}

	return false
}
