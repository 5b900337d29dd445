package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	ldif "github.com/go-ldap/ldif"
	"go.uber.org/zap"
)

///////////////////////////////////////////////////////////////////////////////
// Offline source
///////////////////////////////////////////////////////////////////////////////

// LDIFSource serves entries from an LDIF export instead of a live server.
// It applies the same base DN scoping and badge presence filter as the
// subtree search.
type LDIFSource struct {
	path   string
	cfg    *Config
	logger *zap.Logger
}

// NewLDIFSource is an initializer function for LDIFSource.
func NewLDIFSource(path string, cfg *Config, logger *zap.Logger) *LDIFSource {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LDIFSource{
		path:   path,
		cfg:    cfg,
		logger: logger,
	}
}

// Entries parses the file and returns the matching content records in file
// order. Change records (add/modify/delete) are ignored.
func (s *LDIFSource) Entries(ctx context.Context) ([]*ldap.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSource, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %q: %w", ErrSource, s.path, err)
	}
	defer f.Close()

	parsed := &ldif.LDIF{}
	if err := ldif.Unmarshal(f, parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse LDIF in %q: %w", ErrSource, s.path, err)
	}

	base, err := ldap.ParseDN(s.cfg.BaseDN)
	if err != nil {
		return nil, fmt.Errorf("invalid base DN %q: %w", s.cfg.BaseDN, err)
	}

	var (
		entries []*ldap.Entry
		skipped int
	)

	for _, rec := range parsed.Entries {
		if rec.Entry == nil {
			skipped++
			continue
		}

		if !inScope(base, rec.Entry.DN) || !hasAttribute(rec.Entry, s.cfg.BadgeAttr) {
			continue
		}

		entries = append(entries, projectEntry(rec.Entry, s.cfg.Attributes()))
	}

	s.logger.Info("Read LDIF source",
		zap.String("path", s.path),
		zap.Int("records", len(parsed.Entries)),
		zap.Int("entries", len(entries)),
		zap.Int("change_records_skipped", skipped),
	)

	return entries, nil
}

// inScope reports whether dn is base or lies below it. Attribute values are
// compared case-insensitively, the way the server applies
// distinguishedNameMatch to ou and dc values.
func inScope(base *ldap.DN, dn string) bool {
	if len(base.RDNs) == 0 {
		return true
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return false
	}

	return base.EqualFold(parsed) || base.AncestorOfFold(parsed)
}

func hasAttribute(entry *ldap.Entry, name string) bool {
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, name) && len(attr.Values) > 0 {
			return true
		}
	}

	return false
}

// projectEntry keeps only the requested attributes, like the server does for
// a search with an attribute list.
func projectEntry(entry *ldap.Entry, attributes []string) *ldap.Entry {
	projected := &ldap.Entry{DN: entry.DN}

	for _, attr := range entry.Attributes {
		for _, want := range attributes {
			if strings.EqualFold(attr.Name, want) {
				projected.Attributes = append(projected.Attributes, attr)
				break
			}
		}
	}

	return projected
}

///////////////////////////////////////////////////////////////////////////////
// LDIF writing
///////////////////////////////////////////////////////////////////////////////

// MarshalLDIF renders entries as LDIF content records.
func MarshalLDIF(entries []*ldap.Entry) (string, error) {
	ldifData, err := ldif.ToLDIF(entries)
	if err != nil {
		return "", fmt.Errorf("failed to build LDIF struct: %w", err)
	}

	ldifText, err := ldif.Marshal(ldifData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal LDIF: %w", err)
	}

	return ldifText, nil
}

// WriteLDIFFile writes entries to path as LDIF, replacing an existing file.
func WriteLDIFFile(path string, entries []*ldap.Entry) error {
	ldifText, err := MarshalLDIF(entries)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(ldifText), 0o644); err != nil {
		return fmt.Errorf("failed to write LDIF file: %w", err)
	}

	return nil
}
