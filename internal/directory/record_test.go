package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordFromEntry(t *testing.T) {
	entry := &ldap.Entry{
		DN: "uid=carol,ou=people,dc=makerslocal,dc=org",
		Attributes: []*ldap.EntryAttribute{
			ldap.NewEntryAttribute("UID", []string{"carol", "carol2"}),
			ldap.NewEntryAttribute("nfcid", []string{"CD34"}),
			ldap.NewEntryAttribute("nfcID", []string{"EF56"}),
		},
	}

	rec := NewRecordFromEntry(entry, "uid", "nfcID")

	assert.Equal(t, entry.DN, rec.DN)
	assert.Equal(t, "carol", rec.UID)
	assert.Equal(t, []string{"CD34", "EF56"}, rec.BadgeIDs)
	assert.True(t, rec.HasBadge())
}

func TestRecordHasBadge(t *testing.T) {
	assert.False(t, NewRecord("", "bob", nil).HasBadge())
	assert.False(t, NewRecord("", "bob", []string{}).HasBadge())
	assert.False(t, NewRecord("", "bob", []string{""}).HasBadge())
	assert.True(t, NewRecord("", "bob", []string{"", "AB12"}).HasBadge())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "ldaps", mutate: func(c *Config) { c.URL = "ldaps://ldap.example.org:636" }},
		{name: "empty url", mutate: func(c *Config) { c.URL = "" }, wantErr: true},
		{name: "http url", mutate: func(c *Config) { c.URL = "http://ldap.example.org" }, wantErr: true},
		{name: "bad base dn", mutate: func(c *Config) { c.BaseDN = "ou=people,,dc" }, wantErr: true},
		{name: "empty badge attr", mutate: func(c *Config) { c.BadgeAttr = "" }, wantErr: true},
		{name: "badge attr breaks filter", mutate: func(c *Config) { c.BadgeAttr = "nfc)(ID" }, wantErr: true},
		{name: "bad bind dn", mutate: func(c *Config) { c.BindDN = "not a dn" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

const fixtureLDIF = `version: 1

dn: uid=alice,ou=people,dc=makerslocal,dc=org
objectClass: inetOrgPerson
uid: alice
cn: Alice
nfcID: AB12

dn: uid=bob,ou=people,dc=makerslocal,dc=org
objectClass: inetOrgPerson
uid: bob
cn: Bob

dn: uid=carol,ou=people,dc=makerslocal,dc=org
objectClass: inetOrgPerson
uid: carol
nfcID: CD34
nfcID: EF56

dn: uid=dave,ou=People,dc=MakersLocal,dc=org
objectClass: inetOrgPerson
uid: dave
nfcID: 7788

dn: uid=mallory,ou=guests,dc=makerslocal,dc=org
objectClass: inetOrgPerson
uid: mallory
nfcID: 9999
`

func TestLDIFSourceEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.ldif")
	require.NoError(t, os.WriteFile(path, []byte(fixtureLDIF), 0o600))

	entries, err := NewLDIFSource(path, NewConfig(), nil).Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	records := Records(entries, "uid", "nfcID")
	assert.Equal(t, "alice", records[0].UID)
	assert.Equal(t, []string{"AB12"}, records[0].BadgeIDs)
	assert.Equal(t, "carol", records[1].UID)
	assert.Equal(t, []string{"CD34", "EF56"}, records[1].BadgeIDs)
	// DN values differing only in case from the base DN are still in scope.
	assert.Equal(t, "dave", records[2].UID)
	assert.Equal(t, []string{"7788"}, records[2].BadgeIDs)

	for _, entry := range entries {
		assert.Empty(t, entry.GetAttributeValues("cn"), "attributes outside the projection are dropped")
	}
}

func TestLDIFSourceBaseDNCaseInsensitive(t *testing.T) {
	const people = `dn: uid=alice,ou=People,dc=MakersLocal,dc=org
uid: alice
nfcID: AB12

dn: uid=bob,ou=people,dc=makerslocal,dc=org
uid: bob
nfcID: CD34
`

	path := filepath.Join(t.TempDir(), "people.ldif")
	require.NoError(t, os.WriteFile(path, []byte(people), 0o600))

	cfg := NewConfig()
	cfg.BaseDN = "OU=PEOPLE,DC=makerslocal,DC=ORG"

	entries, err := NewLDIFSource(path, cfg, nil).Entries(context.Background())
	require.NoError(t, err)

	records := Records(entries, "uid", "nfcID")
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].UID)
	assert.Equal(t, "bob", records[1].UID)
}

func TestLDIFSourceMissingFile(t *testing.T) {
	_, err := NewLDIFSource(filepath.Join(t.TempDir(), "missing.ldif"), NewConfig(), nil).Entries(context.Background())
	assert.ErrorIs(t, err, ErrSource)
}

func TestWriteLDIFFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.ldif")

	entries := []*ldap.Entry{
		ldap.NewEntry("uid=alice,ou=people,dc=makerslocal,dc=org", map[string][]string{
			"uid":   {"alice"},
			"nfcID": {"AB12"},
		}),
	}

	require.NoError(t, WriteLDIFFile(path, entries))

	read, err := NewLDIFSource(path, NewConfig(), nil).Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, []string{"AB12"}, read[0].GetAttributeValues("nfcID"))
}
