package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6" // gofakeit generates realistic-looking fake data
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/tylercrumpton/open-sespame/internal/directory"
)

///////////////////////////////////////////////////////////////////////////////
// Configuration types
///////////////////////////////////////////////////////////////////////////////

// Output modes.
const (
	ModeLDIF = "ldif"
	ModeLDAP = "ldap"
)

// RunConfig holds all the options needed to generate fake badge holders and
// decide whether to write them to an LDIF file or add them to a directory.
// It is independent of the CLI library so it can be reused in tests.
type RunConfig struct {
	SuffixDN  string // SuffixDN is everything after "uid=<id>,", for example "ou=people,dc=makerslocal,dc=org"
	Count     int    // Count is how many fake entries to generate
	BadgeAttr string // BadgeAttr names the attribute holding badge identifiers
	MaxBadges int    // MaxBadges is the upper bound of badges per user; some users get none
	Seed      int64  // Seed makes the generated data reproducible

	Mode     string // Mode selects behavior: "ldif" or "ldap"
	LDIFFile string // LDIFFile is the path to write LDIF to when Mode == "ldif"

	Directory *directory.Config // Directory is where entries are added when Mode == "ldap"

	Template *AttributeTemplate // Template holds optional attribute values loaded from a file
}

// NewRunConfig is an initializer function for RunConfig.
func NewRunConfig() *RunConfig {
	dirCfg := directory.NewConfig()

	return &RunConfig{
		SuffixDN:  dirCfg.BaseDN,
		Count:     10,
		BadgeAttr: dirCfg.BadgeAttr,
		MaxBadges: 2,
		Mode:      ModeLDIF,
		LDIFFile:  "badge_holders.ldif",
		Directory: dirCfg,
	}
}

// Validate catches configuration errors early.
func (c *RunConfig) Validate() error {
	if c.SuffixDN == "" {
		return fmt.Errorf("SuffixDN must not be empty")
	}
	if _, err := ldap.ParseDN(c.SuffixDN); err != nil {
		return fmt.Errorf("invalid SuffixDN %q: %w", c.SuffixDN, err)
	}
	if c.Count < 1 {
		return fmt.Errorf("Count must be at least 1")
	}
	if c.MaxBadges < 0 {
		return fmt.Errorf("MaxBadges must not be negative")
	}
	if c.BadgeAttr == "" {
		return fmt.Errorf("BadgeAttr must not be empty")
	}

	switch c.Mode {
	case ModeLDIF:
		if c.LDIFFile == "" {
			return fmt.Errorf("mode 'ldif' requires an LDIF file")
		}
	case ModeLDAP:
		if c.Directory == nil {
			return fmt.Errorf("mode 'ldap' requires a directory configuration")
		}
		if c.Directory.BindDN == "" || c.Directory.BindPassword == "" {
			return fmt.Errorf("mode 'ldap' requires a bind DN and a bind password")
		}
		return c.Directory.Validate()
	default:
		return fmt.Errorf("Mode must be either 'ldif' or 'ldap'")
	}

	return nil
}

// AttributeTemplate holds optional attribute values read from a JSON file.
// Each non-empty field overrides the generated value.
type AttributeTemplate struct {
	UID    string   `json:"uid"`
	CN     string   `json:"cn"`
	SN     string   `json:"sn"`
	Mail   string   `json:"mail"`
	Badges []string `json:"badges"`
}

// NewAttributeTemplate is an initializer function for AttributeTemplate.
func NewAttributeTemplate() *AttributeTemplate {
	return &AttributeTemplate{}
}

///////////////////////////////////////////////////////////////////////////////
// Fake entry representation
///////////////////////////////////////////////////////////////////////////////

// FakeEntry is a single fake directory user with zero or more badges.
type FakeEntry struct {
	DN       string
	UID      string
	CN       string
	SN       string
	Mail     string
	BadgeIDs []string
}

// NewFakeEntry is an initializer function for FakeEntry.
func NewFakeEntry(dn, uid, cn, sn, mail string, badgeIDs []string) *FakeEntry {
	return &FakeEntry{
		DN:       dn,
		UID:      uid,
		CN:       cn,
		SN:       sn,
		Mail:     mail,
		BadgeIDs: badgeIDs,
	}
}

// NewBadgeID returns a short badge token such as "AB12".
func NewBadgeID(faker *gofakeit.Faker) string {
	return strings.ToUpper(faker.Lexify("??")) + faker.Numerify("##")
}

// NewFakeEntryWithTemplate creates a FakeEntry from faker, then applies the
// overrides of tmpl, which may be nil.
func NewFakeEntryWithTemplate(faker *gofakeit.Faker, suffixDN string, maxBadges int, tmpl *AttributeTemplate) *FakeEntry {
	first := faker.FirstName()
	last := faker.LastName()
	email := faker.Email()
	uid := faker.Username()

	var badges []string
	for i, n := 0, faker.Number(0, maxBadges); i < n; i++ {
		badges = append(badges, NewBadgeID(faker))
	}

	cn := first + " " + last

	if tmpl != nil {
		if tmpl.UID != "" {
			uid = tmpl.UID
		}
		if tmpl.CN != "" {
			cn = tmpl.CN
		}
		if tmpl.SN != "" {
			last = tmpl.SN
		}
		if tmpl.Mail != "" {
			email = tmpl.Mail
		}
		if len(tmpl.Badges) > 0 {
			badges = append([]string(nil), tmpl.Badges...)
		}
	}

	dn := fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(uid), suffixDN)

	return NewFakeEntry(dn, uid, cn, last, email, badges)
}

///////////////////////////////////////////////////////////////////////////////
// Conversion helpers
///////////////////////////////////////////////////////////////////////////////

// ToLDAPEntry converts a FakeEntry into an *ldap.Entry. Users with badges
// get extensibleObject so the badge attribute is allowed by the schema.
func (f *FakeEntry) ToLDAPEntry(badgeAttr string) *ldap.Entry {
	attrs := map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {f.UID},
		"cn":          {f.CN},
		"sn":          {f.SN},
		"mail":        {f.Mail},
	}

	if len(f.BadgeIDs) > 0 {
		attrs["objectClass"] = append(attrs["objectClass"], "extensibleObject")
		attrs[badgeAttr] = f.BadgeIDs
	}

	return ldap.NewEntry(f.DN, attrs)
}

///////////////////////////////////////////////////////////////////////////////
// LDAP writing
///////////////////////////////////////////////////////////////////////////////

// Adder is the part of *ldap.Conn needed to add entries.
type Adder interface {
	Bind(username, password string) error
	Add(addRequest *ldap.AddRequest) error
	Close() error
}

// AdderDialer opens a connection used to add entries.
type AdderDialer func(ctx context.Context, cfg *directory.Config) (Adder, error)

// DialAdder is the AdderDialer used outside of tests.
func DialAdder(ctx context.Context, cfg *directory.Config) (Adder, error) {
	conn, err := directory.DialLDAP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	adder, ok := conn.(Adder)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("connection of type %T cannot add entries", conn)
	}

	return adder, nil
}

// writeToLDAP binds with the configured credentials and sends one Add
// request per entry, stopping at the first failure.
func writeToLDAP(ctx context.Context, cfg *RunConfig, dial AdderDialer, entries []*ldap.Entry) error {
	conn, err := dial(ctx, cfg.Directory)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to LDAP server: %w", directory.ErrConnect, err)
	}
	defer conn.Close()

	if err := conn.Bind(cfg.Directory.BindDN, cfg.Directory.BindPassword); err != nil {
		return fmt.Errorf("%w: failed to bind to LDAP server: %w", directory.ErrConnect, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := ldap.NewAddRequest(e.DN, nil)
		for _, attr := range e.Attributes {
			req.Attribute(attr.Name, attr.Values)
		}

		if err := conn.Add(req); err != nil {
			return fmt.Errorf("failed to add entry %s: %w", e.DN, err)
		}
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////
// Top-level runner
///////////////////////////////////////////////////////////////////////////////

// Generator produces fake badge holders.
type Generator struct {
	cfg    *RunConfig
	dial   AdderDialer
	logger *zap.Logger
}

// New is an initializer function for Generator. A nil dialer selects
// DialAdder.
func New(cfg *RunConfig, dial AdderDialer, logger *zap.Logger) *Generator {
	if dial == nil {
		dial = DialAdder
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{cfg: cfg, dial: dial, logger: logger}
}

// Entries generates cfg.Count entries. The same Seed always yields the same
// entries.
func (g *Generator) Entries() []*FakeEntry {
	faker := gofakeit.New(g.cfg.Seed)

	entries := make([]*FakeEntry, 0, g.cfg.Count)
	for i := 0; i < g.cfg.Count; i++ {
		entries = append(entries, NewFakeEntryWithTemplate(faker, g.cfg.SuffixDN, g.cfg.MaxBadges, g.cfg.Template))
	}

	return entries
}

// Run is the main entry point of the seed command. It:
//
//  1. Validates the provided configuration.
//  2. Generates cfg.Count FakeEntry values from cfg.Seed, using cfg.Template
//     if present.
//  3. Converts them into *ldap.Entry values, adding the badge attribute only
//     for users that received badges.
//  4. Either writes an LDIF file or adds the entries to the directory, based
//     on cfg.Mode.
//
// The LDIF output can be fed straight back into "sync --ldif-file", which
// makes it easy to try the whole pipeline without a directory server.
func (g *Generator) Run(ctx context.Context) error {
	if err := g.cfg.Validate(); err != nil {
		return err
	}

	// Generate first, then count the badge holders so the log line tells the
	// operator how many lines a sync of this data will produce.
	fakes := g.Entries()

	var (
		ldapEntries []*ldap.Entry
		holders     int
	)

	for _, fake := range fakes {
		if len(fake.BadgeIDs) > 0 {
			holders++
		}

		ldapEntries = append(ldapEntries, fake.ToLDAPEntry(g.cfg.BadgeAttr))
	}

	log := g.logger.With(
		zap.String("mode", g.cfg.Mode),
		zap.Int("entries", len(ldapEntries)),
		zap.Int("badge_holders", holders),
	)

	// Decide what to do with the generated entries based on the Mode.
	switch g.cfg.Mode {
	case ModeLDIF:
		if err := directory.WriteLDIFFile(g.cfg.LDIFFile, ldapEntries); err != nil {
			return err
		}

		log.Info("Wrote fake badge holders", zap.String("path", g.cfg.LDIFFile))
	case ModeLDAP:
		if err := writeToLDAP(ctx, g.cfg, g.dial, ldapEntries); err != nil {
			return err
		}

		log.Info("Added fake badge holders", zap.String("url", g.cfg.Directory.URL))
	default:
		// Validate rejects other modes, so this is only reached if a new
		// mode is added there but not here.
		return fmt.Errorf("unsupported mode: %s", g.cfg.Mode)
	}

	return nil
}
