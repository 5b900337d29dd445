package directory

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Defaults matching the door controller deployment at the makerspace.
const (
	DefaultURL       = "ldap://newldap.256.makerslocal.org"
	DefaultBaseDN    = "ou=people,dc=makerslocal,dc=org"
	DefaultUIDAttr   = "uid"
	DefaultBadgeAttr = "nfcID"
)

// Config describes where the directory lives and which attributes carry the
// user identifier and the badge identifiers.
type Config struct {
	URL       string // URL is the LDAP URL, e.g. "ldap://ldap.example.org" or "ldaps://ldap.example.org:636"
	BaseDN    string // BaseDN is the root of the subtree search
	UIDAttr   string // UIDAttr names the user identifier attribute
	BadgeAttr string // BadgeAttr names the (possibly multi-valued) badge attribute

	BindDN       string // BindDN is optional; an empty value keeps the connection anonymous
	BindPassword string // BindPassword is used together with BindDN

	InsecureSkipVerify bool          // InsecureSkipVerify disables certificate checks for ldaps:// and StartTLS
	Timeout            time.Duration // Timeout bounds dialing and every request; zero means no limit
}

// NewConfig returns a Config populated with the deployment defaults.
func NewConfig() *Config {
	return &Config{
		URL:       DefaultURL,
		BaseDN:    DefaultBaseDN,
		UIDAttr:   DefaultUIDAttr,
		BadgeAttr: DefaultBadgeAttr,
	}
}

// Filter returns the presence filter selecting every entry with a badge.
func (c *Config) Filter() string {
	return fmt.Sprintf("(%s=*)", c.BadgeAttr)
}

// Attributes returns the attribute projection of the search.
func (c *Config) Attributes() []string {
	return []string{c.UIDAttr, c.BadgeAttr}
}

// SearchRequest builds the single subtree search issued against the server.
func (c *Config) SearchRequest() *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		c.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // no size limit
		0, // no server side time limit
		false,
		c.Filter(),
		c.Attributes(),
		nil,
	)
}

// Validate checks the configuration without touching the network.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("directory URL must not be empty")
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid directory URL %q: %w", c.URL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ldap", "ldaps", "ldapi":
	default:
		return fmt.Errorf("unsupported directory URL scheme %q", u.Scheme)
	}

	if err := c.ValidateSearch(); err != nil {
		return err
	}

	if c.BindDN != "" {
		if _, err := ldap.ParseDN(c.BindDN); err != nil {
			return fmt.Errorf("invalid bind DN %q: %w", c.BindDN, err)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}

// ValidateSearch checks the parts of the configuration shared by the live
// reader and the LDIF source.
func (c *Config) ValidateSearch() error {
	if c.UIDAttr == "" {
		return fmt.Errorf("uid attribute must not be empty")
	}

	if c.BadgeAttr == "" {
		return fmt.Errorf("badge attribute must not be empty")
	}

	if _, err := ldap.ParseDN(c.BaseDN); err != nil {
		return fmt.Errorf("invalid base DN %q: %w", c.BaseDN, err)
	}

	if _, err := ldap.CompileFilter(c.Filter()); err != nil {
		return fmt.Errorf("invalid badge attribute %q: %w", c.BadgeAttr, err)
	}

	return nil
}
