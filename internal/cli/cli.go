package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/tylercrumpton/open-sespame/internal/directory"
	"github.com/tylercrumpton/open-sespame/internal/generator"
	"github.com/tylercrumpton/open-sespame/internal/logging"
	"github.com/tylercrumpton/open-sespame/internal/syncer"
	"github.com/tylercrumpton/open-sespame/internal/upload"
)

///////////////////////////////////////////////////////////////////////////////
// CLI configuration
///////////////////////////////////////////////////////////////////////////////

// DirectoryFlags are the connection options shared by both commands.
type DirectoryFlags struct {
	LDAPURL            string        `help:"LDAP URL of the directory." default:"${ldap_url}" name:"ldap-url" env:"BADGESYNC_LDAP_URL"`
	BindDN             string        `help:"Bind DN; empty binds anonymously." name:"bind-dn" env:"BADGESYNC_BIND_DN"`
	BindPassword       string        `help:"Bind password." name:"bind-password" env:"BADGESYNC_BIND_PASSWORD"`
	InsecureSkipVerify bool          `help:"Skip TLS certificate verification for ldaps:// URLs." name:"insecure-skip-verify" env:"BADGESYNC_INSECURE_SKIP_VERIFY"`
	Timeout            time.Duration `help:"Timeout for each network stage; 0 disables it." default:"30s" env:"BADGESYNC_TIMEOUT"`
	BadgeAttr          string        `help:"Attribute holding badge identifiers." default:"${badge_attr}" name:"badge-attr" env:"BADGESYNC_BADGE_ATTR"`
}

func (f *DirectoryFlags) directoryConfig() *directory.Config {
	cfg := directory.NewConfig()
	cfg.URL = f.LDAPURL
	cfg.BindDN = f.BindDN
	cfg.BindPassword = f.BindPassword
	cfg.InsecureSkipVerify = f.InsecureSkipVerify
	cfg.Timeout = f.Timeout
	cfg.BadgeAttr = f.BadgeAttr

	return cfg
}

// SyncCmd pushes the badge holders of the directory to the door controller.
type SyncCmd struct {
	DirectoryFlags `embed:""`

	BaseDN    string `help:"Base DN of the subtree search." default:"${base_dn}" name:"base-dn" env:"BADGESYNC_BASE_DN"`
	UIDAttr   string `help:"Attribute holding the user identifier." default:"${uid_attr}" name:"uid-attr" env:"BADGESYNC_UID_ATTR"`
	UploadURL string `help:"Upload endpoint of the door controller." default:"${upload_url}" name:"upload-url" env:"BADGESYNC_UPLOAD_URL"`

	LDIFFile string `help:"Read entries from this LDIF export instead of the directory." name:"ldif-file" type:"existingfile" env:"BADGESYNC_LDIF_FILE"`
	DumpLDIF string `help:"Write the fetched entries to this LDIF file." name:"dump-ldif" env:"BADGESYNC_DUMP_LDIF"`
	DryRun   bool   `help:"Print the payload instead of uploading it." name:"dry-run" env:"BADGESYNC_DRY_RUN"`
}

// RunConfig converts the flags into a syncer.RunConfig.
func (c *SyncCmd) RunConfig(out io.Writer) *syncer.RunConfig {
	cfg := syncer.NewRunConfig()

	cfg.Directory = c.directoryConfig()
	cfg.Directory.BaseDN = c.BaseDN
	cfg.Directory.UIDAttr = c.UIDAttr

	cfg.Upload = upload.NewConfig()
	cfg.Upload.URL = c.UploadURL
	cfg.Upload.Timeout = c.Timeout

	cfg.LDIFFile = c.LDIFFile
	cfg.DumpLDIF = c.DumpLDIF
	cfg.DryRun = c.DryRun
	cfg.Out = out

	return cfg
}

// Run is called by kong when the sync command is selected.
func (c *SyncCmd) Run(ctx context.Context, logger *zap.Logger, out io.Writer) error {
	report, err := syncer.Run(ctx, c.RunConfig(out), logger)
	if err != nil {
		return err
	}

	logger.Info("Sync finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("lines", report.Lines),
		zap.Bool("uploaded", report.Uploaded),
	)

	return nil
}

// SeedCmd generates fake badge holders for testing a sync end to end.
type SeedCmd struct {
	DirectoryFlags `embed:""`

	SuffixDN  string `help:"DN suffix that comes after uid=<fakeuid>." default:"${base_dn}" name:"suffix-dn"`
	Count     int    `help:"Number of fake entries to generate." default:"10"`
	MaxBadges int    `help:"Maximum number of badges per user; some users get none." default:"2" name:"max-badges"`
	Seed      int64  `help:"Seed for the fake data; 0 picks a random one." default:"0"`

	Mode      string `help:"Output mode: 'ldif' to write a file, 'ldap' to add entries to the directory." default:"ldif" enum:"ldif,ldap"`
	LDIFFile  string `help:"Path to LDIF file when mode is 'ldif'." default:"badge_holders.ldif" name:"ldif-file"`
	InputFile string `help:"Optional JSON file that provides attribute values (uid, cn, sn, mail, badges)." name:"input-file" type:"existingfile"`
}

// RunConfig converts the flags into a generator.RunConfig.
func (c *SeedCmd) RunConfig() (*generator.RunConfig, error) {
	cfg := generator.NewRunConfig()
	cfg.SuffixDN = c.SuffixDN
	cfg.Count = c.Count
	cfg.MaxBadges = c.MaxBadges
	cfg.Seed = c.Seed
	cfg.BadgeAttr = c.BadgeAttr
	cfg.Mode = c.Mode
	cfg.LDIFFile = c.LDIFFile
	cfg.Directory = c.directoryConfig()

	if c.InputFile != "" {
		tmpl, err := loadTemplateFromFile(c.InputFile)
		if err != nil {
			return nil, err
		}
		cfg.Template = tmpl
	}

	return cfg, nil
}

// Run is called by kong when the seed command is selected.
func (c *SeedCmd) Run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := c.RunConfig()
	if err != nil {
		return err
	}

	return generator.New(cfg, nil, logger).Run(ctx)
}

// CLIConfig is the command line of badgesync.
type CLIConfig struct {
	LogLevel  string `help:"Log level." default:"info" enum:"debug,info,warn,error" name:"log-level" env:"BADGESYNC_LOG_LEVEL"`
	LogFormat string `help:"Log format." default:"console" enum:"console,json" name:"log-format" env:"BADGESYNC_LOG_FORMAT"`

	Sync SyncCmd `cmd:"" default:"withargs" help:"Upload the badge holders of the directory to the door controller."`
	Seed SeedCmd `cmd:"" help:"Generate fake badge holders as LDIF or directly in the directory."`
}

// NewCLIConfig is an initializer function for CLIConfig.
func NewCLIConfig() *CLIConfig {
	return &CLIConfig{}
}

///////////////////////////////////////////////////////////////////////////////
// Template loading helper
///////////////////////////////////////////////////////////////////////////////

// loadTemplateFromFile reads a JSON file such as
//
//	{
//	  "uid": "jdoe",
//	  "badges": ["AB12", "CD34"]
//	}
//
// into a generator.AttributeTemplate.
func loadTemplateFromFile(path string) (*generator.AttributeTemplate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %q: %w", path, err)
	}
	defer f.Close()

	tmpl := generator.NewAttributeTemplate()

	decoder := json.NewDecoder(f)
	if err := decoder.Decode(tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse JSON in %q: %w", path, err)
	}

	return tmpl, nil
}

///////////////////////////////////////////////////////////////////////////////
// Top-level CLI runner
///////////////////////////////////////////////////////////////////////////////

// Options tune where Run reads from and writes to.
type Options struct {
	Stdout io.Writer // Stdout receives dry run payloads and help output
	Stderr io.Writer // Stderr receives log lines and usage errors
	Exit   func(int) // Exit is called by kong after --help
}

// NewOptions is an initializer function for Options.
func NewOptions() *Options {
	return &Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Exit:   os.Exit,
	}
}

// NewParser builds the kong parser for cfg.
func NewParser(cfg *CLIConfig, opts *Options) (*kong.Kong, error) {
	return kong.New(cfg,
		kong.Name("badgesync"),
		kong.Description("Synchronize badge identifiers from LDAP to the door controller."),
		kong.UsageOnError(),
		kong.Writers(opts.Stdout, opts.Stderr),
		kong.Exit(opts.Exit),
		kong.Vars{
			"ldap_url":   directory.DefaultURL,
			"base_dn":    directory.DefaultBaseDN,
			"uid_attr":   directory.DefaultUIDAttr,
			"badge_attr": directory.DefaultBadgeAttr,
			"upload_url": upload.DefaultURL,
		},
	)
}

// Run is the main entry point for the CLI layer. It:
//
//  1. Creates a CLIConfig and asks Kong to fill it from args, environment
//     variables and the ${...} defaults registered in NewParser.
//  2. Builds the zap logger from --log-level and --log-format.
//  3. Binds the context, the logger and stdout so Kong can pass them to the
//     Run method of the selected command (sync when none is named).
//
// This keeps all CLI-related logic in one place and lets the syncer and
// generator packages work purely with their own RunConfig types.
func Run(ctx context.Context, args []string, opts *Options) error {
	if opts == nil {
		opts = NewOptions()
	}

	cfg := NewCLIConfig()

	parser, err := NewParser(cfg, opts)
	if err != nil {
		return err
	}

	// Parse fills cfg. Unknown flags and invalid enum values come back as
	// errors, which main reports with the usage exit code.
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(opts.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Kong matches Run method parameters by type, so interfaces are bound
	// explicitly to their interface type.
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(opts.Stdout, (*io.Writer)(nil))

	return kctx.Run(logger)
}
