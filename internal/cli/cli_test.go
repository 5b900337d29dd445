package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylercrumpton/open-sespame/internal/directory"
	"github.com/tylercrumpton/open-sespame/internal/upload"
)

func testOptions() (*Options, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer

	return &Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Exit:   func(int) {},
	}, &stdout, &stderr
}

func parse(t *testing.T, args ...string) *CLIConfig {
	t.Helper()

	opts, _, _ := testOptions()
	cfg := NewCLIConfig()

	parser, err := NewParser(cfg, opts)
	require.NoError(t, err)

	_, err = parser.Parse(args)
	require.NoError(t, err)

	return cfg
}

func TestSyncDefaults(t *testing.T) {
	cfg := parse(t)

	runCfg := cfg.Sync.RunConfig(nil)

	assert.Equal(t, directory.DefaultURL, runCfg.Directory.URL)
	assert.Equal(t, directory.DefaultBaseDN, runCfg.Directory.BaseDN)
	assert.Equal(t, "uid", runCfg.Directory.UIDAttr)
	assert.Equal(t, "nfcID", runCfg.Directory.BadgeAttr)
	assert.Equal(t, upload.DefaultURL, runCfg.Upload.URL)
	assert.Equal(t, 30*time.Second, runCfg.Directory.Timeout)
	assert.Equal(t, 30*time.Second, runCfg.Upload.Timeout)
	assert.False(t, runCfg.DryRun)
}

func TestSyncFlagsAndEnv(t *testing.T) {
	t.Setenv("BADGESYNC_UPLOAD_URL", "http://door.example.org/upload")

	cfg := parse(t, "sync",
		"--ldap-url", "ldaps://ldap.example.org",
		"--base-dn", "ou=members,dc=example,dc=org",
		"--badge-attr", "badgeID",
		"--timeout", "5s",
		"--dry-run",
	)

	runCfg := cfg.Sync.RunConfig(nil)

	assert.Equal(t, "ldaps://ldap.example.org", runCfg.Directory.URL)
	assert.Equal(t, "ou=members,dc=example,dc=org", runCfg.Directory.BaseDN)
	assert.Equal(t, "badgeID", runCfg.Directory.BadgeAttr)
	assert.Equal(t, "http://door.example.org/upload", runCfg.Upload.URL)
	assert.Equal(t, 5*time.Second, runCfg.Upload.Timeout)
	assert.True(t, runCfg.DryRun)
}

func TestSeedFlags(t *testing.T) {
	input := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"uid": "jdoe", "badges": ["AB12"]}`), 0o600))

	cfg := parse(t, "seed", "--count", "3", "--seed", "9", "--input-file", input)

	genCfg, err := cfg.Seed.RunConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, genCfg.Count)
	assert.Equal(t, int64(9), genCfg.Seed)
	assert.Equal(t, directory.DefaultBaseDN, genCfg.SuffixDN)
	require.NotNil(t, genCfg.Template)
	assert.Equal(t, "jdoe", genCfg.Template.UID)
	assert.Equal(t, []string{"AB12"}, genCfg.Template.Badges)
}

func TestRunDryRunFromLDIF(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "people.ldif")

	require.NoError(t, directory.WriteLDIFFile(source, []*ldap.Entry{
		ldap.NewEntry("uid=alice,ou=people,dc=makerslocal,dc=org", map[string][]string{"uid": {"alice"}, "nfcID": {"AB12"}}),
		ldap.NewEntry("uid=bob,ou=people,dc=makerslocal,dc=org", map[string][]string{"uid": {"bob"}}),
		ldap.NewEntry("uid=carol,ou=people,dc=makerslocal,dc=org", map[string][]string{"uid": {"carol"}, "nfcID": {"CD34", "EF56"}}),
	}))

	opts, stdout, stderr := testOptions()

	err := Run(context.Background(), []string{"--log-format", "json", "sync", "--ldif-file", source, "--dry-run"}, opts)
	require.NoError(t, err)

	assert.Equal(t, "alice,AB12\ncarol,CD34,EF56\n", stdout.String())
	assert.Contains(t, stderr.String(), "Dry run, upload skipped")
}

func TestRunSeedThenSync(t *testing.T) {
	seeded := filepath.Join(t.TempDir(), "seed.ldif")

	opts, stdout, _ := testOptions()

	require.NoError(t, Run(context.Background(), []string{"seed", "--count", "5", "--seed", "3", "--ldif-file", seeded}, opts))
	require.NoError(t, Run(context.Background(), []string{"sync", "--ldif-file", seeded, "--dry-run"}, opts))

	for _, line := range bytes.Split(bytes.TrimSuffix(stdout.Bytes(), []byte("\n")), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		assert.Regexp(t, `^[^,]+(,[A-Z]{2}[0-9]{2})+$`, string(line))
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	opts, _, _ := testOptions()

	err := Run(context.Background(), []string{"sync", "--no-such-flag"}, opts)
	assert.Error(t, err)
}
