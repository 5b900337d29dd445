// Package syncer runs one badge synchronization: search the directory,
// format the badge holders, upload the result to the door controller.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/tylercrumpton/open-sespame/internal/directory"
	"github.com/tylercrumpton/open-sespame/internal/payload"
	"github.com/tylercrumpton/open-sespame/internal/upload"
)

// ErrOutput is returned when a local artifact of the run, the LDIF snapshot
// or the dry run payload, cannot be written.
var ErrOutput = errors.New("writing local output failed")

///////////////////////////////////////////////////////////////////////////////
// Configuration
///////////////////////////////////////////////////////////////////////////////

// RunConfig holds everything a sync run needs. It is independent of the CLI
// library so tests and other callers can build it directly.
type RunConfig struct {
	Directory *directory.Config
	Upload    *upload.Config

	LDIFFile string    // LDIFFile replaces the live directory with an LDIF export when set
	DumpLDIF string    // DumpLDIF writes the fetched entries to this path when set
	DryRun   bool      // DryRun prints the payload to Out instead of uploading it
	Out      io.Writer // Out receives the dry run payload; defaults to os.Stdout
}

// NewRunConfig is an initializer function for RunConfig.
func NewRunConfig() *RunConfig {
	return &RunConfig{
		Directory: directory.NewConfig(),
		Upload:    upload.NewConfig(),
		Out:       os.Stdout,
	}
}

// Validate checks the configuration before any I/O happens.
func (c *RunConfig) Validate() error {
	if c.LDIFFile == "" {
		if err := c.Directory.Validate(); err != nil {
			return err
		}
	} else if err := c.Directory.ValidateSearch(); err != nil {
		return err
	}

	if !c.DryRun {
		if err := c.Upload.Validate(); err != nil {
			return err
		}
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////
// Pipeline
///////////////////////////////////////////////////////////////////////////////

// Source yields the directory entries of one search.
type Source interface {
	Entries(ctx context.Context) ([]*ldap.Entry, error)
}

// Sink delivers a payload.
type Sink interface {
	Upload(ctx context.Context, p payload.Payload) (*upload.Result, error)
}

// Report summarizes a run.
type Report struct {
	Scanned  int
	Lines    int
	Bytes    int
	Uploaded bool
	Result   *upload.Result
}

// Syncer wires a Source to a Sink.
type Syncer struct {
	cfg    *RunConfig
	source Source
	sink   Sink
	logger *zap.Logger
}

// New is an initializer function for Syncer.
func New(cfg *RunConfig, source Source, sink Sink, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Syncer{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger,
	}
}

// Run executes one synchronization. It:
//
//  1. Asks the Source for the entries of the badge search.
//  2. Optionally writes those entries to an LDIF snapshot.
//  3. Converts the entries into Records and folds them into a Payload.
//  4. Either prints the Payload (dry run) or hands it to the Sink.
//
// The upload happens only when step 1 succeeded. A failed search never
// uploads a partial payload, because an incomplete list would revoke access
// for every badge holder missing from it.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	// Step 1: search. Any error here ends the run before the device is touched.
	entries, err := s.search(ctx)
	if err != nil {
		s.logger.Error("Directory search failed, skipping upload", zap.Error(err))

		return nil, err
	}

	// Step 2: snapshot of exactly what the search returned.
	if s.cfg.DumpLDIF != "" {
		if err := directory.WriteLDIFFile(s.cfg.DumpLDIF, entries); err != nil {
			return nil, fmt.Errorf("%w: failed to write snapshot: %w", ErrOutput, err)
		}

		s.logger.Info("Wrote directory snapshot", zap.String("path", s.cfg.DumpLDIF))
	}

	// Step 3: entries -> records -> payload. Values that would corrupt the
	// line format are reported but still written as they are.
	records := directory.Records(entries, s.cfg.Directory.UIDAttr, s.cfg.Directory.BadgeAttr)
	for _, rec := range records {
		if payload.Unsafe(rec) {
			s.logger.Warn("Record contains a separator and will corrupt its line",
				zap.String("dn", rec.DN),
				zap.String("uid", rec.UID),
			)
		}
	}

	p := payload.Build(records)
	report := &Report{Scanned: p.Scanned, Lines: p.Lines, Bytes: p.Len()}

	s.logger.Info("Formatted payload",
		zap.Int("scanned", p.Scanned),
		zap.Int("lines", p.Lines),
		zap.Int("bytes", p.Len()),
	)
	s.logger.Debug("Payload", zap.String("body", p.String()))

	if p.Lines == 0 {
		s.logger.Warn("No badge holders found, the device list will be emptied")
	}

	// Step 4: deliver. A dry run stops short of the network.
	if s.cfg.DryRun {
		out := s.cfg.Out
		if out == nil {
			out = os.Stdout
		}

		if _, err := out.Write(p.Body); err != nil {
			return report, fmt.Errorf("%w: failed to write payload: %w", ErrOutput, err)
		}

		s.logger.Info("Dry run, upload skipped")

		return report, nil
	}

	result, err := s.sink.Upload(ctx, p)
	report.Uploaded = true
	report.Result = result

	return report, err
}

func (s *Syncer) search(ctx context.Context) ([]*ldap.Entry, error) {
	if timeout := s.cfg.Directory.Timeout; timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return s.source.Entries(ctx)
}

// Run is the entry point used by the CLI. It:
//
//  1. Validates cfg so configuration mistakes are reported before any I/O.
//  2. Picks the Source: an LDIFSource when cfg.LDIFFile is set, the live
//     directory Reader otherwise.
//  3. Builds the HTTP Uploader as the Sink.
//  4. Runs one Syncer over them.
//
// Callers pass the returned error to ExitCode to get the process status.
func Run(ctx context.Context, cfg *RunConfig, logger *zap.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var source Source
	if cfg.LDIFFile != "" {
		source = directory.NewLDIFSource(cfg.LDIFFile, cfg.Directory, logger)
	} else {
		source = directory.NewReader(cfg.Directory, directory.DialLDAP, logger)
	}

	sink := upload.NewUploader(cfg.Upload, nil, logger)

	return New(cfg, source, sink, logger).Run(ctx)
}

///////////////////////////////////////////////////////////////////////////////
// Exit codes
///////////////////////////////////////////////////////////////////////////////

// Process exit codes, one per failure class.
const (
	ExitOK = iota
	ExitUsage
	ExitConnect
	ExitSearch
	ExitSearchStatus
	ExitUploadTransport
	ExitUploadRejected
	ExitOutput
)

// ExitCode maps an error returned by Run to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, directory.ErrConnect):
		return ExitConnect
	case errors.Is(err, directory.ErrSearchStatus):
		return ExitSearchStatus
	case errors.Is(err, directory.ErrSearch), errors.Is(err, directory.ErrSource):
		return ExitSearch
	case errors.Is(err, upload.ErrUploadRejected):
		return ExitUploadRejected
	case errors.Is(err, upload.ErrUploadTransport):
		return ExitUploadTransport
	case errors.Is(err, ErrOutput):
		return ExitOutput
	default:
		return ExitUsage
	}
}
