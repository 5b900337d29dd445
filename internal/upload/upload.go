package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/tylercrumpton/open-sespame/internal/payload"
)

// DefaultURL is the upload endpoint of the door controller.
const DefaultURL = "http://10.56.1.156/upload"

// maxResponseBody caps how much of the device's answer is read and logged.
const maxResponseBody = 64 << 10

var (
	// ErrUploadTransport is returned when the request could not be sent or
	// its response could not be read.
	ErrUploadTransport = errors.New("upload transport failed")

	// ErrUploadRejected is returned when the device answers with a non-2xx
	// status.
	ErrUploadRejected = errors.New("upload rejected")
)

// RejectedError carries the status and body of a non-2xx answer. It matches
// ErrUploadRejected with errors.Is.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrUploadRejected
}

///////////////////////////////////////////////////////////////////////////////
// Configuration
///////////////////////////////////////////////////////////////////////////////

// Config holds the destination of the upload.
type Config struct {
	URL     string
	Timeout time.Duration // Timeout bounds the whole request; zero means no limit
}

// NewConfig is an initializer function for Config.
func NewConfig() *Config {
	return &Config{URL: DefaultURL}
}

// Validate checks that URL is an absolute http(s) URL.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid upload URL %q: %w", c.URL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upload URL %q must be an absolute http or https URL", c.URL)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}

///////////////////////////////////////////////////////////////////////////////
// Uploader
///////////////////////////////////////////////////////////////////////////////

// Result is what the device answered.
type Result struct {
	StatusCode int
	Body       string
}

// Uploader posts one payload per call. The device only understands a plain
// body with an explicit Content-Length, so no compression, no chunking and no
// User-Agent header are sent.
type Uploader struct {
	cfg    *Config
	client *http.Client
	logger *zap.Logger
}

// NewUploader is an initializer function for Uploader. A nil client selects a
// dedicated client that never reuses its connection.
func NewUploader(cfg *Config, client *http.Client, logger *zap.Logger) *Uploader {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:              http.ProxyFromEnvironment,
				DisableCompression: true,
				DisableKeepAlives:  true,
			},
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Uploader{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Upload performs exactly one POST of p. The response status and body are
// logged whatever the outcome.
func (u *Uploader) Upload(ctx context.Context, p payload.Payload) (*Result, error) {
	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	// bytes.Reader lets net/http set ContentLength to the byte length.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.URL, bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %w", ErrUploadTransport, err)
	}

	req.ContentLength = int64(p.Len())
	req.Header.Set("User-Agent", "")

	log := u.logger.With(zap.String("url", u.cfg.URL), zap.Int64("content_length", req.ContentLength))
	log.Debug("Uploading payload", zap.Int("lines", p.Lines))

	resp, err := u.client.Do(req)
	if err != nil {
		log.Error("Upload failed", zap.Error(err))

		return nil, fmt.Errorf("%w: %w", ErrUploadTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.Error("Failed to read upload response", zap.Int("status", resp.StatusCode), zap.Error(err))

		return nil, fmt.Errorf("%w: failed to read response: %w", ErrUploadTransport, err)
	}

	result := &Result{StatusCode: resp.StatusCode, Body: string(body)}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("Upload rejected", zap.Int("status", result.StatusCode), zap.String("body", result.Body))

		return result, &RejectedError{StatusCode: result.StatusCode, Body: result.Body}
	}

	log.Info("Upload accepted", zap.Int("status", result.StatusCode), zap.String("body", result.Body))

	return result, nil
}
