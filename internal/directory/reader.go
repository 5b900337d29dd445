package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

///////////////////////////////////////////////////////////////////////////////
// Connection
///////////////////////////////////////////////////////////////////////////////

// Conn is the part of *ldap.Conn the reader needs.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Unbind() error
	Close() error
}

// Dialer opens a connection to the directory described by cfg.
type Dialer func(ctx context.Context, cfg *Config) (Conn, error)

// DialLDAP is the Dialer used outside of tests. The context deadline, if any,
// bounds the TCP dial; cfg.Timeout bounds every request on the connection.
func DialLDAP(ctx context.Context, cfg *Config) (Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // operator opted in with --insecure-skip-verify
		}))
	}

	conn, err := ldap.DialURL(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		conn.SetTimeout(cfg.Timeout)
	}

	return conn, nil
}

///////////////////////////////////////////////////////////////////////////////
// Reader
///////////////////////////////////////////////////////////////////////////////

// Reader issues the one subtree search of a sync run.
type Reader struct {
	cfg    *Config
	dial   Dialer
	logger *zap.Logger
}

// NewReader is an initializer function for Reader. A nil dialer selects
// DialLDAP.
func NewReader(cfg *Config, dial Dialer, logger *zap.Logger) *Reader {
	if dial == nil {
		dial = DialLDAP
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reader{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
	}
}

// Entries is the whole life of one directory connection. It:
//
//  1. Dials the server from cfg.URL (ldap:// or ldaps://).
//  2. Binds with cfg.BindDN when one is configured; otherwise the search runs
//     anonymously.
//  3. Issues the single subtree search built by Config.SearchRequest.
//  4. Releases the connection, whatever happened before.
//
// Any failure aborts the whole search: partial results are never returned,
// so the caller cannot accidentally upload an incomplete badge list.
func (r *Reader) Entries(ctx context.Context) ([]*ldap.Entry, error) {
	// A run that was cancelled before it started never touches the network.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	log := r.logger.With(zap.String("url", r.cfg.URL), zap.String("base_dn", r.cfg.BaseDN))

	conn, err := r.dial(ctx, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnect, r.cfg.URL, err)
	}
	// From here on the connection is released on every return path.
	defer r.release(conn)

	if r.cfg.BindDN != "" {
		if err := conn.Bind(r.cfg.BindDN, r.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("%w: failed to bind as %s: %w", ErrConnect, r.cfg.BindDN, err)
		}

		log.Debug("Bound to directory", zap.String("bind_dn", r.cfg.BindDN))
	}

	req := r.cfg.SearchRequest()

	log.Debug("Searching directory",
		zap.String("filter", req.Filter),
		zap.Strings("attributes", req.Attributes),
	)

	started := time.Now()

	// search already classifies failures into ErrSearch or ErrSearchStatus,
	// so the error is passed through untouched.
	result, err := r.search(ctx, conn, req)
	if err != nil {
		return nil, err
	}

	log.Info("Directory search finished",
		zap.Int("entries", len(result.Entries)),
		zap.Duration("took", time.Since(started)),
	)

	return result.Entries, nil
}

// search runs the request and gives up when ctx ends first. The abandoned
// search is torn down by release closing the connection.
func (r *Reader) search(ctx context.Context, conn Conn, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	type outcome struct {
		result *ldap.SearchResult
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := conn.Search(req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSearch, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, classifySearchError(out.err)
		}

		if out.result == nil {
			return nil, fmt.Errorf("%w: empty search result", ErrSearch)
		}

		return out.result, nil
	}
}

func (r *Reader) release(conn Conn) {
	if err := conn.Unbind(); err != nil {
		r.logger.Debug("Unbind failed, closing connection", zap.Error(err))

		if err := conn.Close(); err != nil {
			r.logger.Debug("Close failed", zap.Error(err))
		}
	}
}
