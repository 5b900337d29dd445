package directory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrConnect is returned when the directory cannot be dialed or bound.
	ErrConnect = errors.New("directory connection failed")

	// ErrSearch is returned when the search fails for a reason other than a
	// server reported result code, e.g. a dropped connection.
	ErrSearch = errors.New("directory search failed")

	// ErrSearchStatus is returned when the server completes the search with a
	// non-zero result code.
	ErrSearchStatus = errors.New("directory search completed with non-zero status")

	// ErrSource is returned when an offline LDIF source cannot be read.
	ErrSource = errors.New("directory source unreadable")
)

// StatusError carries the result code of a search the server completed
// unsuccessfully. It matches ErrSearchStatus with errors.Is.
type StatusError struct {
	Code uint16
	Err  error
}

// NewStatusError is an initializer function for StatusError.
func NewStatusError(code uint16, err error) *StatusError {
	return &StatusError{Code: code, Err: err}
}

func (e *StatusError) Error() string {
	name, ok := ldap.LDAPResultCodeMap[e.Code]
	if !ok {
		name = "Unknown"
	}

	return fmt.Sprintf("ldap failed status: %d (%s)", e.Code, name)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrSearchStatus
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifySearchError maps an error returned by a search to ErrSearchStatus
// when the server answered with a result code, and to ErrSearch otherwise.
// go-ldap reserves codes from 200 upwards for client side failures.
func classifySearchError(err error) error {
	var ldapErr *ldap.Error

	if errors.As(err, &ldapErr) && ldapErr.ResultCode != ldap.LDAPResultSuccess && ldapErr.ResultCode < ldap.ErrorNetwork {
		return NewStatusError(ldapErr.ResultCode, err)
	}

	return fmt.Errorf("%w: %w", ErrSearch, err)
}
