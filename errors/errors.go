// Package errors is the single error vocabulary of quotesearch: the
// cockroachdb/errors constructors plus the sentinels that decide job
// outcomes and HTTP status codes.
//
//	if err := store.UpdateJob(ctx, job); err != nil {
//	    err = errors.Wrap(err, "failed to persist job")
//	    return errors.WithDetail(err, "Job ID: "+job.ID)
//	}
package errors

import (
	"strings"

	crdb "github.com/cockroachdb/errors"
)

var (
	New       = crdb.New
	Newf      = crdb.Newf
	Wrap      = crdb.Wrap
	Wrapf     = crdb.Wrapf
	WithStack = crdb.WithStack
	Mark      = crdb.Mark

	WithHint    = crdb.WithHint
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf

	Is            = crdb.Is
	As            = crdb.As
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

var (
	// ErrNotFound maps to HTTP 404
	ErrNotFound = New("not found")
	// ErrInvalidRequest maps to HTTP 400
	ErrInvalidRequest = New("invalid request")

	// ErrNoSites means neither extra URLs nor suppliers resolved to a site
	ErrNoSites = New("no resolvable sites")
	// ErrMissingCredentials means an external API key is not configured
	ErrMissingCredentials = New("missing credentials")

	// ErrInvalidMessage marks a worker line that looked like an envelope but failed to decode
	ErrInvalidMessage = New("invalid worker message")
	// ErrWorkerExited means the worker process ended without a terminal message
	ErrWorkerExited = New("worker exited abnormally")
	// ErrCancelled is the error text recorded on cancelled jobs
	ErrCancelled = New("job cancelled by user")
)

// IsNotFoundError matches ErrNotFound anywhere in the chain, and also
// plain errors reading "... not found" or "not found: ...".
func IsNotFoundError(err error) bool {
	switch {
	case err == nil:
		return false
	case Is(err, ErrNotFound):
		return true
	}
	msg := err.Error()
	return msg == "not found" || strings.HasSuffix(msg, " not found") || strings.HasPrefix(msg, "not found:")
}

func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError formats a message that still matches ErrNotFound
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError formats a message that still matches ErrInvalidRequest
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}
