package cmn

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Error kinds map 1:1 onto the gateway's HTTP status taxonomy. Callers
// use errors.Is against these sentinels; internal layers wrap them with
// github.com/pkg/errors.Wrap to keep the causal chain (e.g. the MS RPC
// failure that made a request transient) visible through retries.
var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrBadRequest          = errors.New("bad request")
	ErrStale               = errors.New("stale, redirect required")
	ErrTryAgain            = errors.New("try again")
	ErrCoordinatorMismatch = errors.New("coordinator mismatch")
	ErrNotImplemented      = errors.New("not implemented")
	ErrInternal            = errors.New("internal error")

	// Structural errors: fatal to the reload attempt, the
	// live state is left untouched.
	ErrStructural = errors.New("structural error")

	// Data-integrity errors: the offending chunk is evicted, the request
	// fails with a 502-class error.
	ErrDataIntegrity = errors.New("data integrity error")
)

// Wrap annotates err with a message while preserving errors.Is/As against
// the sentinel kinds above.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// IsNotFound, IsTryAgain, IsBadRequest, IsPermissionDenied classify a
// (possibly wrapped) error for the HTTP status mapping.
func IsNotFound(err error) bool         { return stderrors.Is(err, ErrNotFound) }
func IsTryAgain(err error) bool         { return stderrors.Is(err, ErrTryAgain) }
func IsBadRequest(err error) bool       { return stderrors.Is(err, ErrBadRequest) }
func IsPermissionDenied(err error) bool { return stderrors.Is(err, ErrPermissionDenied) }
func IsCoordinatorMismatch(err error) bool { return stderrors.Is(err, ErrCoordinatorMismatch) }
func IsDataIntegrity(err error) bool       { return stderrors.Is(err, ErrDataIntegrity) }
