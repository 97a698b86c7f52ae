package models

import "fmt"

// ErrorKind enumerates the failure taxonomy shared by all reconciliation
// engines. Every fatal or surfaced failure inside a session is a *SyncError
// carrying one of these kinds so callers can branch without string matching.
type ErrorKind int

const (
	// ErrParameterMismatch: the peers negotiated incompatible parameters.
	// Fatal for the session.
	ErrParameterMismatch ErrorKind = iota

	// ErrSyncSetup: the modulus handshake or parameter exchange failed.
	// Fatal for the session.
	ErrSyncSetup

	// ErrOverflow: the declared difference bound was exceeded during
	// interpolation. Engines retry this internally where the protocol
	// allows; it escapes only wrapped into ErrSyncInsufficientBound.
	ErrOverflow

	// ErrSyncInsufficientBound: the difference bound was exceeded and the
	// engine has no further recourse. Surfaced to the caller.
	ErrSyncInsufficientBound

	// ErrPartialDecode: an IBLT decode stopped before emptying the table.
	// Surfaced; the caller may escalate to a larger structure.
	ErrPartialDecode

	// ErrUnsupportedOp: the engine does not implement the operation
	// (e.g. delElem on a filter-backed engine).
	ErrUnsupportedOp

	// ErrChannelClosed: the peer closed the channel mid-sync. Fatal.
	ErrChannelClosed

	// ErrTimeout: a per-recv deadline expired. Fatal for the session.
	ErrTimeout

	// ErrSketches: a sketch update failed. Surfaced, never aborts a sync.
	ErrSketches

	// ErrParameterParse: a parameter file could not be parsed. Fatal for
	// the configuration load.
	ErrParameterParse

	// ErrTreeTooDeep: the InterCPISync partition tree hit its depth cap.
	ErrTreeTooDeep
)

var kindNames = map[ErrorKind]string{
	ErrParameterMismatch:     "parameter-mismatch",
	ErrSyncSetup:             "sync-setup",
	ErrOverflow:              "overflow",
	ErrSyncInsufficientBound: "sync-insufficient-bound",
	ErrPartialDecode:         "partial-decode",
	ErrUnsupportedOp:         "unsupported-op",
	ErrChannelClosed:         "channel-closed",
	ErrTimeout:               "timeout",
	ErrSketches:              "sketches",
	ErrParameterParse:        "parameter-parse",
	ErrTreeTooDeep:           "tree-too-deep",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown-kind(%d)", int(k))
}

// SyncError is the error type produced by the reconciliation core.
type SyncError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *SyncError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError builds a SyncError with a formatted message.
func NewSyncError(kind ErrorKind, format string, args ...interface{}) *SyncError {
	return &SyncError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapSyncError attaches a kind to an underlying error.
func WrapSyncError(kind ErrorKind, err error, msg string) *SyncError {
	return &SyncError{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or ok=false when err is not a
// SyncError.
func KindOf(err error) (ErrorKind, bool) {
	for err != nil {
		if se, ok := err.(*SyncError); ok {
			return se.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
