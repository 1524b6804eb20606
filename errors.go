package storfs

import "golang.org/x/xerrors"

// Kind classifies the outcome of a filesystem operation. There is no
// exception-style unwinding in this package: every internal helper
// returns a Kind (via *Error, or nil for OK) and public operations map
// the first non-OK result to a return value and abort.
type Kind int

const (
	// OK indicates success.
	OK Kind = iota
	// ErrGeneric indicates an invariant violation (bad path, bad
	// config, relocation depth exhausted). Non-recoverable within the
	// operation.
	ErrGeneric
	// ErrWriteFailed indicates the device refused a write, or a
	// header would cross a page boundary. Inside the wear-retry
	// wrapper this triggers relocation; outside it, it is surfaced.
	ErrWriteFailed
	// ErrReadFailed indicates the device refused a read, or a
	// boundary check failed. Never retried at this layer.
	ErrReadFailed
	// ErrMemoryDiscrepancy is reserved for future consistency checks;
	// not produced by this implementation.
	ErrMemoryDiscrepancy
	// ErrCRC indicates a computed CRC did not match a stored CRC.
	// Inside the wear-retry wrapper this triggers relocation.
	ErrCRC
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case ErrGeneric:
		return "generic_error"
	case ErrWriteFailed:
		return "write_failed"
	case ErrReadFailed:
		return "read_failed"
	case ErrMemoryDiscrepancy:
		return "memory_discrepancy"
	case ErrCRC:
		return "crc_error"
	default:
		return "unknown"
	}
}

// Error is the error type the filesystem operations in this package
// return for their own failures; errors from Config.Lock/Unlock are
// returned as they are, and UnmarshalHeader/UnmarshalFragmentHeader
// return a plain error for a short buffer. Callers that only care about the taxonomy can switch on
// Kind(); callers that want the underlying cause can errors.Unwrap it.
type Error struct {
	Kind Kind
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func newErr(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, err: cause}
}

func wrapErr(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, err: xerrors.Errorf(format, args...)}
}

// kindOf unwraps err down to a *Error and returns its Kind, or
// ErrGeneric if err is non-nil but not one of ours.
func kindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return ErrGeneric
}
