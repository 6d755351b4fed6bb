// Package xcperr defines the error taxonomy shared across the copy engine.
//
// Every error surfaced by the engine is a value of type *Error carrying one
// of the Kind constants below, so callers can branch with errors.Is against
// the sentinel Kind values without string-matching messages.
package xcperr

import "fmt"

// Kind identifies the class of failure. Two *Error values with the same
// Kind compare equal under errors.Is regardless of their message/path.
type Kind int

const (
	// KindInvalidSource marks an unreadable or malformed source path.
	KindInvalidSource Kind = iota
	// KindInvalidDestination marks a destination path/type conflict.
	KindInvalidDestination
	// KindDestinationExists marks a no_clobber violation.
	KindDestinationExists
	// KindUnknownFileType marks a block device or other unsupported node.
	KindUnknownFileType
	// KindUnknownDriver marks an unrecognized --driver flag value.
	KindUnknownDriver
	// KindInvalidOption marks an unrecognized value for some other enum
	// flag (--reflink, --backup).
	KindInvalidOption
	// KindUnsupportedOS marks a feature unavailable on the current platform.
	KindUnsupportedOS
	// KindReflinkFailed is emitted only when reflink policy is "always".
	KindReflinkFailed
	// KindCopyError is the generic wrapper for lower-level I/O failures.
	KindCopyError
	// KindEarlyShutdown marks a walker abort (e.g. a clobber hit).
	KindEarlyShutdown
	// KindUnsupportedOperation is the FS-layer sentinel for stub backends.
	KindUnsupportedOperation
)

var kindNames = map[Kind]string{
	KindInvalidSource:        "invalid source",
	KindInvalidDestination:   "invalid destination",
	KindDestinationExists:    "destination exists",
	KindUnknownFileType:      "unknown file type",
	KindUnknownDriver:        "unknown driver",
	KindInvalidOption:        "invalid option",
	KindUnsupportedOS:        "unsupported OS",
	KindReflinkFailed:        "reflink failed",
	KindCopyError:            "copy error",
	KindEarlyShutdown:        "early shutdown",
	KindUnsupportedOperation: "unsupported operation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the concrete error type returned by the engine. Path is optional
// context (the file or argument the error pertains to); Err wraps an
// underlying cause when one exists.
type Error struct {
	Kind Kind
	Msg  string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Msg, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, e.Path)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, xcperr.New(KindDestinationExists, "")) style checks work
// without matching on Msg/Path/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithPath attaches path context to an error in a fluent call.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Sentinel is a bare Kind marker suitable for errors.Is comparisons, e.g.
// errors.Is(err, xcperr.Sentinel(xcperr.KindDestinationExists)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}
