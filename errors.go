package synctable

import "github.com/cockroachdb/errors"

var (
	// ErrNilKey is returned when a nil key is passed to an inserting operation.
	ErrNilKey = errors.New("synctable: nil key")
	// ErrNilValue is returned when a nil value would be stored, either passed
	// directly or produced by a remapping function.
	ErrNilValue = errors.New("synctable: nil value")
	// ErrInvalidArgument reports an invalid constructor option.
	ErrInvalidArgument = errors.New("synctable: invalid argument")
	// ErrConcurrentModification reports a structural modification that the
	// current operation did not expect. Detection is best-effort: it is a
	// debugging aid, not a synchronization guarantee.
	ErrConcurrentModification = errors.New("synctable: concurrent modification")
	// ErrIllegalState is returned by Iterator.Remove and Iterator.SetValue
	// when there is no current entry.
	ErrIllegalState = errors.New("synctable: illegal iterator state")
	// ErrUnsupported is returned when removing through a legacy enumerator.
	ErrUnsupported = errors.New("synctable: unsupported operation")
	// ErrCorruptStream is returned by ReadFrom for malformed input.
	ErrCorruptStream = errors.New("synctable: corrupt stream")
)
