package logbuffer

import "github.com/pkg/errors"

var (
	ErrInvalidOffset       = errors.New("invalid offset")
	ErrInvalidTermLength   = errors.New("invalid term length")
	ErrInvalidStateLength  = errors.New("invalid state length")
	ErrMisalignedRegion    = errors.New("region is not 8 bytes aligned")
	ErrUnsupportedPlatform = errors.New("term buffers require a little-endian platform")
	ErrCorruptedFrame      = errors.New("frame corrupted")
	ErrPayloadTooLarge     = errors.New("payload is too large")
	ErrConcurrentClaim     = errors.New("tail moved during claim: more than one writer")
	ErrClaimNotActive      = errors.New("claim already committed or aborted")
)

// Publication statuses returned by the Appender. They are outcomes the
// caller is expected to branch on, not failures of the buffer.
var (
	ErrNotConnected        = errors.New("not connected")
	ErrBackPressured       = errors.New("back pressured")
	ErrAdminAction         = errors.New("admin action: term is full and must be rotated")
	ErrClosed              = errors.New("appender closed")
	ErrMaxPositionExceeded = errors.New("max position exceeded")
)

// Retryable reports whether an Appender status may clear up on its own.
// ErrClosed and ErrMaxPositionExceeded are terminal for the buffer.
func Retryable(err error) bool {
	switch errors.Cause(err) {
	case ErrNotConnected, ErrBackPressured, ErrAdminAction:
		return true
	default:
		return false
	}
}
