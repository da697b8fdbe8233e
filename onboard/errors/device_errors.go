package errors

import (
	"errors"
	"fmt"
)

var (
	ErrSlotOutOfRange = errors.New("motor slot out of range")
)

// InvalidArgumentError is returned when an operation is handed an argument it cannot act on.
type InvalidArgumentError struct {
	Op     string
	Reason string
}

func (err InvalidArgumentError) Error() string {
	if len(err.Op) == 0 {
		err.Op = "UNKNOWN"
	}

	return fmt.Sprintf("invalid argument to %s: %s", err.Op, err.Reason)
}

// MalformedFrameError is returned by decode when a telemetry frame payload is not exactly 8 bytes.
// No motor state is touched when this is returned.
type MalformedFrameError struct {
	ID     uint32
	Length int
}

func (err MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame 0x%03x: payload length %d, want 8", err.ID, err.Length)
}

type UnknownMotorError struct {
	Name string
}

func (err UnknownMotorError) Error() string {
	return fmt.Sprintf("no such motor %s", err.Name)
}

type UnsupportedVersionError struct {
	Version    string
	Constraint string
}

func (err UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unable to use config version %s - require %s", err.Version, err.Constraint)
}
