package canbus

import (
	"errors"
	"fmt"
)

const (
	msgMaxLength = 8

	sffMask = 0x7ff
	effMask = 0x1fffffff
)

// errors
var (
	ERR_DATA_TOO_LONG = errors.New("data length exceeds 8 bytes")
	ERR_BUS_CLOSED    = errors.New("bus has been closed")
)

// BusID selects one of the physical buses a frame travels on.
type BusID uint8

const (
	BusChassis BusID = 1 // drive motors
	BusGimbal  BusID = 2 // gimbal, feeder and auxiliary motors
)

func (b BusID) String() string {
	switch b {
	case BusChassis:
		return "chassis"
	case BusGimbal:
		return "gimbal"
	}
	return fmt.Sprintf("bus%d", uint8(b))
}

// Frame is a single bus message. Data is held inline so frames can be passed by value
// through the receive path without allocating.
type Frame struct {
	Bus      BusID   // bus the frame arrived on or is destined for
	ID       uint32  // 11 bit standard or 29 bit extended identifier
	Extended bool    // ID is a 29 bit identifier
	DLC      uint8   // payload length
	Data     [8]byte // raw data up to eight bytes, only Data[:DLC] is meaningful
}

// NewFrame copies data into a standard frame. DLC is taken from len(data).
func NewFrame(bus BusID, id uint32, data []byte) (msg Frame, err error) {
	if len(data) > msgMaxLength {
		return msg, ERR_DATA_TOO_LONG
	}
	msg = Frame{Bus: bus, ID: id & sffMask, DLC: uint8(len(data))}
	copy(msg.Data[:], data)
	return msg, nil
}

// NewExtendedFrame is NewFrame for a 29 bit identifier.
func NewExtendedFrame(bus BusID, id uint32, data []byte) (msg Frame, err error) {
	msg, err = NewFrame(bus, 0, data)
	if err != nil {
		return
	}
	msg.ID = id & effMask
	msg.Extended = true
	return msg, nil
}

func (msg Frame) Payload() []byte {
	return msg.Data[:msg.DLC]
}

func (msg Frame) String() string {
	if msg.Extended {
		return fmt.Sprintf("%s 0x%08x [%d] % x", msg.Bus, msg.ID, msg.DLC, msg.Payload())
	}
	return fmt.Sprintf("%s 0x%03x [%d] % x", msg.Bus, msg.ID, msg.DLC, msg.Payload())
}
