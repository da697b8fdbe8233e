package canbus

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const canFrameSize = 16 // sizeof(struct can_frame)

// toByteArray lays a frame out as a struct can_frame.
func (msg *Frame) toByteArray() (raw []byte, err error) {
	if msg.DLC > msgMaxLength {
		return nil, ERR_DATA_TOO_LONG
	}

	raw = make([]byte, canFrameSize)

	oid := msg.ID & unix.CAN_SFF_MASK
	if msg.Extended {
		oid = (msg.ID & unix.CAN_EFF_MASK) | unix.CAN_EFF_FLAG
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	// check and assign length to DLC
	raw[4] = msg.DLC

	// copy the raw data
	copy(raw[8:], msg.Payload())

	return
}

// frameFromByteArray parses a struct can_frame. Error and remote frames are discarded.
func frameFromByteArray(raw []byte, sel BusID) (msg Frame, ok bool) {
	if len(raw) < canFrameSize {
		return msg, false
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])
	if oid&(unix.CAN_ERR_FLAG|unix.CAN_RTR_FLAG) != 0 {
		return msg, false
	}

	// determine ID
	if oid&unix.CAN_EFF_FLAG != 0 {
		msg.ID = oid & unix.CAN_EFF_MASK
		msg.Extended = true
	} else {
		msg.ID = oid & unix.CAN_SFF_MASK
	}

	msg.Bus = sel
	msg.DLC = raw[4]
	if msg.DLC > msgMaxLength {
		msg.DLC = msgMaxLength
	}
	copy(msg.Data[:], raw[8:8+msg.DLC])

	return msg, true
}
