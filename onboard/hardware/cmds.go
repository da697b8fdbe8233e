package hardware

import (
	"encoding/binary"
	"fmt"

	"github.com/CodedInternet/gorobomotor/onboard/canbus"
	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
)

// Wire identifiers. Telemetry ids double as the per-motor ids of each command group.
const (
	IDDriveGroup = 0x200 // chassis bus, drive 1-4
	IDDrive1     = 0x201
	IDDrive2     = 0x202
	IDDrive3     = 0x203
	IDDrive4     = 0x204

	IDGimbalGroup = 0x1FF // gimbal bus, yaw/pitch/feeder/reserved
	IDYaw         = 0x205
	IDPitch       = 0x206
	IDFeeder      = 0x207

	IDAuxGroup = 0x200 // gimbal bus, aux 1-2 then two spare channels
	IDAux1     = 0x201
	IDAux2     = 0x202

	IDResetIdentifiers = 0x700 // chassis bus, puts drive motors into quick id setting
)

func packGroup(bus canbus.BusID, id uint32, values ...int16) (msg canbus.Frame) {
	msg = canbus.Frame{Bus: bus, ID: id, DLC: 8}
	for i, v := range values {
		binary.BigEndian.PutUint16(msg.Data[i*2:], uint16(v))
	}
	return msg
}

// EncodeDriveGroup packs currents for drive motors 1-4, range ±MaxDriveCurrent.
func EncodeDriveGroup(m1, m2, m3, m4 int16) canbus.Frame {
	return packGroup(canbus.BusChassis, IDDriveGroup, m1, m2, m3, m4)
}

// EncodeGimbalGroup packs yaw and pitch (±MaxGimbalVoltage), feeder (±MaxFeederCurrent) and a reserved channel.
func EncodeGimbalGroup(yaw, pitch, feeder, rev int16) canbus.Frame {
	return packGroup(canbus.BusGimbal, IDGimbalGroup, yaw, pitch, feeder, rev)
}

// EncodeAuxGroup packs the auxiliary spin motors and the two spare channels sharing their group.
func EncodeAuxGroup(v1, v2, v3, v4 int16) canbus.Frame {
	return packGroup(canbus.BusGimbal, IDAuxGroup, v1, v2, v3, v4)
}

// EncodeSingleChannel commands a single actuator in the auxiliary group, all other channels are zero.
func EncodeSingleChannel(value int16, channel int) (canbus.Frame, error) {
	if channel < 0 || channel > 3 {
		return canbus.Frame{}, deverrors.InvalidArgumentError{
			Op:     "EncodeSingleChannel",
			Reason: fmt.Sprintf("channel %d outside 0-3", channel),
		}
	}

	msg := packGroup(canbus.BusGimbal, IDAuxGroup)
	binary.BigEndian.PutUint16(msg.Data[channel*2:], uint16(value))
	return msg, nil
}

func EncodeResetIdentifiers() canbus.Frame {
	return packGroup(canbus.BusChassis, IDResetIdentifiers)
}
