package hardware

import (
	"encoding/binary"
	"strings"
)

const (
	SlotCount = 9

	// encoder counts per revolution for the motors on this platform
	EncoderRange = 8192

	// LivenessBase offsets slot indexes into the detector key space.
	LivenessBase = 1

	// physical command limits per motor type. Nothing in this package enforces them.
	MaxDriveCurrent  = 16384
	MaxGimbalVoltage = 30000
	MaxFeederCurrent = 10000
)

// Slot indexes, one per physical motor.
const (
	SlotDrive1 = iota
	SlotDrive2
	SlotDrive3
	SlotDrive4
	SlotYaw
	SlotPitch
	SlotFeeder
	SlotAux1
	SlotAux2
)

var slotNames = [SlotCount]string{"drive1", "drive2", "drive3", "drive4", "yaw", "pitch", "feeder", "aux1", "aux2"}

func SlotName(slot int) string {
	if slot < 0 || slot >= SlotCount {
		return ""
	}
	return slotNames[slot]
}

func SlotByName(name string) (int, bool) {
	name = strings.ToLower(name)
	for i, n := range slotNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// MotorMeasurement is one motor's telemetry as of its last frame.
type MotorMeasurement struct {
	Encoder      uint16 `json:"ecd"`
	LastEncoder  uint16 `json:"last_ecd"`
	SpeedRPM     int16  `json:"speed_rpm"`
	GivenCurrent int16  `json:"given_current"`
	Temperature  uint8  `json:"temperature"`
}

// EncoderDelta is the shortest signed distance travelled between the last two readings.
func (m MotorMeasurement) EncoderDelta() int16 {
	d := int(m.Encoder) - int(m.LastEncoder)
	if d > EncoderRange/2 {
		d -= EncoderRange
	} else if d < -EncoderRange/2 {
		d += EncoderRange
	}
	return int16(d)
}

// apply shifts the current encoder reading into LastEncoder and loads the payload.
func (m *MotorMeasurement) apply(data *[8]byte) {
	m.LastEncoder = m.Encoder
	m.Encoder = binary.BigEndian.Uint16(data[0:2])
	m.SpeedRPM = int16(binary.BigEndian.Uint16(data[2:4]))
	m.GivenCurrent = int16(binary.BigEndian.Uint16(data[4:6]))
	m.Temperature = data[6]
}
