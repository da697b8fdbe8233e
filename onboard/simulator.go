package onboard

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard/canbus"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
)

const (
	SIM_INTERVAL  = time.Millisecond
	SIM_RESPONSE  = 0.2  // fraction of the speed error closed each step
	SIM_RPM_SCALE = 0.5  // steady state rpm per unit of command
	SIM_TEMP_BASE = 30   // degrees C
	SIM_TEMP_VARY = 3
)

type simulatedMotor struct {
	command  int16
	speed    float64 // rpm
	position float64 // encoder counts
	temp     uint8
}

func (m *simulatedMotor) step(dt time.Duration) {
	target := float64(m.command) * SIM_RPM_SCALE
	m.speed += (target - m.speed) * SIM_RESPONSE

	m.position += m.speed * hardware.EncoderRange / 60 * dt.Seconds()
	for m.position >= hardware.EncoderRange {
		m.position -= hardware.EncoderRange
	}
	for m.position < 0 {
		m.position += hardware.EncoderRange
	}

	m.temp = uint8(SIM_TEMP_BASE + rand.Intn(SIM_TEMP_VARY))
}

func (m *simulatedMotor) frame(bus canbus.BusID, id uint32) canbus.Frame {
	msg := canbus.Frame{Bus: bus, ID: id, DLC: 8}
	binary.BigEndian.PutUint16(msg.Data[0:2], uint16(m.position))
	binary.BigEndian.PutUint16(msg.Data[2:4], uint16(int16(m.speed)))
	binary.BigEndian.PutUint16(msg.Data[4:6], uint16(m.command))
	msg.Data[6] = m.temp
	return msg
}

// Simulator stands in for both buses and every motor on them. Command frames sent to its
// buses set motor currents; each Step advances the motors and emits their telemetry.
type Simulator struct {
	lock   sync.Mutex
	motors [hardware.SlotCount]simulatedMotor
	buses  map[canbus.BusID]*canbus.LoopbackBus
}

func NewSimulator() (sim *Simulator) {
	sim = &Simulator{
		buses: map[canbus.BusID]*canbus.LoopbackBus{
			canbus.BusChassis: canbus.NewLoopbackBus(canbus.BusChassis),
			canbus.BusGimbal:  canbus.NewLoopbackBus(canbus.BusGimbal),
		},
	}
	for _, bus := range sim.buses {
		bus.OnSend = sim.command
	}
	return
}

func (s *Simulator) Bus(sel canbus.BusID) *canbus.LoopbackBus {
	return s.buses[sel]
}

func (s *Simulator) command(msg canbus.Frame) {
	var slots []int
	switch {
	case msg.Bus == canbus.BusChassis && msg.ID == hardware.IDDriveGroup:
		slots = []int{hardware.SlotDrive1, hardware.SlotDrive2, hardware.SlotDrive3, hardware.SlotDrive4}
	case msg.Bus == canbus.BusGimbal && msg.ID == hardware.IDGimbalGroup:
		slots = []int{hardware.SlotYaw, hardware.SlotPitch, hardware.SlotFeeder}
	case msg.Bus == canbus.BusGimbal && msg.ID == hardware.IDAuxGroup:
		slots = []int{hardware.SlotAux1, hardware.SlotAux2}
	default:
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for i, slot := range slots {
		s.motors[slot].command = int16(binary.BigEndian.Uint16(msg.Data[i*2:]))
	}
}

// Command returns the last command received for slot.
func (s *Simulator) Command(slot int) int16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.motors[slot].command
}

// Step advances every motor by dt and publishes its telemetry.
func (s *Simulator) Step(dt time.Duration) {
	frames := make([]canbus.Frame, 0, hardware.SlotCount)

	s.lock.Lock()
	for slot := range s.motors {
		m := &s.motors[slot]
		m.step(dt)

		bus, id := telemetryAddress(slot)
		frames = append(frames, m.frame(bus, id))
	}
	s.lock.Unlock()

	for _, msg := range frames {
		s.buses[msg.Bus].Inject(msg)
	}
}

func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(SIM_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(SIM_INTERVAL)
		}
	}
}

func telemetryAddress(slot int) (canbus.BusID, uint32) {
	switch {
	case slot <= hardware.SlotDrive4:
		return canbus.BusChassis, uint32(hardware.IDDrive1 + slot)
	case slot <= hardware.SlotFeeder:
		return canbus.BusGimbal, uint32(hardware.IDDrive1 + slot)
	default:
		return canbus.BusGimbal, uint32(hardware.IDAux1 + slot - hardware.SlotAux1)
	}
}
