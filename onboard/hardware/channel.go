package hardware

import (
	"context"
	"sync"

	"github.com/CodedInternet/gorobomotor/onboard/canbus"
	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Detector is told each time a motor's telemetry is refreshed.
type Detector interface {
	Hook(key int)
}

type Options struct {
	// NotifyAuxiliary extends liveness notifications to the auxiliary slots.
	// Off by default, the auxiliary motors have never reported liveness.
	NotifyAuxiliary bool `yaml:"notify_auxiliary"`

	// StrictSlots makes Lookup refuse out-of-range indexes instead of wrapping them.
	StrictSlots bool `yaml:"strict_slots"`
}

// MotorChannel decodes motor telemetry into a MotorSlotTable and routes command frames
// to the bus they belong on.
type MotorChannel struct {
	table    *MotorSlotTable
	detector Detector
	opts     Options

	lock  sync.Mutex
	buses map[canbus.BusID]canbus.CANBusInterface
}

func NewMotorChannel(table *MotorSlotTable, detector Detector, opts Options) *MotorChannel {
	if table == nil {
		table = NewMotorSlotTable()
	}
	return &MotorChannel{
		table:    table,
		detector: detector,
		opts:     opts,
		buses:    make(map[canbus.BusID]canbus.CANBusInterface),
	}
}

// ResolveSlot maps a telemetry identifier on a given bus to its motor slot.
func ResolveSlot(bus canbus.BusID, id uint32) (int, bool) {
	switch bus {
	case canbus.BusChassis:
		switch id {
		case IDDrive1, IDDrive2, IDDrive3, IDDrive4:
			return int(id - IDDrive1), true
		}

	case canbus.BusGimbal:
		switch id {
		case IDAux1, IDAux2:
			return int(id-IDDrive1) + SlotAux1, true
		case IDYaw, IDPitch, IDFeeder:
			return int(id - IDDrive1), true
		}
	}
	return 0, false
}

// Decode applies one telemetry frame. Frames from identifiers this channel does not own,
// including every extended frame, return ok == false and leave the table untouched. A
// recognised frame whose payload is not exactly 8 bytes is rejected with a MalformedFrameError.
func (c *MotorChannel) Decode(msg canbus.Frame) (slot int, ok bool, err error) {
	if msg.Extended {
		return 0, false, nil
	}
	slot, ok = ResolveSlot(msg.Bus, msg.ID)
	if !ok {
		return 0, false, nil
	}

	if msg.DLC != 8 {
		return 0, false, deverrors.MalformedFrameError{ID: msg.ID, Length: int(msg.DLC)}
	}

	c.table.update(slot, &msg.Data)

	if c.detector != nil && (slot < SlotAux1 || c.opts.NotifyAuxiliary) {
		c.detector.Hook(LivenessBase + slot)
	}

	return slot, true, nil
}

// Listen feeds every frame read from bus through Decode until ctx is cancelled.
func (c *MotorChannel) Listen(ctx context.Context, bus canbus.CANBusInterface) {
	rx := make(chan canbus.Frame, 64)
	bus.AddListener(rx)
	defer bus.RemoveListener(rx)

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-rx:
			slot, ok, err := c.Decode(msg)
			if err != nil {
				glog.Warningf("hardware: %v", err)
				continue
			}
			if ok {
				if glog.V(3) {
					glog.Infof("hardware: %s updated from %s", SlotName(slot), msg)
				}
			}
		}
	}
}

// Attach registers the bus used for frames addressed to sel.
func (c *MotorChannel) Attach(sel canbus.BusID, bus canbus.CANBusInterface) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.buses[sel] = bus
}

// Send writes an encoded command frame to its bus. Transmission failures are the caller's to handle.
func (c *MotorChannel) Send(msg canbus.Frame) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	bus, ok := c.buses[msg.Bus]
	if !ok {
		return errors.Errorf("no bus attached for %s", msg.Bus)
	}
	return bus.SendMsg(msg)
}

// Read returns a copy of the measurement at slot. Out-of-range indexes wrap modulo the table size.
func (c *MotorChannel) Read(slot int) MotorMeasurement {
	return c.table.get(wrap(slot))
}

// Lookup is Read that honours Options.StrictSlots.
func (c *MotorChannel) Lookup(slot int) (MotorMeasurement, bool) {
	if slot < 0 || slot >= SlotCount {
		if c.opts.StrictSlots {
			return MotorMeasurement{}, false
		}
	}
	return c.Read(slot), true
}

// Snapshot copies every slot.
func (c *MotorChannel) Snapshot() (all [SlotCount]MotorMeasurement) {
	for i := range all {
		all[i] = c.table.get(i)
	}
	return
}

// Drive returns drive motor i, where i is taken modulo four.
func (c *MotorChannel) Drive(i int) MotorMeasurement {
	return c.Read(SlotDrive1 + i&0x03)
}

func (c *MotorChannel) Yaw() MotorMeasurement {
	return c.Read(SlotYaw)
}

func (c *MotorChannel) Pitch() MotorMeasurement {
	return c.Read(SlotPitch)
}

func (c *MotorChannel) Feeder() MotorMeasurement {
	return c.Read(SlotFeeder)
}

// Aux returns auxiliary motor i, where i is taken modulo two.
func (c *MotorChannel) Aux(i int) MotorMeasurement {
	return c.Read(SlotAux1 + i&0x01)
}
