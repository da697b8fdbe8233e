package hardware

import (
	"sync"
)

// MeasurementReader is the read-only view of motor telemetry handed to control code.
// MotorChannel implements it.
type MeasurementReader interface {
	Read(slot int) MotorMeasurement
	Lookup(slot int) (MotorMeasurement, bool)
	Snapshot() [SlotCount]MotorMeasurement
	Drive(i int) MotorMeasurement
	Yaw() MotorMeasurement
	Pitch() MotorMeasurement
	Feeder() MotorMeasurement
	Aux(i int) MotorMeasurement
}

var _ MeasurementReader = (*MotorChannel)(nil)

type slotEntry struct {
	lock sync.RWMutex
	m    MotorMeasurement
}

// MotorSlotTable holds one measurement per motor slot. Each slot has its own lock so a
// reader always sees a whole record from a single decode, never a mix of two.
// Only MotorChannel writes to it.
type MotorSlotTable struct {
	slots [SlotCount]slotEntry
}

func NewMotorSlotTable() *MotorSlotTable {
	return new(MotorSlotTable)
}

func (t *MotorSlotTable) update(slot int, data *[8]byte) {
	e := &t.slots[slot]
	e.lock.Lock()
	e.m.apply(data)
	e.lock.Unlock()
}

func (t *MotorSlotTable) get(slot int) MotorMeasurement {
	e := &t.slots[slot]
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.m
}

// wrap folds any index, including negative ones, into the table.
func wrap(slot int) int {
	slot %= SlotCount
	if slot < 0 {
		slot += SlotCount
	}
	return slot
}
