//go:build !linux

package canbus

import (
	"github.com/pkg/errors"
)

// CANBus is only available where SocketCAN exists; use an SLCAN adapter elsewhere.
type CANBus struct {
	LoopbackBus
}

func NewCANBus(ifname string, sel BusID) (*CANBus, error) {
	return nil, errors.Errorf("socketcan interface %s unsupported on this platform", ifname)
}
