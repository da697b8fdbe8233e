package canbus

import (
	"sync"

	"github.com/golang/glog"
)

// CANBusInterface is a byte-frame-in/byte-frame-out channel onto one physical bus.
type CANBusInterface interface {
	// AddListener registers a channel that receives every frame read from the bus.
	// Delivery never blocks the reader; frames are dropped for a listener that is not keeping up.
	AddListener(rxchan chan<- Frame)
	// RemoveListener stops delivery to a channel added with AddListener.
	RemoveListener(rxchan chan<- Frame)
	SendMsg(msg Frame) error
	Close() error
}

type listeners struct {
	lock sync.RWMutex
	rx   []chan<- Frame
}

func (l *listeners) add(rxchan chan<- Frame) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.rx = append(l.rx, rxchan)
}

func (l *listeners) remove(rxchan chan<- Frame) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, c := range l.rx {
		if c == rxchan {
			l.rx = append(l.rx[:i], l.rx[i+1:]...)
			return
		}
	}
}

func (l *listeners) count() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.rx)
}

func (l *listeners) publish(msg Frame) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	for _, c := range l.rx {
		select {
		case c <- msg:
		default:
			if glog.V(2) {
				glog.Infof("canbus: listener full, dropped %s", msg)
			}
		}
	}
}
