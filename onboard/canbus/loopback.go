package canbus

import (
	"sync"
)

// maxSent bounds the record of sent frames kept by a LoopbackBus.
const maxSent = 1024

// LoopbackBus is an in-memory bus. Sent frames are recorded and handed to OnSend,
// frames pushed with Inject are delivered to listeners.
type LoopbackBus struct {
	Sel    BusID
	OnSend func(msg Frame)

	listeners
	mu     sync.Mutex
	sent   []Frame
	closed bool
}

func NewLoopbackBus(sel BusID) *LoopbackBus {
	return &LoopbackBus{Sel: sel}
}

func (b *LoopbackBus) AddListener(rxchan chan<- Frame) {
	b.add(rxchan)
}

func (b *LoopbackBus) RemoveListener(rxchan chan<- Frame) {
	b.remove(rxchan)
}

// Listeners reports how many channels are receiving injected frames.
func (b *LoopbackBus) Listeners() int {
	return b.count()
}

func (b *LoopbackBus) SendMsg(msg Frame) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ERR_BUS_CLOSED
	}
	msg.Bus = b.Sel
	if len(b.sent) == maxSent {
		b.sent = b.sent[1:]
	}
	b.sent = append(b.sent, msg)
	hook := b.OnSend
	b.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return nil
}

// Inject delivers msg to listeners as if it had been read off the wire.
func (b *LoopbackBus) Inject(msg Frame) {
	msg.Bus = b.Sel
	b.publish(msg)
}

// Sent returns a copy of the most recent frames sent.
func (b *LoopbackBus) Sent() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.sent...)
}

func (b *LoopbackBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
