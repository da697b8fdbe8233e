package canbus

import (
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const readTimeout = 100 * time.Millisecond

// CANBus is a raw SocketCAN socket bound to one interface.
type CANBus struct {
	listeners

	fd        int
	sel       BusID
	tx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewCANBus(ifname string, sel BusID) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to find interface %s", ifname)
	}

	bus = &CANBus{
		sel:  sel,
		tx:   make(chan []byte, 16),
		done: make(chan struct{}),
	}

	bus.fd, err = unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open CAN socket")
	}
	unix.SetsockoptInt(bus.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_LOOPBACK, 0)

	// the reader wakes periodically so Close does not depend on traffic arriving
	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err = unix.SetsockoptTimeval(bus.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(bus.fd)
		return nil, errors.Wrap(err, "unable to set CAN read timeout")
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(bus.fd, addr); err != nil {
		unix.Close(bus.fd)
		return nil, errors.Wrapf(err, "unable to bind %s", ifname)
	}

	bus.wg.Add(2)
	go bus.reader()
	go bus.writer()

	glog.Infof("canbus: opened %s as %s", ifname, sel)
	return
}

func (c *CANBus) AddListener(rxchan chan<- Frame) {
	c.add(rxchan)
}

func (c *CANBus) RemoveListener(rxchan chan<- Frame) {
	c.remove(rxchan)
}

func (c *CANBus) SendMsg(msg Frame) error {
	raw, err := msg.toByteArray()
	if err != nil {
		return err
	}

	select {
	case c.tx <- raw:
		return nil
	case <-c.done:
		return ERR_BUS_CLOSED
	}
}

func (c *CANBus) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return unix.Close(c.fd)
}

func (c *CANBus) writer() {
	defer c.wg.Done()
	for {
		select {
		case raw := <-c.tx:
			if _, err := unix.Write(c.fd, raw); err != nil {
				glog.Errorf("canbus: %s write failed: %v", c.sel, err)
			}
		case <-c.done:
			return
		}
	}
}

func (c *CANBus) reader() {
	defer c.wg.Done()
	raw := make([]byte, canFrameSize)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := unix.Read(c.fd, raw)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				glog.Errorf("canbus: %s read failed: %v", c.sel, err)
				time.Sleep(readTimeout)
			}
			continue
		}
		if n < canFrameSize {
			continue
		}

		if msg, ok := frameFromByteArray(raw, c.sel); ok {
			c.publish(msg)
		}
	}
}
