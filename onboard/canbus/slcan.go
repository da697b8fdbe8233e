package canbus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Lawicel/SLCAN bitrate commands, keyed by bits per second.
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

var errSLCANLine = errors.New("malformed slcan line")

type slcanPort interface {
	io.ReadWriteCloser
}

// SLCANBus talks to a USB-CAN adapter speaking the Lawicel ASCII protocol over a serial port.
type SLCANBus struct {
	listeners

	port      slcanPort
	sel       BusID
	wlock     sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSLCANBus(portName string, bitrate int, sel BusID) (*SLCANBus, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open slcan port %s", portName)
	}
	if err = port.SetReadTimeout(readTimeoutSLCAN); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "unable to set read timeout on %s", portName)
	}

	bus, err := newSLCANBus(port, bitrate, sel)
	if err != nil {
		port.Close()
		return nil, err
	}
	glog.Infof("canbus: opened slcan %s at %d bit/s as %s", portName, bitrate, sel)
	return bus, nil
}

const readTimeoutSLCAN = 100 * time.Millisecond

// slcanMaxLine is well over the longest frame line, T + 8 id + dlc + 16 data.
const slcanMaxLine = 64

func newSLCANBus(port slcanPort, bitrate int, sel BusID) (*SLCANBus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, errors.Errorf("unsupported slcan bitrate %d", bitrate)
	}

	bus := &SLCANBus{
		port: port,
		sel:  sel,
		done: make(chan struct{}),
	}

	// close any channel left open by a previous run before configuring
	for _, cmd := range []string{"C", code, "O"} {
		if err := bus.writeLine([]byte(cmd)); err != nil {
			return nil, errors.Wrapf(err, "slcan setup command %s failed", cmd)
		}
	}

	bus.wg.Add(1)
	go bus.reader()
	return bus, nil
}

func (b *SLCANBus) AddListener(rxchan chan<- Frame) {
	b.add(rxchan)
}

func (b *SLCANBus) RemoveListener(rxchan chan<- Frame) {
	b.remove(rxchan)
}

func (b *SLCANBus) SendMsg(msg Frame) error {
	select {
	case <-b.done:
		return ERR_BUS_CLOSED
	default:
	}

	line, err := encodeSLCAN(msg)
	if err != nil {
		return err
	}
	return b.writeLine(line)
}

func (b *SLCANBus) Close() (err error) {
	b.closeOnce.Do(func() {
		close(b.done)
		b.writeLine([]byte("C"))
		err = b.port.Close()
		b.wg.Wait()
	})
	return
}

func (b *SLCANBus) writeLine(line []byte) error {
	b.wlock.Lock()
	defer b.wlock.Unlock()

	_, err := b.port.Write(append(line, '\r'))
	return err
}

func (b *SLCANBus) reader() {
	defer b.wg.Done()

	buf := make([]byte, 64)
	var pending []byte
	for {
		n, err := b.port.Read(buf)
		select {
		case <-b.done:
			return
		default:
		}
		if err != nil {
			glog.Errorf("canbus: slcan %s read failed: %v", b.sel, err)
			time.Sleep(readTimeoutSLCAN)
			continue
		}

		pending = append(pending, buf[:n]...)
		if len(pending) > slcanMaxLine && bytes.IndexByte(pending, '\r') < 0 {
			glog.Warningf("canbus: slcan %s: discarding %d bytes without a line end", b.sel, len(pending))
			pending = pending[:0]
			continue
		}
		for {
			i := bytes.IndexByte(pending, '\r')
			if i < 0 {
				break
			}
			line := pending[:i]
			pending = pending[i+1:]

			msg, ok, err := decodeSLCAN(line, b.sel)
			if err != nil {
				glog.Warningf("canbus: slcan %s: %v %q", b.sel, err, line)
				continue
			}
			if ok {
				b.publish(msg)
			}
		}
	}
}

// encodeSLCAN produces a transmit command without the trailing carriage return.
func encodeSLCAN(msg Frame) ([]byte, error) {
	if msg.DLC > msgMaxLength {
		return nil, ERR_DATA_TOO_LONG
	}

	var line string
	if msg.Extended {
		line = fmt.Sprintf("T%08X%d", msg.ID&effMask, msg.DLC)
	} else {
		line = fmt.Sprintf("t%03X%d", msg.ID&sffMask, msg.DLC)
	}
	return append([]byte(line), bytes.ToUpper([]byte(hex.EncodeToString(msg.Payload())))...), nil
}

// decodeSLCAN parses a received frame line. Lines that are not frames (acks, bell) return ok == false.
func decodeSLCAN(line []byte, sel BusID) (msg Frame, ok bool, err error) {
	if len(line) == 0 {
		return msg, false, nil
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	default:
		return msg, false, nil
	}

	if len(line) < 1+idLen+1 {
		return msg, false, errSLCANLine
	}

	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return msg, false, errSLCANLine
	}

	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > msgMaxLength {
		return msg, false, errSLCANLine
	}

	data := line[2+idLen:]
	if len(data) < dlc*2 {
		return msg, false, errSLCANLine
	}

	msg = Frame{Bus: sel, ID: uint32(id), Extended: line[0] == 'T', DLC: uint8(dlc)}
	if _, err = hex.Decode(msg.Data[:dlc], data[:dlc*2]); err != nil {
		return Frame{}, false, errSLCANLine
	}

	return msg, true, nil
}
