package canbus

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testPort struct {
	*io.PipeReader
	lock    sync.Mutex
	written bytes.Buffer
}

func (p *testPort) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.written.Write(b)
}

func (p *testPort) Close() error {
	return p.PipeReader.Close()
}

func (p *testPort) Written() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.written.String()
}

func TestSLCANCodec(t *testing.T) {
	Convey("standard frames encode as t lines", t, func() {
		msg, _ := NewFrame(BusChassis, 0x200, []byte{0x00, 0x64, 0xff, 0x38})
		line, err := encodeSLCAN(msg)
		So(err, ShouldBeNil)
		So(string(line), ShouldEqual, "t200400640FF38")

		Convey("and decode back", func() {
			back, ok, err := decodeSLCAN(line, BusChassis)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(back, ShouldResemble, msg)
		})
	})

	Convey("extended frames encode as T lines", t, func() {
		msg := Frame{ID: 0x18ff50e5, Extended: true}
		line, _ := encodeSLCAN(msg)
		So(string(line), ShouldEqual, "T18FF50E50")

		Convey("and a small extended identifier survives the round trip", func() {
			back, ok, err := decodeSLCAN([]byte("T0000020180102030405060708"), BusChassis)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(back.ID, ShouldEqual, uint32(0x201))
			So(back.Extended, ShouldBeTrue)

			line, _ := encodeSLCAN(back)
			So(string(line), ShouldEqual, "T0000020180102030405060708")
		})
	})

	Convey("acks and bells are not frames", t, func() {
		for _, l := range []string{"", "z", "Z", "\a"} {
			_, ok, err := decodeSLCAN([]byte(l), BusChassis)
			So(ok, ShouldBeFalse)
			So(err, ShouldBeNil)
		}
	})

	Convey("truncated lines are errors", t, func() {
		for _, l := range []string{"t20", "t2014001", "t20X1AA", "t2019"} {
			_, ok, err := decodeSLCAN([]byte(l), BusChassis)
			So(ok, ShouldBeFalse)
			So(err, ShouldEqual, errSLCANLine)
		}
	})
}

func TestSLCANBus(t *testing.T) {
	Convey("bus configures the adapter and delivers frames", t, func() {
		r, w := io.Pipe()
		port := &testPort{PipeReader: r}

		bus, err := newSLCANBus(port, 1000000, BusGimbal)
		So(err, ShouldBeNil)
		So(port.Written(), ShouldEqual, "C\rS8\rO\r")

		rx := make(chan Frame, 4)
		bus.AddListener(rx)

		go func() {
			w.Write([]byte("z\rt2058"))
			w.Write([]byte("1F40000A00001E00\r"))
		}()

		var msg Frame
		select {
		case msg = <-rx:
		case <-time.After(time.Second):
		}
		So(msg.ID, ShouldEqual, uint32(0x205))
		So(msg.Bus, ShouldEqual, BusGimbal)
		So(msg.Payload(), ShouldResemble, []byte{0x1f, 0x40, 0x00, 0x0a, 0x00, 0x00, 0x1e, 0x00})

		Convey("runaway input without line ends is discarded", func() {
			go func() {
				w.Write(bytes.Repeat([]byte("x"), 100))
				w.Write([]byte("t2018000102030405060708\r"))
			}()

			select {
			case msg = <-rx:
			case <-time.After(time.Second):
			}
			So(msg.ID, ShouldEqual, uint32(0x201))
			So(msg.Payload(), ShouldResemble, []byte{0, 1, 2, 3, 4, 5, 6, 7})
		})

		Convey("sends are written as lines", func() {
			out, _ := NewFrame(BusGimbal, 0x1ff, []byte{0, 1})
			So(bus.SendMsg(out), ShouldBeNil)
			So(port.Written(), ShouldEndWith, "t1FF20001\r")
		})

		Convey("close shuts the channel", func() {
			So(bus.Close(), ShouldBeNil)
			So(port.Written(), ShouldEndWith, "C\r")
			out, _ := NewFrame(BusGimbal, 0x1ff, nil)
			So(bus.SendMsg(out), ShouldEqual, ERR_BUS_CLOSED)
		})

		Reset(func() {
			bus.Close()
		})
	})

	Convey("unknown bitrates are rejected", t, func() {
		r, _ := io.Pipe()
		_, err := newSLCANBus(&testPort{PipeReader: r}, 42, BusChassis)
		So(err, ShouldNotBeNil)
	})
}
