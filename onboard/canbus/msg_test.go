package canbus

import (
	. "github.com/smartystreets/goconvey/convey"
	"testing"
)

func TestNewFrame(t *testing.T) {
	Convey("frames copy their payload", t, func() {
		data := []byte{1, 2, 3}
		msg, err := NewFrame(BusChassis, 0x201, data)
		So(err, ShouldBeNil)
		data[0] = 9

		So(msg.DLC, ShouldEqual, uint8(3))
		So(msg.Payload(), ShouldResemble, []byte{1, 2, 3})
		So(msg.Extended, ShouldBeFalse)
		So(msg.String(), ShouldEqual, "chassis 0x201 [3] 01 02 03")
	})

	Convey("data length error is handled correctly", t, func() {
		_, err := NewFrame(BusGimbal, 0x1ff, make([]byte, 8))
		So(err, ShouldBeNil)

		_, err = NewFrame(BusGimbal, 0x1ff, make([]byte, 9))
		So(err, ShouldEqual, ERR_DATA_TOO_LONG)
	})

	Convey("extended frames are flagged, whatever their identifier", t, func() {
		msg, err := NewExtendedFrame(BusGimbal, 0x201, []byte{1})
		So(err, ShouldBeNil)
		So(msg.Extended, ShouldBeTrue)
		So(msg.ID, ShouldEqual, uint32(0x201))
		So(msg.String(), ShouldEqual, "gimbal 0x00000201 [1] 01")

		msg, _ = NewFrame(BusGimbal, 0x18ff50e5, nil)
		So(msg.Extended, ShouldBeFalse)
		So(msg.ID, ShouldEqual, uint32(0x0e5))

		So(BusID(7).String(), ShouldEqual, "bus7")
	})
}

func TestLoopbackBus(t *testing.T) {
	Convey("loopback records sends and delivers injected frames", t, func() {
		bus := NewLoopbackBus(BusGimbal)
		rx := make(chan Frame, 1)
		bus.AddListener(rx)

		var hooked Frame
		bus.OnSend = func(msg Frame) { hooked = msg }

		msg, _ := NewFrame(BusChassis, 0x200, []byte{0, 1})
		So(bus.SendMsg(msg), ShouldBeNil)
		So(hooked.Bus, ShouldEqual, BusGimbal)
		So(bus.Sent(), ShouldHaveLength, 1)

		bus.Inject(msg)
		got := <-rx
		So(got.ID, ShouldEqual, uint32(0x200))
		So(got.Bus, ShouldEqual, BusGimbal)

		Convey("a full listener does not block injection", func() {
			bus.Inject(msg)
			So(func() { bus.Inject(msg) }, ShouldNotPanic)
			So(len(rx), ShouldEqual, 1)
		})

		Convey("removed listeners get nothing more", func() {
			other := make(chan Frame, 1)
			bus.AddListener(other)
			So(bus.Listeners(), ShouldEqual, 2)

			bus.RemoveListener(rx)
			So(bus.Listeners(), ShouldEqual, 1)
			bus.Inject(msg)
			So(len(rx), ShouldEqual, 0)
			So(len(other), ShouldEqual, 1)

			bus.RemoveListener(rx)
			So(bus.Listeners(), ShouldEqual, 1)
		})

		Convey("closed bus refuses sends", func() {
			bus.Close()
			So(bus.SendMsg(msg), ShouldEqual, ERR_BUS_CLOSED)
			bus.Reset()
			So(bus.Sent(), ShouldBeEmpty)
		})
	})
}
