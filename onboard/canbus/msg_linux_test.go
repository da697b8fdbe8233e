package canbus

import (
	"encoding/binary"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sys/unix"
	"testing"
)

func TestFrame_toByteArray(t *testing.T) {
	Convey("Standard frame format encodes correctly", t, func() {
		msg, _ := NewFrame(BusChassis, 0x123, []byte{1, 2, 3, 4, 5})
		raw, err := msg.toByteArray()
		So(err, ShouldBeNil)

		Convey("ID gets set correctly", func() {
			So(raw[0:4], ShouldResemble, []byte{0x23, 0x01, 0x00, 0x00})
		})

		Convey("Data length is correctly set", func() {
			So(raw[4], ShouldEqual, byte(5))
		})

		Convey("Data is copied over", func() {
			So(raw[8:], ShouldResemble, []byte{1, 2, 3, 4, 5, 0, 0, 0})
		})

		Convey("and parses back to the same frame", func() {
			back, ok := frameFromByteArray(raw, BusChassis)
			So(ok, ShouldBeTrue)
			So(back, ShouldResemble, msg)
		})
	})

	Convey("Extended frames carry the EFF flag", t, func() {
		msg := Frame{ID: 0x18ff50e5, Extended: true, DLC: 8}
		raw, _ := msg.toByteArray()
		So(raw[3]&0x80, ShouldEqual, byte(0x80))

		back, ok := frameFromByteArray(raw, BusGimbal)
		So(ok, ShouldBeTrue)
		So(back.ID, ShouldEqual, uint32(0x18ff50e5))
		So(back.Extended, ShouldBeTrue)
	})

	Convey("A small extended identifier stays extended", t, func() {
		raw := make([]byte, canFrameSize)
		binary.LittleEndian.PutUint32(raw[0:4], 0x201|unix.CAN_EFF_FLAG)
		raw[4] = 8

		msg, ok := frameFromByteArray(raw, BusChassis)
		So(ok, ShouldBeTrue)
		So(msg.ID, ShouldEqual, uint32(0x201))
		So(msg.Extended, ShouldBeTrue)

		back, err := msg.toByteArray()
		So(err, ShouldBeNil)
		So(back, ShouldResemble, raw)
	})

	Convey("Error and short frames are discarded", t, func() {
		raw := make([]byte, canFrameSize)
		raw[3] = byte(unix.CAN_ERR_FLAG >> 24)
		_, ok := frameFromByteArray(raw, BusChassis)
		So(ok, ShouldBeFalse)

		_, ok = frameFromByteArray(raw[:8], BusChassis)
		So(ok, ShouldBeFalse)
	})

	Convey("oversized DLC is rejected", t, func() {
		msg := Frame{ID: 0x200, DLC: 9}
		_, err := msg.toByteArray()
		So(err, ShouldEqual, ERR_DATA_TOO_LONG)
	})
}

func BenchmarkFrame_toByteArray(b *testing.B) {
	msg, _ := NewFrame(BusChassis, 0x200, []byte{0, 1, 2, 3, 4, 5, 6, 7})

	for n := 0; n < b.N; n++ {
		msg.toByteArray()
	}
}

func BenchmarkFrame_frameFromByteArray(b *testing.B) {
	msg, _ := NewFrame(BusChassis, 0x201, []byte{0, 1, 2, 3, 4, 5, 6, 7})
	raw, _ := msg.toByteArray()

	for n := 0; n < b.N; n++ {
		frameFromByteArray(raw, BusChassis)
	}
}
