package errors

import (
	. "github.com/smartystreets/goconvey/convey"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	Convey("invalid argument names the operation", t, func() {
		err := InvalidArgumentError{Op: "pid.New", Reason: "unknown mode 7"}
		So(err.Error(), ShouldEqual, "invalid argument to pid.New: unknown mode 7")

		Convey("and falls back when the op is missing", func() {
			So(InvalidArgumentError{Reason: "x"}.Error(), ShouldContainSubstring, "UNKNOWN")
		})
	})

	Convey("malformed frame reports id and length", t, func() {
		err := MalformedFrameError{ID: 0x201, Length: 6}
		So(err.Error(), ShouldEqual, "malformed frame 0x201: payload length 6, want 8")
	})

	Convey("unknown motor and version errors", t, func() {
		So(UnknownMotorError{Name: "yaw"}.Error(), ShouldEqual, "no such motor yaw")
		So(UnsupportedVersionError{"2.0.0", "~1.0"}.Error(), ShouldContainSubstring, "require ~1.0")
	})
}
