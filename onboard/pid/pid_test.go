package pid

import (
	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
	"testing"
)

const tolerance = 1e-4

func TestPosition(t *testing.T) {
	Convey("position controller accumulates and clamps the integral", t, func() {
		p := NewPosition(Gains{Kp: 2, Ki: 1, Kd: 0.5}, Limits{MaxOutput: 100, MaxIntegral: 15})

		out := p.Compute(0, 10)
		So(out, ShouldAlmostEqual, 35, tolerance) // 20 + 10 + 5
		s := p.Snapshot()
		So(s.I, ShouldAlmostEqual, 10, tolerance)
		So(s.Derivative[0], ShouldAlmostEqual, 10, tolerance)

		Convey("second call saturates the integral before summing", func() {
			out := p.Compute(0, 10)
			s := p.Snapshot()
			So(s.I, ShouldAlmostEqual, 15, tolerance)
			So(s.D, ShouldAlmostEqual, 0, tolerance)
			So(out, ShouldAlmostEqual, 35, tolerance)
			So(s.Derivative[1], ShouldAlmostEqual, 10, tolerance)
		})

		Convey("output never leaves ±max_out", func() {
			p.Retune(Gains{Kp: 50, Ki: 1, Kd: 0}, Limits{MaxOutput: 30, MaxIntegral: 15})
			So(p.Compute(0, 10), ShouldAlmostEqual, 30, tolerance)
			So(p.Compute(20, 0), ShouldAlmostEqual, -30, tolerance)
		})

		Convey("setpoint and feedback are recorded", func() {
			So(s.Setpoint, ShouldEqual, float32(10))
			So(s.Feedback, ShouldEqual, float32(0))
			So(s.ModeName, ShouldEqual, "position")
		})
	})

	Convey("error history keeps exactly three generations", t, func() {
		p := NewPosition(Gains{Kp: 1}, Limits{MaxOutput: 1000, MaxIntegral: 1000})
		p.Compute(0, 1)
		p.Compute(0, 2)
		p.Compute(0, 3)
		p.Compute(0, 4)
		So(p.Snapshot().Error, ShouldResemble, [3]float32{4, 3, 2})
	})
}

func TestDelta(t *testing.T) {
	Convey("delta controller sums increments", t, func() {
		d := NewDelta(Gains{Kp: 1, Ki: 0.5, Kd: 0.1}, Limits{MaxOutput: 1000})
		setpoints := []float32{10, 10, 10}
		feedback := []float32{0, 5, 8}

		want := []float32{16, 12, 10.2}
		for i := range setpoints {
			So(d.Compute(feedback[i], setpoints[i]), ShouldAlmostEqual, want[i], tolerance)
		}

		s := d.Snapshot()
		So(s.Error, ShouldResemble, [3]float32{2, 5, 10})
		// second difference over all three generations: 2 - 2*5 + 10
		So(s.Derivative[0], ShouldAlmostEqual, 2, tolerance)
		So(s.I, ShouldAlmostEqual, 1, tolerance)
		So(s.ModeName, ShouldEqual, "delta")
	})

	Convey("delta output clamps after accumulation", t, func() {
		d := NewDelta(Gains{Ki: 1}, Limits{MaxOutput: 25})
		So(d.Compute(0, 10), ShouldAlmostEqual, 10, tolerance)
		So(d.Compute(0, 10), ShouldAlmostEqual, 20, tolerance)
		So(d.Compute(0, 10), ShouldAlmostEqual, 25, tolerance)
		So(d.Compute(0, -100), ShouldAlmostEqual, -25, tolerance)
	})
}

func TestClear(t *testing.T) {
	for _, mode := range []Mode{ModePosition, ModeDelta} {
		Convey("clear resets history but not configuration for "+mode.String(), t, func() {
			gains := Gains{Kp: 1.5, Ki: 0.2, Kd: 0.05}
			limits := Limits{MaxOutput: 500, MaxIntegral: 50}
			c, err := New(mode, gains, limits)
			So(err, ShouldBeNil)

			first := c.Compute(3, 40)
			c.Compute(12, 40)
			c.Clear()

			s := c.Snapshot()
			So(s.Error, ShouldResemble, [3]float32{})
			So(s.Derivative, ShouldResemble, [3]float32{})
			So(s.Output, ShouldEqual, float32(0))
			So(s.P+s.I+s.D, ShouldEqual, float32(0))
			So(s.Setpoint, ShouldEqual, float32(0))
			So(s.Gains, ShouldResemble, gains)
			So(s.Limits, ShouldResemble, limits)
			So(c.Mode(), ShouldEqual, mode)

			So(c.Compute(3, 40), ShouldEqual, first)
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	Convey("unknown mode is rejected", t, func() {
		c, err := New(Mode(9), Gains{}, Limits{})
		So(c, ShouldBeNil)
		So(err, ShouldHaveSameTypeAs, deverrors.InvalidArgumentError{})

		_, err = ParseMode("bogus")
		So(err, ShouldNotBeNil)

		m, err := ParseMode("Delta")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ModeDelta)
	})

	Convey("absent controllers are no-ops", t, func() {
		var p *Position
		var d *Delta
		So(func() { p.Clear(); d.Clear() }, ShouldNotPanic)
		So(p.Compute(1, 2), ShouldEqual, float32(0))
		So(d.Compute(1, 2), ShouldEqual, float32(0))
		So(p.Snapshot(), ShouldResemble, Snapshot{})
	})
}

func BenchmarkPosition_Compute(b *testing.B) {
	p := NewPosition(Gains{Kp: 10, Ki: 0.1, Kd: 1}, Limits{MaxOutput: 16000, MaxIntegral: 2000})
	for n := 0; n < b.N; n++ {
		p.Compute(float32(n%500), 250)
	}
}
