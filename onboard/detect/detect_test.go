package detect

import (
	. "github.com/smartystreets/goconvey/convey"
	"testing"
	"time"
)

func TestMonitor(t *testing.T) {
	Convey("keys come online when hooked and time out", t, func() {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		m := NewMonitor()
		m.Now = func() time.Time { return now }
		m.Register(1, "drive1", 100*time.Millisecond)
		m.Register(5, "yaw", 100*time.Millisecond)

		So(m.Online(1), ShouldBeFalse)
		So(m.Offline(), ShouldResemble, []int{1, 5})

		m.Hook(1)
		So(m.Online(1), ShouldBeTrue)
		So(m.Offline(), ShouldResemble, []int{5})

		seen, ok := m.LastSeen(1)
		So(ok, ShouldBeTrue)
		So(seen, ShouldEqual, now)

		Convey("and drop off after the timeout", func() {
			now = now.Add(150 * time.Millisecond)
			So(m.Online(1), ShouldBeFalse)
			So(m.Offline(), ShouldResemble, []int{1, 5})
		})

		Convey("unregistered keys are online once seen", func() {
			m.Hook(42)
			now = now.Add(time.Hour)
			So(m.Online(42), ShouldBeTrue)
			So(m.Offline(), ShouldNotContain, 42)
		})
	})
}
