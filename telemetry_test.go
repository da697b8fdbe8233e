package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type fakePublisher struct {
	lock     sync.Mutex
	topics   []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return doneToken{}
}

func TestTelemetry(t *testing.T) {
	Convey("Given a telemetry fan out", t, func() {
		telemetry := NewTelemetry(ENV.Robot, time.Millisecond)

		Convey("nothing is marshalled without subscribers", func() {
			telemetry.broadcast()
			So(telemetry.Clients(), ShouldEqual, 0)
		})

		Convey("MQTT receives every update", func() {
			pub := &fakePublisher{}
			telemetry.PublishTo(pub, "robot/test")
			telemetry.broadcast()
			telemetry.broadcast()

			So(pub.topics, ShouldResemble, []string{"robot/test", "robot/test"})

			var state onboard.RobotState
			So(json.Unmarshal(pub.payloads[0], &state), ShouldBeNil)
			So(state.Motors, ShouldHaveLength, hardware.SlotCount)
		})

		Convey("websocket clients are streamed state", func() {
			server := httptest.NewServer(http.HandlerFunc(telemetry.Handler))
			defer server.Close()

			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			deadline := time.Now().Add(time.Second)
			for telemetry.Clients() == 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			So(telemetry.Clients(), ShouldEqual, 1)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go telemetry.Run(ctx)

			conn.SetReadDeadline(time.Now().Add(time.Second))
			_, msg, err := conn.ReadMessage()
			So(err, ShouldBeNil)

			var state onboard.RobotState
			So(json.Unmarshal(msg, &state), ShouldBeNil)
			So(state.Motors[hardware.SlotYaw].Name, ShouldEqual, "yaw")

			Convey("and forgotten when they leave", func() {
				conn.Close()
				deadline := time.Now().Add(time.Second)
				for telemetry.Clients() != 0 && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				So(telemetry.Clients(), ShouldEqual, 0)
			})
		})
	})
}
