package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard"
	"github.com/CodedInternet/gorobomotor/onboard/pid"
	"github.com/go-chi/chi/v5"
)

var testSim *onboard.Simulator

func testRobotConfig() *onboard.RobotConfig {
	return &onboard.RobotConfig{
		Version:         "1.0.0",
		Period:          time.Millisecond,
		LivenessTimeout: 50 * time.Millisecond,
		Buses: map[string]onboard.BusConfig{
			"chassis": {Driver: "sim"},
			"gimbal":  {Driver: "sim"},
		},
		Motors: map[string]onboard.MotorConfig{
			"drive1": {Gains: pid.Gains{Kp: 10}, Limits: pid.Limits{MaxOutput: 16000, MaxIntegral: 2000}},
			"yaw":    {Mode: "position", Feedback: "encoder", Gains: pid.Gains{Kp: 2}, Limits: pid.Limits{MaxOutput: 30000}},
		},
	}
}

func TestMain(m *testing.M) {
	dir, err := ioutil.TempDir("", "gorobomotor")
	if err != nil {
		panic(err)
	}

	db, err := openDb(filepath.Join(dir, "test.db"))
	if err != nil {
		panic(err)
	}
	ENV.DB = db

	testSim = onboard.NewSimulator()
	ENV.Robot, err = onboard.NewRobot(testRobotConfig(), testSim.Opener)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func testRouter() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", apiRoutes)
	return r
}
