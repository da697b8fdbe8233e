package onboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard/canbus"
	"github.com/CodedInternet/gorobomotor/onboard/detect"
	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	"github.com/CodedInternet/gorobomotor/onboard/pid"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Feedback selects which part of a motor's telemetry closes its loop.
type Feedback int

const (
	FeedbackSpeed Feedback = iota
	FeedbackEncoder
	FeedbackDelta
)

func ParseFeedback(s string) (Feedback, error) {
	switch s {
	case "speed", "":
		return FeedbackSpeed, nil
	case "encoder":
		return FeedbackEncoder, nil
	case "delta":
		return FeedbackDelta, nil
	}
	return 0, deverrors.InvalidArgumentError{Op: "ParseFeedback", Reason: fmt.Sprintf("unknown feedback %q", s)}
}

func (f Feedback) value(m hardware.MotorMeasurement) float32 {
	switch f {
	case FeedbackEncoder:
		return float32(m.Encoder)
	case FeedbackDelta:
		return float32(m.EncoderDelta())
	default:
		return float32(m.SpeedRPM)
	}
}

type controlledMotor struct {
	name     string
	slot     int
	feedback Feedback
	ctrl     pid.Controller
	setpoint float32
	output   int16
}

// MotorState is everything known about one motor slot.
type MotorState struct {
	Name        string                    `json:"name"`
	Slot        int                       `json:"slot"`
	Online      bool                      `json:"online"`
	Measurement hardware.MotorMeasurement `json:"measurement"`
	Controlled  bool                      `json:"controlled"`
	Setpoint    float32                   `json:"setpoint"`
	Output      int16                     `json:"output"`
	PID         *pid.Snapshot             `json:"pid,omitempty"`
}

type RobotState struct {
	Time   time.Time    `json:"time"`
	Motors []MotorState `json:"motors"`
}

// Robot owns the buses, the motor channel and one controller per configured motor, and
// runs the fixed rate control loop over them.
type Robot struct {
	Monitor *detect.Monitor

	channel *hardware.MotorChannel

	config  *RobotConfig
	buses   map[canbus.BusID]canbus.CANBusInterface
	chassis *Chassis

	lock   sync.Mutex
	motors [hardware.SlotCount]*controlledMotor
}

// BusOpener creates the bus described by config for sel.
type BusOpener func(sel canbus.BusID, config BusConfig) (canbus.CANBusInterface, error)

// OpenBus is the default BusOpener. The sim driver must be served by a Simulator opener instead.
func OpenBus(sel canbus.BusID, config BusConfig) (canbus.CANBusInterface, error) {
	switch config.Driver {
	case "socketcan", "":
		return canbus.NewCANBus(config.Interface, sel)
	case "slcan":
		return canbus.NewSLCANBus(config.Interface, config.Bitrate, sel)
	}
	return nil, errors.Errorf("unknown bus driver %q", config.Driver)
}

// Opener serves every bus from the simulator regardless of driver.
func (s *Simulator) Opener(sel canbus.BusID, config BusConfig) (canbus.CANBusInterface, error) {
	bus, ok := s.buses[sel]
	if !ok {
		return nil, errors.Errorf("simulator has no %s bus", sel)
	}
	return bus, nil
}

func busID(name string) (canbus.BusID, error) {
	switch name {
	case canbus.BusChassis.String():
		return canbus.BusChassis, nil
	case canbus.BusGimbal.String():
		return canbus.BusGimbal, nil
	}
	return 0, errors.Errorf("unknown bus %q", name)
}

func NewRobot(config *RobotConfig, open BusOpener) (r *Robot, err error) {
	r = &Robot{
		Monitor: detect.NewMonitor(),
		config:  config,
		buses:   make(map[canbus.BusID]canbus.CANBusInterface),
	}
	r.channel = hardware.NewMotorChannel(hardware.NewMotorSlotTable(), r.Monitor, config.Channel)

	for slot := 0; slot < hardware.SlotCount; slot++ {
		if slot < hardware.SlotAux1 || config.Channel.NotifyAuxiliary {
			r.Monitor.Register(hardware.LivenessBase+slot, hardware.SlotName(slot), config.LivenessTimeout)
		}
	}

	for name, conf := range config.Motors {
		slot, ok := hardware.SlotByName(name)
		if !ok {
			return nil, deverrors.UnknownMotorError{Name: name}
		}
		mode, err := pid.ParseMode(conf.Mode)
		if err != nil {
			return nil, err
		}
		feedback, err := ParseFeedback(conf.Feedback)
		if err != nil {
			return nil, err
		}
		ctrl, err := pid.New(mode, conf.Gains, conf.Limits)
		if err != nil {
			return nil, err
		}
		r.motors[slot] = &controlledMotor{
			name:     name,
			slot:     slot,
			feedback: feedback,
			ctrl:     ctrl,
		}
	}

	if len(config.Chassis.Wheels) == 4 {
		r.chassis = NewChassis(config.Chassis)
	}

	for name, conf := range config.Buses {
		sel, err := busID(name)
		if err != nil {
			r.Close()
			return nil, err
		}

		bus, err := open(sel, conf)
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "unable to open %s bus", name)
		}
		r.buses[sel] = bus
		r.channel.Attach(sel, bus)
	}

	return r, nil
}

// Run listens on every bus and steps the control loop at the configured period until ctx is done.
func (r *Robot) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, bus := range r.buses {
		wg.Add(1)
		go func(bus canbus.CANBusInterface) {
			defer wg.Done()
			r.channel.Listen(ctx, bus)
		}(bus)
	}

	ticker := time.NewTicker(r.config.Period)
	defer ticker.Stop()
	health := time.NewTicker(time.Second)
	defer health.Stop()

	glog.Infof("robot: control loop running every %s", r.config.Period)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return

		case <-ticker.C:
			if err := r.Step(); err != nil {
				glog.Errorf("robot: step: %v", err)
			}

		case <-health.C:
			if offline := r.Monitor.Offline(); len(offline) > 0 {
				glog.V(1).Infof("robot: offline motors %v", offline)
			}
		}
	}
}

// saturate16 converts a controller output to the wire type without relying on
// out-of-range float conversion.
func saturate16(v float32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Step runs one control cycle: compute every configured controller from the latest
// telemetry and send the command groups for each attached bus.
func (r *Robot) Step() error {
	var out [hardware.SlotCount]int16

	r.lock.Lock()
	for _, m := range r.motors {
		if m == nil {
			continue
		}
		meas, _ := r.channel.Lookup(m.slot)
		fb := m.feedback.value(meas)
		m.output = saturate16(m.ctrl.Compute(fb, m.setpoint))
		out[m.slot] = m.output
	}
	r.lock.Unlock()

	var frames []canbus.Frame
	if _, ok := r.buses[canbus.BusChassis]; ok {
		frames = append(frames, hardware.EncodeDriveGroup(out[hardware.SlotDrive1], out[hardware.SlotDrive2], out[hardware.SlotDrive3], out[hardware.SlotDrive4]))
	}
	if _, ok := r.buses[canbus.BusGimbal]; ok {
		frames = append(frames,
			hardware.EncodeGimbalGroup(out[hardware.SlotYaw], out[hardware.SlotPitch], out[hardware.SlotFeeder], 0),
			hardware.EncodeAuxGroup(out[hardware.SlotAux1], out[hardware.SlotAux2], 0, 0),
		)
	}

	var err error
	for _, msg := range frames {
		err = multierr.Append(err, r.channel.Send(msg))
	}
	return err
}

func (r *Robot) motor(name string) (*controlledMotor, error) {
	slot, ok := hardware.SlotByName(name)
	if !ok || r.motors[slot] == nil {
		return nil, deverrors.UnknownMotorError{Name: name}
	}
	return r.motors[slot], nil
}

// MotorNames lists the motors with a controller, in slot order.
func (r *Robot) MotorNames() (names []string) {
	for _, m := range r.motors {
		if m != nil {
			names = append(names, m.name)
		}
	}
	return
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validateTuning(gains pid.Gains, limits pid.Limits) error {
	if !finite(float64(gains.Kp), float64(gains.Ki), float64(gains.Kd), float64(limits.MaxOutput), float64(limits.MaxIntegral)) {
		return deverrors.InvalidArgumentError{Op: "Retune", Reason: "gains and limits must be finite"}
	}
	if limits.MaxOutput < 0 || limits.MaxIntegral < 0 {
		return deverrors.InvalidArgumentError{Op: "Retune", Reason: "limits must not be negative"}
	}
	return nil
}

// SetSetpoint sets a motor's target. Non-finite values are refused.
func (r *Robot) SetSetpoint(name string, value float32) error {
	if !finite(float64(value)) {
		return deverrors.InvalidArgumentError{Op: "SetSetpoint", Reason: fmt.Sprintf("setpoint %v is not finite", value)}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	m, err := r.motor(name)
	if err != nil {
		return err
	}
	m.setpoint = value
	return nil
}

// SetChassis sets the drive motor setpoints, in rpm, for a body velocity.
func (r *Robot) SetChassis(vx, vy, wz float64) error {
	if !finite(vx, vy, wz) {
		return deverrors.InvalidArgumentError{Op: "SetChassis", Reason: "velocities must be finite"}
	}
	if r.chassis == nil {
		return errors.New("no chassis configured")
	}

	rpm := r.chassis.MotorRPM(vx, vy, wz)

	r.lock.Lock()
	defer r.lock.Unlock()
	for i, v := range rpm {
		m := r.motors[hardware.SlotDrive1+i]
		if m == nil {
			return deverrors.UnknownMotorError{Name: hardware.SlotName(hardware.SlotDrive1 + i)}
		}
		m.setpoint = float32(v)
	}
	return nil
}

// Retune swaps gains and limits on a motor's controller and clears its history.
func (r *Robot) Retune(name string, gains pid.Gains, limits pid.Limits) error {
	if err := validateTuning(gains, limits); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	m, err := r.motor(name)
	if err != nil {
		return err
	}
	m.ctrl.Retune(gains, limits)
	glog.Infof("robot: retuned %s to %+v %+v", name, gains, limits)
	return nil
}

// Stop zeroes every setpoint and clears all controller history.
func (r *Robot) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, m := range r.motors {
		if m != nil {
			m.setpoint = 0
			m.ctrl.Clear()
		}
	}
}

func (r *Robot) ResetIdentifiers() error {
	return r.channel.Send(hardware.EncodeResetIdentifiers())
}

// SendSingle commands one channel of the auxiliary group directly, bypassing the controllers.
// The next control cycle overwrites it unless the aux motors have no controller.
func (r *Robot) SendSingle(value int16, channel int) error {
	msg, err := hardware.EncodeSingleChannel(value, channel)
	if err != nil {
		return err
	}
	return r.channel.Send(msg)
}

// Measurements is the read-only view of the latest motor telemetry.
func (r *Robot) Measurements() hardware.MeasurementReader {
	return r.channel
}

// Measurement returns the telemetry at slot. Out-of-range slots wrap unless the channel
// has strict slots, in which case they fail with ErrSlotOutOfRange.
func (r *Robot) Measurement(slot int) (hardware.MotorMeasurement, error) {
	m, ok := r.channel.Lookup(slot)
	if !ok {
		return m, deverrors.ErrSlotOutOfRange
	}
	return m, nil
}

func (r *Robot) State() RobotState {
	state := RobotState{
		Time:   time.Now(),
		Motors: make([]MotorState, hardware.SlotCount),
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for slot := range state.Motors {
		meas, _ := r.channel.Lookup(slot)
		s := MotorState{
			Name:        hardware.SlotName(slot),
			Slot:        slot,
			Online:      r.Monitor.Online(hardware.LivenessBase + slot),
			Measurement: meas,
		}
		if m := r.motors[slot]; m != nil {
			snap := m.ctrl.Snapshot()
			s.Controlled = true
			s.Setpoint = m.setpoint
			s.Output = m.output
			s.PID = &snap
		}
		state.Motors[slot] = s
	}
	return state
}

func (r *Robot) Close() error {
	var err error
	sels := make([]int, 0, len(r.buses))
	for sel := range r.buses {
		sels = append(sels, int(sel))
	}
	sort.Ints(sels)
	for _, sel := range sels {
		err = multierr.Append(err, r.buses[canbus.BusID(sel)].Close())
	}
	return err
}
