// Package pid implements the two discrete PID recurrences used by the motor control loop.
//
// A Position controller is the textbook form: the integral term is accumulated across calls
// and clamped on its own before being summed into the output. A Delta controller is the
// incremental form: each call produces an increment which is added onto the previous output,
// so the output itself carries the controller's memory.
//
// Controllers are single owner. Compute, Clear and Retune must not be called concurrently on
// the same instance.
package pid

import (
	"fmt"
	"strings"

	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
)

type Mode int

const (
	ModePosition Mode = iota
	ModeDelta
)

func (m Mode) String() string {
	switch m {
	case ModePosition:
		return "position"
	case ModeDelta:
		return "delta"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names used in robot config files.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "position", "pos", "":
		return ModePosition, nil
	case "delta", "incremental":
		return ModeDelta, nil
	}
	return 0, deverrors.InvalidArgumentError{Op: "pid.ParseMode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

type Gains struct {
	Kp float32 `json:"kp" yaml:"kp"`
	Ki float32 `json:"ki" yaml:"ki"`
	Kd float32 `json:"kd" yaml:"kd"`
}

type Limits struct {
	MaxOutput   float32 `json:"max_out" yaml:"max_out"`
	MaxIntegral float32 `json:"max_iout" yaml:"max_iout"`
}

// Snapshot is a copy of everything a controller computed on its last call.
type Snapshot struct {
	Mode       Mode       `json:"-"`
	ModeName   string     `json:"mode"`
	Gains      Gains      `json:"gains"`
	Limits     Limits     `json:"limits"`
	Setpoint   float32    `json:"setpoint"`
	Feedback   float32    `json:"feedback"`
	Error      [3]float32 `json:"error"`
	Derivative [3]float32 `json:"dbuf"`
	P          float32    `json:"p"`
	I          float32    `json:"i"`
	D          float32    `json:"d"`
	Output     float32    `json:"out"`
}

type Controller interface {
	// Compute runs one control cycle and returns the clamped output.
	Compute(feedback, setpoint float32) float32
	Clear()
	Retune(gains Gains, limits Limits)
	Snapshot() Snapshot
	Mode() Mode
}

// New creates a controller of the requested mode with zeroed history.
func New(mode Mode, gains Gains, limits Limits) (Controller, error) {
	switch mode {
	case ModePosition:
		return NewPosition(gains, limits), nil
	case ModeDelta:
		return NewDelta(gains, limits), nil
	}
	return nil, deverrors.InvalidArgumentError{Op: "pid.New", Reason: fmt.Sprintf("unknown mode %d", int(mode))}
}

// limitMax saturates v to ±max.
func limitMax(v, max float32) float32 {
	if v > max {
		return max
	} else if v < -max {
		return -max
	}
	return v
}

// history holds the parts common to both recurrences.
type history struct {
	gains  Gains
	limits Limits

	setpoint, feedback float32
	err                [3]float32 // current, previous, previous-previous
	dbuf               [3]float32

	pOut, iOut, dOut, out float32
}

func (h *history) shiftError(feedback, setpoint float32) {
	h.err[2] = h.err[1]
	h.err[1] = h.err[0]
	h.setpoint = setpoint
	h.feedback = feedback
	h.err[0] = setpoint - feedback
}

func (h *history) shiftDerivative(d float32) {
	h.dbuf[2] = h.dbuf[1]
	h.dbuf[1] = h.dbuf[0]
	h.dbuf[0] = d
}

func (h *history) clear() {
	h.err = [3]float32{}
	h.dbuf = [3]float32{}
	h.pOut, h.iOut, h.dOut, h.out = 0, 0, 0, 0
	h.setpoint, h.feedback = 0, 0
}

func (h *history) snapshot(mode Mode) Snapshot {
	return Snapshot{
		Mode:       mode,
		ModeName:   mode.String(),
		Gains:      h.gains,
		Limits:     h.limits,
		Setpoint:   h.setpoint,
		Feedback:   h.feedback,
		Error:      h.err,
		Derivative: h.dbuf,
		P:          h.pOut,
		I:          h.iOut,
		D:          h.dOut,
		Output:     h.out,
	}
}

// Position is the standard PID with a persistent, separately clamped integral.
type Position struct {
	history
}

func NewPosition(gains Gains, limits Limits) *Position {
	return &Position{history{gains: gains, limits: limits}}
}

func (p *Position) Compute(feedback, setpoint float32) float32 {
	if p == nil {
		return 0
	}

	h := &p.history
	h.shiftError(feedback, setpoint)

	h.pOut = h.gains.Kp * h.err[0]
	h.iOut += h.gains.Ki * h.err[0]
	h.shiftDerivative(h.err[0] - h.err[1])
	h.dOut = h.gains.Kd * h.dbuf[0]
	h.iOut = limitMax(h.iOut, h.limits.MaxIntegral)

	h.out = limitMax(h.pOut+h.iOut+h.dOut, h.limits.MaxOutput)
	return h.out
}

func (p *Position) Clear() {
	if p == nil {
		return
	}
	p.clear()
}

// Retune replaces gains and limits and drops all history.
func (p *Position) Retune(gains Gains, limits Limits) {
	if p == nil {
		return
	}
	p.gains, p.limits = gains, limits
	p.clear()
}

func (p *Position) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return p.snapshot(ModePosition)
}

func (p *Position) Mode() Mode {
	return ModePosition
}

// Delta is the incremental PID. Its integral term is recomputed every call and its
// output is the running sum of per-call increments.
type Delta struct {
	history
}

func NewDelta(gains Gains, limits Limits) *Delta {
	return &Delta{history{gains: gains, limits: limits}}
}

func (d *Delta) Compute(feedback, setpoint float32) float32 {
	if d == nil {
		return 0
	}

	h := &d.history
	h.shiftError(feedback, setpoint)

	h.pOut = h.gains.Kp * (h.err[0] - h.err[1])
	h.iOut = h.gains.Ki * h.err[0]
	h.shiftDerivative(h.err[0] - 2.0*h.err[1] + h.err[2])
	h.dOut = h.gains.Kd * h.dbuf[0]

	h.out = limitMax(h.out+h.pOut+h.iOut+h.dOut, h.limits.MaxOutput)
	return h.out
}

func (d *Delta) Clear() {
	if d == nil {
		return
	}
	d.clear()
}

func (d *Delta) Retune(gains Gains, limits Limits) {
	if d == nil {
		return
	}
	d.gains, d.limits = gains, limits
	d.clear()
}

func (d *Delta) Snapshot() Snapshot {
	if d == nil {
		return Snapshot{}
	}
	return d.snapshot(ModeDelta)
}

func (d *Delta) Mode() Mode {
	return ModeDelta
}
