package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/CodedInternet/gorobomotor/onboard"
	deverrors "github.com/CodedInternet/gorobomotor/onboard/errors"
	"github.com/CodedInternet/gorobomotor/onboard/hardware"
	"github.com/CodedInternet/gorobomotor/onboard/pid"
	"github.com/asdine/storm/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

//---
// Error payloads
//---

type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(status int, err error) render.Renderer {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
	}
	if err != nil {
		resp.ErrorText = err.Error()
	}
	return resp
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

func ErrInvalidRequest(err error) render.Renderer {
	return errResponse(http.StatusBadRequest, err)
}

func ErrUnauthorized(err error) render.Renderer {
	return errResponse(http.StatusUnauthorized, err)
}

func ErrPermissionDenied(err error) render.Renderer {
	return errResponse(http.StatusForbidden, err)
}

func ErrRender(err error) render.Renderer {
	glog.Errorf("api: %v", err)
	return errResponse(http.StatusInternalServerError, err)
}

func ErrUnavailable(err error) render.Renderer {
	return errResponse(http.StatusServiceUnavailable, err)
}

// errMotor picks the status for an error returned by the robot.
func errMotor(err error) render.Renderer {
	switch errors.Cause(err).(type) {
	case deverrors.UnknownMotorError:
		return errResponse(http.StatusNotFound, err)
	case deverrors.InvalidArgumentError:
		return ErrInvalidRequest(err)
	}
	if errors.Cause(err) == deverrors.ErrSlotOutOfRange {
		return errResponse(http.StatusNotFound, err)
	}
	return ErrRender(err)
}

//---
// Request payloads
//---

type SetpointPayload struct {
	Value *float32 `json:"value"`
}

func (p *SetpointPayload) Bind(r *http.Request) error {
	if p.Value == nil {
		return errors.New("value is required")
	}
	return nil
}

type TuningPayload struct {
	Gains  pid.Gains  `json:"gains"`
	Limits pid.Limits `json:"limits"`
}

// Bind leaves range checks to Robot.Retune so the shell gets the same ones.
func (p *TuningPayload) Bind(r *http.Request) error {
	return nil
}

type ChassisPayload struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	WZ float64 `json:"wz"`
}

func (p *ChassisPayload) Bind(r *http.Request) error {
	return nil
}

//---
// Persisted tunings
//---

// Tuning is an operator override of a motor's configured gains and limits.
type Tuning struct {
	Motor   string `storm:"id"`
	Gains   pid.Gains
	Limits  pid.Limits
	Updated time.Time
}

// applyTunings retunes the robot with every tuning saved in db.
func applyTunings(db *storm.DB, robot *onboard.Robot) error {
	var tunings []Tuning
	if err := db.All(&tunings); err != nil {
		return errors.Wrap(err, "unable to load tunings")
	}

	for _, t := range tunings {
		if err := robot.Retune(t.Motor, t.Gains, t.Limits); err != nil {
			glog.Warningf("api: skipping saved tuning for %s: %v", t.Motor, err)
			continue
		}
		glog.Infof("api: applied saved tuning for %s", t.Motor)
	}
	return nil
}

//---
// Views
//---

func motorState(r *http.Request) (onboard.MotorState, bool) {
	slot, ok := hardware.SlotByName(chi.URLParam(r, "motor"))
	if !ok {
		return onboard.MotorState{}, false
	}
	return ENV.Robot.State().Motors[slot], true
}

// GetSlot returns raw telemetry by slot index.
func GetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(errors.Wrap(err, "slot")))
		return
	}

	m, err := ENV.Robot.Measurement(slot)
	if err != nil {
		render.Render(w, r, errMotor(err))
		return
	}
	render.JSON(w, r, m)
}

func ListMotors(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Robot.State())
}

func GetMotor(w http.ResponseWriter, r *http.Request) {
	state, ok := motorState(r)
	if !ok {
		render.Render(w, r, ErrNotFound)
		return
	}
	render.JSON(w, r, state)
}

func PutSetpoint(w http.ResponseWriter, r *http.Request) {
	data := &SetpointPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	name := chi.URLParam(r, "motor")
	if err := ENV.Robot.SetSetpoint(name, *data.Value); err != nil {
		render.Render(w, r, errMotor(err))
		return
	}

	state, _ := motorState(r)
	render.JSON(w, r, state)
}

func GetPID(w http.ResponseWriter, r *http.Request) {
	state, ok := motorState(r)
	if !ok || state.PID == nil {
		render.Render(w, r, ErrNotFound)
		return
	}
	render.JSON(w, r, state.PID)
}

func PutPID(w http.ResponseWriter, r *http.Request) {
	data := &TuningPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	name := chi.URLParam(r, "motor")
	if err := ENV.Robot.Retune(name, data.Gains, data.Limits); err != nil {
		render.Render(w, r, errMotor(err))
		return
	}

	tuning := &Tuning{Motor: name, Gains: data.Gains, Limits: data.Limits, Updated: time.Now().UTC()}
	if err := ENV.DB.Save(tuning); err != nil {
		render.Render(w, r, ErrRender(errors.Wrapf(err, "unable to save tuning for %s", name)))
		return
	}

	state, _ := motorState(r)
	render.JSON(w, r, state.PID)
}

// DeletePID forgets a saved tuning. The running controller keeps its gains until restart.
func DeletePID(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "motor")
	if err := ENV.DB.DeleteStruct(&Tuning{Motor: name}); err != nil {
		if err == storm.ErrNotFound {
			render.Render(w, r, ErrNotFound)
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}
	render.NoContent(w, r)
}

func PostChassis(w http.ResponseWriter, r *http.Request) {
	data := &ChassisPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if err := ENV.Robot.SetChassis(data.VX, data.VY, data.WZ); err != nil {
		if _, ok := errors.Cause(err).(deverrors.InvalidArgumentError); ok {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
		render.Render(w, r, ErrUnavailable(err))
		return
	}
	render.JSON(w, r, ENV.Robot.State())
}

func PostStop(w http.ResponseWriter, r *http.Request) {
	ENV.Robot.Stop()
	render.NoContent(w, r)
}

func PostResetIdentifiers(w http.ResponseWriter, r *http.Request) {
	if err := ENV.Robot.ResetIdentifiers(); err != nil {
		render.Render(w, r, ErrUnavailable(err))
		return
	}
	glog.Infof("api: motor identifier reset sent")
	render.NoContent(w, r)
}

// apiRoutes mounts the robot endpoints. Every route requires a valid token.
func apiRoutes(r chi.Router) {
	r.Post("/login", Login)

	r.Group(func(r chi.Router) {
		r.Use(ValidateJWT)

		r.Get("/refresh_token", JWTRefresh)

		r.Get("/motors", ListMotors)
		r.Route("/motors/{motor}", func(r chi.Router) {
			r.Get("/", GetMotor)
			r.Put("/setpoint", PutSetpoint)
			r.Get("/pid", GetPID)
			r.Put("/pid", PutPID)
			r.Delete("/pid", DeletePID)
		})

		r.Get("/slots/{slot}", GetSlot)

		r.Post("/chassis", PostChassis)
		r.Post("/stop", PostStop)
		r.Post("/reset_ids", PostResetIdentifiers)
	})
}
