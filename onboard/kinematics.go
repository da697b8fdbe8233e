package onboard

import (
	"github.com/go-gl/mathgl/mgl64"
	. "math"
)

// Chassis converts body velocities into mecanum wheel speeds.
type Chassis struct {
	jacobian  []mgl64.Vec3 // one row per wheel, maps (vx, vy, wz) to wheel rad/s
	direction []float64
	gearRatio float64
}

func NewChassis(config ChassisConfig) (c *Chassis) {
	c = &Chassis{
		jacobian:  make([]mgl64.Vec3, len(config.Wheels)),
		direction: make([]float64, len(config.Wheels)),
		gearRatio: config.GearRatio,
	}
	if c.gearRatio == 0 {
		c.gearRatio = 1
	}

	r := config.WheelRadius
	if r == 0 {
		r = 1
	}

	for i, w := range config.Wheels {
		x, y := w.Position.X(), w.Position.Y()
		c.jacobian[i] = mgl64.Vec3{1, w.Roller, w.Roller*x - y}.Mul(1 / r)
		c.direction[i] = w.Direction
	}

	return
}

// WheelSpeeds returns each wheel's angular speed in rad/s for a body velocity of
// vx, vy (m/s) and wz (rad/s, counter clockwise).
func (c *Chassis) WheelSpeeds(vx, vy, wz float64) []float64 {
	v := mgl64.Vec3{vx, vy, wz}
	speeds := make([]float64, len(c.jacobian))
	for i, row := range c.jacobian {
		speeds[i] = row.Dot(v)
	}
	return speeds
}

// MotorRPM is WheelSpeeds converted to motor shaft rpm, including gearing and mounting direction.
func (c *Chassis) MotorRPM(vx, vy, wz float64) []float64 {
	speeds := c.WheelSpeeds(vx, vy, wz)
	for i, s := range speeds {
		speeds[i] = s * c.gearRatio * 60 / (2 * Pi) * c.direction[i]
	}
	return speeds
}
