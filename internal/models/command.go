package models

type ArmDisarm struct {
	Arm bool `json:"arm"`
}

type SetMode struct {
	Mode VehicleMode `json:"mode"`
}

// SetWaypoint makes the user route item Wpt (zero based) current.
type SetWaypoint struct {
	Wpt uint16 `json:"wpt"`
}

type NavTo struct {
	Position Geodetic `json:"position"`
}

type SetHome struct {
	Position Geodetic `json:"position"`
}

type ReturnToLaunch struct{}

type Takeoff struct {
	Altitude float32 `json:"altitude"`
}

type Land struct{}

type GoAround struct{}

type SetServo struct {
	Channel uint16 `json:"channel"`
	Pwm     uint16 `json:"pwm"`
}

// OverrideServos maps RC channel numbers (1..18) to PWM values.
type OverrideServos struct {
	Servos map[uint16]uint16 `json:"servos"`
}

type CalibrationType string

const (
	CalibrationGyro           CalibrationType = "gyro"
	CalibrationMagnetometer   CalibrationType = "magnetometer"
	CalibrationGroundPressure CalibrationType = "ground_pressure"
	CalibrationAirspeed       CalibrationType = "airspeed"
	CalibrationTemperature    CalibrationType = "temperature"
	CalibrationAccelerometer  CalibrationType = "accelerometer"
	CalibrationLevel          CalibrationType = "level"
)

type Calibrate struct {
	Type CalibrationType `json:"type"`
}

type GimbalControl struct {
	Pitch float32 `json:"pitch"`
	Yaw   float32 `json:"yaw"`
}

// Command is a closed set of vehicle commands. Exactly one field is set.
type Command struct {
	ArmDisarm      *ArmDisarm      `json:"arm_disarm,omitempty"`
	SetMode        *SetMode        `json:"set_mode,omitempty"`
	SetWaypoint    *SetWaypoint    `json:"set_waypoint,omitempty"`
	NavTo          *NavTo          `json:"nav_to,omitempty"`
	SetHome        *SetHome        `json:"set_home,omitempty"`
	ReturnToLaunch *ReturnToLaunch `json:"return_to_launch,omitempty"`
	Takeoff        *Takeoff        `json:"takeoff,omitempty"`
	Land           *Land           `json:"land,omitempty"`
	GoAround       *GoAround       `json:"go_around,omitempty"`
	SetServo       *SetServo       `json:"set_servo,omitempty"`
	OverrideServos *OverrideServos `json:"override_servos,omitempty"`
	Calibrate      *Calibrate      `json:"calibrate,omitempty"`
	GimbalControl  *GimbalControl  `json:"gimbal_control,omitempty"`
}

// Name returns the snake_case name of the set variant, or "empty".
func (c Command) Name() string {
	switch {
	case c.ArmDisarm != nil:
		return "arm_disarm"
	case c.SetMode != nil:
		return "set_mode"
	case c.SetWaypoint != nil:
		return "set_waypoint"
	case c.NavTo != nil:
		return "nav_to"
	case c.SetHome != nil:
		return "set_home"
	case c.ReturnToLaunch != nil:
		return "return_to_launch"
	case c.Takeoff != nil:
		return "takeoff"
	case c.Land != nil:
		return "land"
	case c.GoAround != nil:
		return "go_around"
	case c.SetServo != nil:
		return "set_servo"
	case c.OverrideServos != nil:
		return "override_servos"
	case c.Calibrate != nil:
		return "calibrate"
	case c.GimbalControl != nil:
		return "gimbal_control"
	}
	return "empty"
}

// Executor addresses a vehicle and optionally one of its payloads.
type Executor struct {
	VehicleID string `json:"vehicle_id"`
	PayloadID string `json:"payload_id,omitempty"`
}

type CommandStateKind string

const (
	CommandInitial     CommandStateKind = "initial"
	CommandSent        CommandStateKind = "sent"
	CommandInProgress  CommandStateKind = "in_progress"
	CommandAccepted    CommandStateKind = "accepted"
	CommandRejected    CommandStateKind = "rejected"
	CommandDenied      CommandStateKind = "denied"
	CommandUnsupported CommandStateKind = "unsupported"
	CommandFailed      CommandStateKind = "failed"
	CommandCanceled    CommandStateKind = "canceled"
)

// CommandState: Attempt is meaningful for sent, Progress for in_progress.
type CommandState struct {
	Kind     CommandStateKind `json:"kind"`
	Attempt  uint8            `json:"attempt,omitempty"`
	Progress uint8            `json:"progress,omitempty"`
}

// IsTerminal reports whether no further transition can happen.
func (s CommandState) IsTerminal() bool {
	switch s.Kind {
	case CommandInitial, CommandSent, CommandInProgress:
		return false
	}
	return true
}

type CommandExecution struct {
	ID       string       `json:"id"`
	Command  Command      `json:"command"`
	Executor Executor     `json:"executor"`
	State    CommandState `json:"state"`
}

func (c *CommandExecution) EntityID() string      { return c.ID }
func (c *CommandExecution) SetEntityID(id string) { c.ID = id }
