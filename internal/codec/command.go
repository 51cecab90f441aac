package codec

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	"GroundLink/internal/models"
)

var (
	// ErrUnsupported: the command has no wire form, or the requested mode
	// is absent from the vehicle's mode table.
	ErrUnsupported = errors.New("command not supported")
	// ErrModesUnknown: SetMode was requested before a mode table is known.
	ErrModesUnknown = errors.New("vehicle modes not known yet")
)

// rcChannels is the number of channels in RC_CHANNELS_OVERRIDE.
const rcChannels = 18

// rcIgnore leaves channels 1..8 untouched; channels 9..18 use 0.
const rcIgnore = math.MaxUint16

// Encoded is one outbound command frame. AckCmd is the COMMAND_ACK command
// code expected for it, valid only when HasAck is set.
type Encoded struct {
	Message message.Message
	AckCmd  uint16
	HasAck  bool
}

func commandLong(target, attempt uint8, cmd common.MAV_CMD, params ...float32) Encoded {
	var p [7]float32
	copy(p[:], params)
	return Encoded{
		Message: &common.MessageCommandLong{
			TargetSystem:    target,
			TargetComponent: TargetComponent,
			Command:         cmd,
			Confirmation:    confirmation(attempt),
			Param1:          p[0],
			Param2:          p[1],
			Param3:          p[2],
			Param4:          p[3],
			Param5:          p[4],
			Param6:          p[5],
			Param7:          p[6],
		},
		AckCmd: uint16(cmd),
		HasAck: true,
	}
}

func commandInt(target uint8, cmd common.MAV_CMD, pos models.Geodetic, params ...float32) Encoded {
	var p [4]float32
	copy(p[:], params)
	frame, x, y, z := EncodePosition(pos)
	return Encoded{
		Message: &common.MessageCommandInt{
			TargetSystem:    target,
			TargetComponent: TargetComponent,
			Frame:           frame,
			Command:         cmd,
			Param1:          p[0],
			Param2:          p[1],
			Param3:          p[2],
			Param4:          p[3],
			X:               x,
			Y:               y,
			Z:               z,
		},
		AckCmd: uint16(cmd),
		HasAck: true,
	}
}

// confirmation is 0 on the first transmission and counts resends after.
func confirmation(attempt uint8) uint8 {
	if attempt == 0 {
		return 0
	}
	return attempt - 1
}

// EncodeCommand builds the frame for one send attempt (1 based) of cmd to
// system target. modes resolves SetMode and may be nil for other commands.
func EncodeCommand(cmd models.Command, target, attempt uint8, modes ModeTable) (Encoded, error) {
	switch {
	case cmd.ArmDisarm != nil:
		return commandLong(target, attempt, common.MAV_CMD_COMPONENT_ARM_DISARM, encodeBool(cmd.ArmDisarm.Arm)), nil

	case cmd.SetMode != nil:
		if len(modes) == 0 {
			return Encoded{}, ErrModesUnknown
		}
		code, ok := modes.Code(cmd.SetMode.Mode)
		if !ok {
			return Encoded{}, errors.Wrapf(ErrUnsupported, "mode %s", cmd.SetMode.Mode)
		}
		return commandLong(target, attempt, common.MAV_CMD_DO_SET_MODE,
			float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(code)), nil

	case cmd.SetWaypoint != nil:
		return commandLong(target, attempt, common.MAV_CMD_DO_SET_MISSION_CURRENT, float32(cmd.SetWaypoint.Wpt)+1), nil

	case cmd.NavTo != nil:
		// default ground speed, switch to guided, keep current yaw
		return commandInt(target, common.MAV_CMD_DO_REPOSITION, cmd.NavTo.Position,
			-1, 1, 0, float32(math.NaN())), nil

	case cmd.SetHome != nil:
		return commandInt(target, common.MAV_CMD_DO_SET_HOME, cmd.SetHome.Position, 0), nil

	case cmd.ReturnToLaunch != nil:
		return commandLong(target, attempt, common.MAV_CMD_NAV_RETURN_TO_LAUNCH), nil

	case cmd.Takeoff != nil:
		return commandLong(target, attempt, common.MAV_CMD_NAV_TAKEOFF, 0, 0, 0, 0, 0, 0, cmd.Takeoff.Altitude), nil

	case cmd.Land != nil:
		return commandLong(target, attempt, common.MAV_CMD_NAV_LAND), nil

	case cmd.GoAround != nil:
		return commandLong(target, attempt, common.MAV_CMD_DO_GO_AROUND), nil

	case cmd.SetServo != nil:
		return commandLong(target, attempt, common.MAV_CMD_DO_SET_SERVO,
			float32(cmd.SetServo.Channel), float32(cmd.SetServo.Pwm)), nil

	case cmd.OverrideServos != nil:
		return Encoded{Message: encodeOverride(target, cmd.OverrideServos.Servos)}, nil

	case cmd.Calibrate != nil:
		params, ok := calibrationParams(cmd.Calibrate.Type)
		if !ok {
			return Encoded{}, errors.Wrapf(ErrUnsupported, "calibration %s", cmd.Calibrate.Type)
		}
		return commandLong(target, attempt, common.MAV_CMD_PREFLIGHT_CALIBRATION, params[:]...), nil
	}

	return Encoded{}, errors.Wrapf(ErrUnsupported, "command %s", cmd.Name())
}

func calibrationParams(t models.CalibrationType) (p [7]float32, ok bool) {
	switch t {
	case models.CalibrationGyro:
		p[0] = 1
	case models.CalibrationMagnetometer:
		p[1] = 1
	case models.CalibrationGroundPressure:
		p[2] = 1
	case models.CalibrationAccelerometer:
		p[4] = 1
	case models.CalibrationLevel:
		p[4] = 2
	case models.CalibrationAirspeed:
		p[5] = 2
	case models.CalibrationTemperature:
		p[6] = 3
	default:
		return p, false
	}
	return p, true
}

func encodeOverride(target uint8, servos map[uint16]uint16) *common.MessageRcChannelsOverride {
	var ch [rcChannels]uint16
	for i := 0; i < 8; i++ {
		ch[i] = rcIgnore
	}
	for channel, pwm := range servos {
		if channel >= 1 && channel <= rcChannels {
			ch[channel-1] = pwm
		}
	}
	return &common.MessageRcChannelsOverride{
		TargetSystem:    target,
		TargetComponent: TargetComponent,
		Chan1Raw:        ch[0],
		Chan2Raw:        ch[1],
		Chan3Raw:        ch[2],
		Chan4Raw:        ch[3],
		Chan5Raw:        ch[4],
		Chan6Raw:        ch[5],
		Chan7Raw:        ch[6],
		Chan8Raw:        ch[7],
		Chan9Raw:        ch[8],
		Chan10Raw:       ch[9],
		Chan11Raw:       ch[10],
		Chan12Raw:       ch[11],
		Chan13Raw:       ch[12],
		Chan14Raw:       ch[13],
		Chan15Raw:       ch[14],
		Chan16Raw:       ch[15],
		Chan17Raw:       ch[16],
		Chan18Raw:       ch[17],
	}
}

func decodeOverride(m *common.MessageRcChannelsOverride) map[uint16]uint16 {
	ch := [rcChannels]uint16{
		m.Chan1Raw, m.Chan2Raw, m.Chan3Raw, m.Chan4Raw, m.Chan5Raw, m.Chan6Raw,
		m.Chan7Raw, m.Chan8Raw, m.Chan9Raw, m.Chan10Raw, m.Chan11Raw, m.Chan12Raw,
		m.Chan13Raw, m.Chan14Raw, m.Chan15Raw, m.Chan16Raw, m.Chan17Raw, m.Chan18Raw,
	}
	servos := make(map[uint16]uint16)
	for i, v := range ch {
		if v == rcIgnore || (i >= 8 && v == 0) {
			continue
		}
		servos[uint16(i+1)] = v
	}
	return servos
}

// DecodeCommand maps an outbound command frame back to the domain command.
func DecodeCommand(msg message.Message, modes ModeTable) (models.Command, error) {
	switch m := msg.(type) {
	case *common.MessageCommandLong:
		return decodeCommandLong(m, modes)

	case *common.MessageCommandInt:
		pos := DecodePosition(m.Frame, m.X, m.Y, m.Z)
		switch m.Command {
		case common.MAV_CMD_DO_REPOSITION:
			return models.Command{NavTo: &models.NavTo{Position: pos}}, nil
		case common.MAV_CMD_DO_SET_HOME:
			return models.Command{SetHome: &models.SetHome{Position: pos}}, nil
		}
		return models.Command{}, errors.Wrapf(ErrUnsupported, "COMMAND_INT %d", m.Command)

	case *common.MessageRcChannelsOverride:
		return models.Command{OverrideServos: &models.OverrideServos{Servos: decodeOverride(m)}}, nil
	}
	return models.Command{}, errors.Wrapf(ErrUnsupported, "message %s", MessageName(msg))
}

func decodeCommandLong(m *common.MessageCommandLong, modes ModeTable) (models.Command, error) {
	switch m.Command {
	case common.MAV_CMD_COMPONENT_ARM_DISARM:
		return models.Command{ArmDisarm: &models.ArmDisarm{Arm: m.Param1 == 1}}, nil
	case common.MAV_CMD_DO_SET_MODE:
		return models.Command{SetMode: &models.SetMode{Mode: modes.Mode(uint32(m.Param2))}}, nil
	case common.MAV_CMD_DO_SET_MISSION_CURRENT:
		return models.Command{SetWaypoint: &models.SetWaypoint{Wpt: uint16(m.Param1) - 1}}, nil
	case common.MAV_CMD_NAV_RETURN_TO_LAUNCH:
		return models.Command{ReturnToLaunch: &models.ReturnToLaunch{}}, nil
	case common.MAV_CMD_NAV_TAKEOFF:
		return models.Command{Takeoff: &models.Takeoff{Altitude: m.Param7}}, nil
	case common.MAV_CMD_NAV_LAND:
		return models.Command{Land: &models.Land{}}, nil
	case common.MAV_CMD_DO_GO_AROUND:
		return models.Command{GoAround: &models.GoAround{}}, nil
	case common.MAV_CMD_DO_SET_SERVO:
		return models.Command{SetServo: &models.SetServo{Channel: uint16(m.Param1), Pwm: uint16(m.Param2)}}, nil
	case common.MAV_CMD_PREFLIGHT_CALIBRATION:
		p := [7]float32{m.Param1, m.Param2, m.Param3, m.Param4, m.Param5, m.Param6, m.Param7}
		for _, t := range []models.CalibrationType{
			models.CalibrationGyro,
			models.CalibrationMagnetometer,
			models.CalibrationGroundPressure,
			models.CalibrationAccelerometer,
			models.CalibrationLevel,
			models.CalibrationAirspeed,
			models.CalibrationTemperature,
		} {
			if want, _ := calibrationParams(t); want == p {
				return models.Command{Calibrate: &models.Calibrate{Type: t}}, nil
			}
		}
	}
	return models.Command{}, errors.Wrapf(ErrUnsupported, "COMMAND_LONG %d", m.Command)
}

// CommandResult maps a COMMAND_ACK result to the execution state it leads
// to. IN_PROGRESS always starts at progress 0.
func CommandResult(result common.MAV_RESULT) models.CommandState {
	switch result {
	case common.MAV_RESULT_ACCEPTED:
		return models.CommandState{Kind: models.CommandAccepted}
	case common.MAV_RESULT_IN_PROGRESS:
		return models.CommandState{Kind: models.CommandInProgress}
	case common.MAV_RESULT_TEMPORARILY_REJECTED:
		return models.CommandState{Kind: models.CommandRejected}
	case common.MAV_RESULT_DENIED:
		return models.CommandState{Kind: models.CommandDenied}
	case common.MAV_RESULT_UNSUPPORTED:
		return models.CommandState{Kind: models.CommandUnsupported}
	case common.MAV_RESULT_CANCELLED:
		return models.CommandState{Kind: models.CommandCanceled}
	}
	return models.CommandState{Kind: models.CommandFailed}
}
