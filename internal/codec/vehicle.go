package codec

import (
	"sort"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"GroundLink/internal/models"
)

// VTOL type codes. Their names moved between dialect revisions.
const (
	mavTypeVtolFirst common.MAV_TYPE = 19
	mavTypeVtolLast  common.MAV_TYPE = 25
)

// VehicleTypeFromMav maps HEARTBEAT.type to a vehicle kind.
func VehicleTypeFromMav(t common.MAV_TYPE) models.VehicleType {
	switch t {
	case common.MAV_TYPE_FIXED_WING, common.MAV_TYPE_KITE, common.MAV_TYPE_FLAPPING_WING:
		return models.VehicleTypeFixedWing
	case common.MAV_TYPE_TRICOPTER, common.MAV_TYPE_QUADROTOR, common.MAV_TYPE_HEXAROTOR, common.MAV_TYPE_OCTOROTOR:
		return models.VehicleTypeCopter
	case common.MAV_TYPE_COAXIAL, common.MAV_TYPE_HELICOPTER:
		return models.VehicleTypeRotaryWing
	case common.MAV_TYPE_AIRSHIP, common.MAV_TYPE_FREE_BALLOON:
		return models.VehicleTypeAirship
	}
	if t >= mavTypeVtolFirst && t <= mavTypeVtolLast {
		return models.VehicleTypeVtol
	}
	return models.VehicleTypeUnknown
}

// VehicleStateFromMav maps HEARTBEAT.system_status. Unknown codes read as init.
func VehicleStateFromMav(s common.MAV_STATE) models.VehicleState {
	switch s {
	case common.MAV_STATE_BOOT:
		return models.VehicleStateBoot
	case common.MAV_STATE_CALIBRATING:
		return models.VehicleStateCalibrating
	case common.MAV_STATE_STANDBY:
		return models.VehicleStateStandby
	case common.MAV_STATE_ACTIVE:
		return models.VehicleStateActive
	case common.MAV_STATE_CRITICAL:
		return models.VehicleStateCritical
	case common.MAV_STATE_EMERGENCY:
		return models.VehicleStateEmergency
	case common.MAV_STATE_POWEROFF:
		return models.VehicleStatePowerOff
	case common.MAV_STATE_FLIGHT_TERMINATION:
		return models.VehicleStateFlightTermination
	}
	return models.VehicleStateInit
}

// ModeTable maps custom_mode codes to symbolic modes. Tables are one to one.
type ModeTable map[uint32]models.VehicleMode

// Mode returns the symbolic mode for code, ModeNone when unknown.
func (t ModeTable) Mode(code uint32) models.VehicleMode {
	if mode, ok := t[code]; ok {
		return mode
	}
	return models.ModeNone
}

// Code is the inverse of Mode.
func (t ModeTable) Code(mode models.VehicleMode) (uint32, bool) {
	for code, m := range t {
		if m == mode {
			return code, true
		}
	}
	return 0, false
}

// Modes lists the table contents ordered by code.
func (t ModeTable) Modes() []models.VehicleMode {
	codes := make([]uint32, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	out := make([]models.VehicleMode, 0, len(codes))
	for _, code := range codes {
		out = append(out, t[code])
	}
	return out
}

// PlaneModes is the ArduPlane custom mode table.
var PlaneModes = ModeTable{
	0:  models.ModeManual,
	1:  models.ModeCircle,
	2:  models.ModeStabilize,
	3:  models.ModeTraining,
	4:  models.ModeAcro,
	5:  models.ModeFBWA,
	6:  models.ModeFBWB,
	7:  models.ModeCruise,
	8:  models.ModeAutotune,
	10: models.ModeMission,
	11: models.ModeRTL,
	12: models.ModeLoiter,
	13: models.ModeTakeoff,
	14: models.ModeAvoidance,
	15: models.ModeGuided,
	16: models.ModeInitializing,
	17: models.ModeQStabilize,
	18: models.ModeQHover,
	19: models.ModeQLoiter,
	20: models.ModeQLand,
	21: models.ModeQRTL,
	22: models.ModeQAutotune,
	23: models.ModeQAcro,
	24: models.ModeThermal,
	25: models.ModeLoiterQLand,
}

// CopterModes is the ArduCopter custom mode table.
var CopterModes = ModeTable{
	0:  models.ModeStabilize,
	1:  models.ModeAcro,
	2:  models.ModeAltHold,
	3:  models.ModeMission,
	4:  models.ModeGuided,
	5:  models.ModeLoiter,
	6:  models.ModeRTL,
	7:  models.ModeCircle,
	9:  models.ModeLand,
	11: models.ModeDrift,
	13: models.ModeSport,
	14: models.ModeFlip,
	15: models.ModeAutotune,
	16: models.ModePosHold,
	17: models.ModeBreak,
	18: models.ModeThrow,
	19: models.ModeAvoidance,
	20: models.ModeGuidedNoGPS,
	21: models.ModeSmartRTL,
	22: models.ModeFlowHold,
	23: models.ModeFollow,
	24: models.ModeZigZag,
	25: models.ModeSystemID,
	26: models.ModeAutorotate,
	27: models.ModeAutoRTL,
	28: models.ModeTurtle,
}

// ModesFor selects the mode table of an autopilot family and vehicle kind.
// Only ArduPilot tables are known; nil means none applies.
func ModesFor(autopilot common.MAV_AUTOPILOT, kind models.VehicleType) ModeTable {
	if autopilot != common.MAV_AUTOPILOT_ARDUPILOTMEGA {
		return nil
	}
	switch kind {
	case models.VehicleTypeCopter, models.VehicleTypeRotaryWing:
		return CopterModes
	case models.VehicleTypeFixedWing, models.VehicleTypeVtol:
		return PlaneModes
	}
	return nil
}

var fixedWingModes = []models.VehicleMode{
	models.ModeManual,
	models.ModeStabilize,
	models.ModeAcro,
	models.ModeFBWA,
	models.ModeFBWB,
	models.ModeCruise,
	models.ModeAutotune,
	models.ModeMission,
	models.ModeRTL,
	models.ModeLoiter,
	models.ModeCircle,
	models.ModeGuided,
	models.ModeTakeoff,
}

var copterModes = []models.VehicleMode{
	models.ModeStabilize,
	models.ModeAcro,
	models.ModeAltHold,
	models.ModeMission,
	models.ModeGuided,
	models.ModeLoiter,
	models.ModeRTL,
	models.ModeCircle,
	models.ModeLand,
	models.ModePosHold,
	models.ModeBreak,
	models.ModeSmartRTL,
	models.ModeFollow,
}

// AvailableModes is the user selectable subset for a vehicle kind.
func AvailableModes(kind models.VehicleType) []models.VehicleMode {
	var modes []models.VehicleMode
	switch kind {
	case models.VehicleTypeFixedWing:
		modes = fixedWingModes
	case models.VehicleTypeVtol:
		modes = append(append(modes, fixedWingModes...),
			models.ModeQStabilize, models.ModeQHover, models.ModeQLoiter, models.ModeQLand, models.ModeQRTL)
		return modes
	case models.VehicleTypeCopter, models.VehicleTypeRotaryWing:
		modes = copterModes
	default:
		return []models.VehicleMode{}
	}
	return append([]models.VehicleMode(nil), modes...)
}

// IsArmed reads the SAFETY_ARMED flag of HEARTBEAT.base_mode.
func IsArmed(baseMode common.MAV_MODE_FLAG) bool {
	return baseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
}
