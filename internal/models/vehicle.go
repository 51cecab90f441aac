// Package models holds the entities the protocol core reads from and writes
// to the document store. JSON tags double as CBOR keys and as the field
// names accepted by store SelectWhere.
package models

// GeodeticFrame tells how the altitude of a Geodetic is referenced.
type GeodeticFrame string

const (
	FrameNone          GeodeticFrame = "none"
	FrameAboveSeaLevel GeodeticFrame = "above_sea_level"
	FrameRelativeHome  GeodeticFrame = "relative_home"
	FrameAboveTerrain  GeodeticFrame = "above_terrain"
)

// Geodetic is a WGS-84 position in degrees with altitude in metres.
type Geodetic struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Altitude  float64       `json:"altitude"`
	Frame     GeodeticFrame `json:"frame"`
}

// VehicleType is the broad kind of a vehicle.
type VehicleType string

const (
	VehicleTypeUnknown    VehicleType = "unknown"
	VehicleTypeAuto       VehicleType = "auto"
	VehicleTypeFixedWing  VehicleType = "fixed_wing"
	VehicleTypeCopter     VehicleType = "copter"
	VehicleTypeRotaryWing VehicleType = "rotary_wing"
	VehicleTypeVtol       VehicleType = "vtol"
	VehicleTypeAirship    VehicleType = "airship"
)

// VehicleState is the lifecycle state reported in heartbeats.
type VehicleState string

const (
	VehicleStateInit              VehicleState = "init"
	VehicleStateBoot              VehicleState = "boot"
	VehicleStateCalibrating       VehicleState = "calibrating"
	VehicleStateStandby           VehicleState = "standby"
	VehicleStateActive            VehicleState = "active"
	VehicleStateCritical          VehicleState = "critical"
	VehicleStateEmergency         VehicleState = "emergency"
	VehicleStatePowerOff          VehicleState = "power_off"
	VehicleStateFlightTermination VehicleState = "flight_termination"
)

// VehicleMode is a symbolic flight mode.
type VehicleMode string

const (
	ModeNone         VehicleMode = "none"
	ModeManual       VehicleMode = "manual"
	ModeCircle       VehicleMode = "circle"
	ModeStabilize    VehicleMode = "stabilize"
	ModeTraining     VehicleMode = "training"
	ModeAcro         VehicleMode = "acro"
	ModeFBWA         VehicleMode = "fbwa"
	ModeFBWB         VehicleMode = "fbwb"
	ModeCruise       VehicleMode = "cruise"
	ModeAutotune     VehicleMode = "autotune"
	ModeMission      VehicleMode = "mission"
	ModeRTL          VehicleMode = "rtl"
	ModeLoiter       VehicleMode = "loiter"
	ModeTakeoff      VehicleMode = "takeoff"
	ModeAvoidance    VehicleMode = "avoidance"
	ModeGuided       VehicleMode = "guided"
	ModeInitializing VehicleMode = "initializing"
	ModeQStabilize   VehicleMode = "q_stabilize"
	ModeQHover       VehicleMode = "q_hover"
	ModeQLoiter      VehicleMode = "q_loiter"
	ModeQLand        VehicleMode = "q_land"
	ModeQRTL         VehicleMode = "q_rtl"
	ModeQAutotune    VehicleMode = "q_autotune"
	ModeQAcro        VehicleMode = "q_acro"
	ModeThermal      VehicleMode = "thermal"
	ModeLoiterQLand  VehicleMode = "loiter_q_land"
	ModeAltHold      VehicleMode = "alt_hold"
	ModeLand         VehicleMode = "land"
	ModeDrift        VehicleMode = "drift"
	ModeSport        VehicleMode = "sport"
	ModeFlip         VehicleMode = "flip"
	ModePosHold      VehicleMode = "pos_hold"
	ModeBreak        VehicleMode = "break"
	ModeThrow        VehicleMode = "throw"
	ModeGuidedNoGPS  VehicleMode = "guided_no_gps"
	ModeSmartRTL     VehicleMode = "smart_rtl"
	ModeFlowHold     VehicleMode = "flow_hold"
	ModeFollow       VehicleMode = "follow"
	ModeZigZag       VehicleMode = "zig_zag"
	ModeSystemID     VehicleMode = "system_id"
	ModeAutorotate   VehicleMode = "autorotate"
	ModeAutoRTL      VehicleMode = "auto_rtl"
	ModeTurtle       VehicleMode = "turtle"
)

// VehicleFeature is an optional capability advertised to clients.
type VehicleFeature string

const (
	FeaturePetrolEngine VehicleFeature = "petrol_engine"
	FeatureParachute    VehicleFeature = "parachute"
	FeatureLights       VehicleFeature = "lights"
)

// MavlinkProtocol binds a vehicle to a MAVLink system id.
type MavlinkProtocol struct {
	MavID uint8 `json:"mav_id"`
}

// ProtocolID is the discriminated protocol binding of a vehicle. At most
// one variant is set.
type ProtocolID struct {
	Mavlink *MavlinkProtocol `json:"mavlink,omitempty"`
}

// MavlinkProtocolID builds the binding for system id sysID.
func MavlinkProtocolID(sysID uint8) ProtocolID {
	return ProtocolID{Mavlink: &MavlinkProtocol{MavID: sysID}}
}

// VehicleDescription is the stable identity of a vehicle.
type VehicleDescription struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Color          string           `json:"color"`
	Type           VehicleType      `json:"type"`
	Protocol       ProtocolID       `json:"protocol_id"`
	Features       []VehicleFeature `json:"features"`
	AvailableModes []VehicleMode    `json:"available_modes"`
}

func (v *VehicleDescription) EntityID() string      { return v.ID }
func (v *VehicleDescription) SetEntityID(id string) { v.ID = id }

// VehicleStatus is refreshed by every heartbeat. ID equals the vehicle id.
type VehicleStatus struct {
	ID            string       `json:"id"`
	LastHeartbeat int64        `json:"last_heartbeat"`
	State         VehicleState `json:"state"`
	Armed         bool         `json:"armed"`
	Mode          VehicleMode  `json:"mode"`
}

func (v *VehicleStatus) EntityID() string      { return v.ID }
func (v *VehicleStatus) SetEntityID(id string) { v.ID = id }
