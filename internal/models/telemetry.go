package models

// Flight telemetry. ID equals the vehicle id.
type Flight struct {
	ID                string  `json:"id"`
	Pitch             float32 `json:"pitch"`
	Roll              float32 `json:"roll"`
	Yaw               float32 `json:"yaw"`
	IndicatedAirspeed float32 `json:"indicated_airspeed"`
	TrueAirspeed      float32 `json:"true_airspeed"`
	GroundSpeed       float32 `json:"ground_speed"`
	Throttle          uint16  `json:"throttle"`
	AltitudeAmsl      float32 `json:"altitude_amsl"`
	Climb             float32 `json:"climb"`
}

func (f *Flight) EntityID() string      { return f.ID }
func (f *Flight) SetEntityID(id string) { f.ID = id }

// Navigation telemetry. ID equals the vehicle id.
type Navigation struct {
	ID             string   `json:"id"`
	Position       Geodetic `json:"position"`
	HomePosition   Geodetic `json:"home_position"`
	TargetPosition Geodetic `json:"target_position"`
	DesiredPitch   float32  `json:"desired_pitch"`
	DesiredRoll    float32  `json:"desired_roll"`
	DesiredBearing float32  `json:"desired_bearing"`
	TargetBearing  float32  `json:"target_bearing"`
	WpDistance     float32  `json:"wp_distance"`
	AltitudeError  float32  `json:"altitude_error"`
	AirspeedError  float32  `json:"airspeed_error"`
	XtrackError    float32  `json:"xtrack_error"`
}

func (n *Navigation) EntityID() string      { return n.ID }
func (n *Navigation) SetEntityID(id string) { n.ID = id }

// GpsFix mirrors GPS_FIX_TYPE.
type GpsFix string

const (
	GpsFixNone     GpsFix = "none"
	GpsFixNoFix    GpsFix = "no_fix"
	GpsFix2D       GpsFix = "2d"
	GpsFix3D       GpsFix = "3d"
	GpsFixDGPS     GpsFix = "dgps"
	GpsFixRtkFloat GpsFix = "rtk_float"
	GpsFixRtkFixed GpsFix = "rtk_fixed"
	GpsFixStatic   GpsFix = "static"
	GpsFixPPP      GpsFix = "ppp"
)

// RawSns is the raw GNSS receiver output. ID equals the vehicle id.
type RawSns struct {
	ID                string   `json:"id"`
	Position          Geodetic `json:"position"`
	Course            float32  `json:"course"`
	GroundSpeed       float32  `json:"ground_speed"`
	Fix               GpsFix   `json:"fix"`
	Eph               uint16   `json:"eph"`
	Epv               uint16   `json:"epv"`
	SatellitesVisible uint8    `json:"satellites_visible"`
}

func (r *RawSns) EntityID() string      { return r.ID }
func (r *RawSns) SetEntityID(id string) { r.ID = id }

// Sensor is one entry of the SYS_STATUS sensor bitmaps.
type Sensor struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Health  bool   `json:"health"`
}

// System telemetry. ID equals the vehicle id.
type System struct {
	ID                string   `json:"id"`
	BatteryVoltage    float32  `json:"battery_voltage"`
	BatteryCurrent    float32  `json:"battery_current"`
	BatteryPercentage int8     `json:"battery_percentage"`
	Sensors           []Sensor `json:"sensors"`
	ArmReady          bool     `json:"arm_ready"`
}

func (s *System) EntityID() string      { return s.ID }
func (s *System) SetEntityID(id string) { s.ID = id }
