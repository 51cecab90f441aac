package codec

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"GroundLink/internal/models"
)

// The Apply* functions fold one inbound telemetry message into the row it
// updates, leaving the other fields untouched.

func ApplyAttitude(f *models.Flight, m *common.MessageAttitude) {
	f.Roll = RadToDeg(m.Roll)
	f.Pitch = RadToDeg(m.Pitch)
	f.Yaw = RadToDeg(m.Yaw)
}

func ApplyVfrHud(f *models.Flight, m *common.MessageVfrHud) {
	f.IndicatedAirspeed = m.Airspeed
	f.TrueAirspeed = TrueAirspeed(m.Airspeed, m.Alt)
	f.GroundSpeed = m.Groundspeed
	f.Climb = m.Climb
	f.AltitudeAmsl = m.Alt
	f.Throttle = m.Throttle
}

func ApplyGlobalPosition(n *models.Navigation, m *common.MessageGlobalPositionInt) {
	n.Position = models.Geodetic{
		Latitude:  DecodeDegE7(m.Lat),
		Longitude: DecodeDegE7(m.Lon),
		Altitude:  MmToM(m.Alt),
		Frame:     models.FrameAboveSeaLevel,
	}
}

func ApplyHomePosition(n *models.Navigation, m *common.MessageHomePosition) {
	n.HomePosition = models.Geodetic{
		Latitude:  DecodeDegE7(m.Latitude),
		Longitude: DecodeDegE7(m.Longitude),
		Altitude:  MmToM(m.Altitude),
		Frame:     models.FrameAboveSeaLevel,
	}
}

func ApplyNavControllerOutput(n *models.Navigation, m *common.MessageNavControllerOutput) {
	n.DesiredRoll = m.NavRoll
	n.DesiredPitch = m.NavPitch
	n.DesiredBearing = float32(m.NavBearing)
	n.TargetBearing = float32(m.TargetBearing)
	n.WpDistance = float32(m.WpDist)
	n.AltitudeError = m.AltError
	n.AirspeedError = m.AspdError
	n.XtrackError = m.XtrackError
}

func ApplyPositionTarget(n *models.Navigation, m *common.MessagePositionTargetGlobalInt) {
	n.TargetPosition = models.Geodetic{
		Latitude:  DecodeDegE7(m.LatInt),
		Longitude: DecodeDegE7(m.LonInt),
		Altitude:  float64(m.Alt),
		Frame:     DecodeFrame(m.CoordinateFrame),
	}
}

func ApplyGpsRawInt(r *models.RawSns, m *common.MessageGpsRawInt) {
	r.Position = models.Geodetic{
		Latitude:  DecodeDegE7(m.Lat),
		Longitude: DecodeDegE7(m.Lon),
		Altitude:  MmToM(m.Alt),
		Frame:     models.FrameAboveSeaLevel,
	}
	r.Course = CdegToDeg(m.Cog)
	r.GroundSpeed = CmsToMs(m.Vel)
	r.Fix = GpsFixFromMav(m.FixType)
	r.Eph = m.Eph
	r.Epv = m.Epv
	r.SatellitesVisible = m.SatellitesVisible
}

func ApplySysStatus(s *models.System, m *common.MessageSysStatus) {
	s.BatteryVoltage = MvToV(m.VoltageBattery)
	s.BatteryCurrent = CaToA(m.CurrentBattery)
	s.BatteryPercentage = m.BatteryRemaining
	s.Sensors, s.ArmReady = SensorsFromBitmaps(
		uint32(m.OnboardControlSensorsPresent),
		uint32(m.OnboardControlSensorsEnabled),
		uint32(m.OnboardControlSensorsHealth),
	)
}

// GpsFixFromMav maps GPS_FIX_TYPE.
func GpsFixFromMav(fix common.GPS_FIX_TYPE) models.GpsFix {
	switch uint8(fix) {
	case 1:
		return models.GpsFixNoFix
	case 2:
		return models.GpsFix2D
	case 3:
		return models.GpsFix3D
	case 4:
		return models.GpsFixDGPS
	case 5:
		return models.GpsFixRtkFloat
	case 6:
		return models.GpsFixRtkFixed
	case 7:
		return models.GpsFixStatic
	case 8:
		return models.GpsFixPPP
	}
	return models.GpsFixNone
}
