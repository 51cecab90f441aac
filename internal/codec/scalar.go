// Package codec translates between domain values and MAVLink payloads of
// the common dialect. Functions here hold no state.
package codec

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"GroundLink/internal/models"
)

// TargetComponent is the autopilot component every outbound frame addresses.
const TargetComponent = 1

// Frame codes of the *_INT position variants, kept numeric because newer
// dialect revisions deprecate their names.
const (
	frameGlobalInt            common.MAV_FRAME = 5
	frameGlobalRelativeAltInt common.MAV_FRAME = 6
	frameGlobalTerrainAltInt  common.MAV_FRAME = 11
)

func RadToDeg(rad float32) float32 {
	return float32(float64(rad) * 180 / math.Pi)
}

func DegToRad(deg float32) float32 {
	return float32(float64(deg) * math.Pi / 180)
}

// DecodeDegE7 converts 1e7 fixed point degrees.
func DecodeDegE7(v int32) float64 {
	return float64(v) / 1e7
}

func EncodeDegE7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}

// MmToM converts millimetres to metres.
func MmToM(mm int32) float64 {
	return float64(mm) / 1000
}

func MToMm(m float64) int32 {
	return int32(math.Round(m * 1000))
}

// CdegToDeg converts hundredths of a degree.
func CdegToDeg(cdeg uint16) float32 {
	return float32(cdeg) / 100
}

// CmsToMs converts cm/s.
func CmsToMs(cms uint16) float32 {
	return float32(cms) / 100
}

// MvToV converts battery millivolts.
func MvToV(mv uint16) float32 {
	return float32(mv) / 1000
}

// CaToA converts battery centiamperes.
func CaToA(ca int16) float32 {
	return float32(ca) / 100
}

// TrueAirspeed approximates TAS from IAS with 2% per 1000 m of altitude.
func TrueAirspeed(ias, altitude float32) float32 {
	return ias * (1 + 0.02*altitude/1000)
}

// EncodePosition maps a geodetic position onto a global MAVLink frame and
// its fixed point coordinates.
func EncodePosition(pos models.Geodetic) (frame common.MAV_FRAME, x, y int32, z float32) {
	switch pos.Frame {
	case models.FrameRelativeHome:
		frame = common.MAV_FRAME_GLOBAL_RELATIVE_ALT
	case models.FrameAboveTerrain:
		frame = common.MAV_FRAME_GLOBAL_TERRAIN_ALT
	default:
		frame = common.MAV_FRAME_GLOBAL
	}
	return frame, EncodeDegE7(pos.Latitude), EncodeDegE7(pos.Longitude), float32(pos.Altitude)
}

// DecodeFrame maps a MAVLink frame onto the altitude reference.
func DecodeFrame(frame common.MAV_FRAME) models.GeodeticFrame {
	switch frame {
	case common.MAV_FRAME_GLOBAL, frameGlobalInt:
		return models.FrameAboveSeaLevel
	case common.MAV_FRAME_GLOBAL_RELATIVE_ALT, frameGlobalRelativeAltInt:
		return models.FrameRelativeHome
	case common.MAV_FRAME_GLOBAL_TERRAIN_ALT, frameGlobalTerrainAltInt:
		return models.FrameAboveTerrain
	}
	return models.FrameNone
}

func DecodePosition(frame common.MAV_FRAME, x, y int32, z float32) models.Geodetic {
	return models.Geodetic{
		Latitude:  DecodeDegE7(x),
		Longitude: DecodeDegE7(y),
		Altitude:  float64(z),
		Frame:     DecodeFrame(frame),
	}
}
