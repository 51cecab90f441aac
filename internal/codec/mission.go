package codec

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"GroundLink/internal/logger"
	"GroundLink/internal/models"
)

var log = logger.New("CODEC")

func encodeYaw(yaw *uint16) float32 {
	if yaw == nil {
		return float32(math.NaN())
	}
	return float32(*yaw)
}

func decodeYaw(p float32) *uint16 {
	if math.IsNaN(float64(p)) {
		return nil
	}
	yaw := uint16(math.Round(float64(p)))
	return &yaw
}

func encodeBool(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// encodeRadius signs the loiter radius: positive is clockwise.
func encodeRadius(radius float32, clockwise bool) float32 {
	r := float32(math.Abs(float64(radius)))
	if clockwise {
		return r
	}
	return -r
}

func decodeRadius(p float32) (radius float32, clockwise bool) {
	return float32(math.Abs(float64(p))), !math.Signbit(float64(p))
}

func missionItem(target uint8, seq uint16, cmd common.MAV_CMD, pos models.Geodetic) *common.MessageMissionItemInt {
	frame, x, y, z := EncodePosition(pos)
	return &common.MessageMissionItemInt{
		TargetSystem:    target,
		TargetComponent: TargetComponent,
		Seq:             seq,
		Frame:           frame,
		Command:         cmd,
		Autocontinue:    1,
		X:               x,
		Y:               y,
		Z:               z,
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	}
}

// HomeItem builds the wire item at sequence 0, which carries the home position.
func HomeItem(target uint8, home models.Geodetic) *common.MessageMissionItemInt {
	home.Frame = models.FrameAboveSeaLevel
	return missionItem(target, 0, common.MAV_CMD_NAV_WAYPOINT, home)
}

// EncodeMissionItem encodes a user route item at wire sequence seq. Gaps
// have no wire form and return false.
func EncodeMissionItem(target uint8, seq uint16, item models.MissionRouteItem) (*common.MessageMissionItemInt, bool) {
	switch {
	case item.Waypoint != nil:
		w := item.Waypoint
		msg := missionItem(target, seq, common.MAV_CMD_NAV_WAYPOINT, w.Position)
		msg.Param1 = w.HoldTime
		msg.Param2 = w.AcceptRadius
		msg.Param3 = w.PassRadius
		msg.Param4 = encodeYaw(w.Yaw)
		return msg, true

	case item.Takeoff != nil:
		t := item.Takeoff
		msg := missionItem(target, seq, common.MAV_CMD_NAV_TAKEOFF, t.Position)
		msg.Param1 = t.Pitch
		msg.Param4 = encodeYaw(t.Yaw)
		return msg, true

	case item.LandStart != nil:
		return missionItem(target, seq, common.MAV_CMD_DO_LAND_START, item.LandStart.Position), true

	case item.Landing != nil:
		l := item.Landing
		msg := missionItem(target, seq, common.MAV_CMD_NAV_LAND, l.Position)
		msg.Param1 = l.AbortAltitude
		msg.Param4 = encodeYaw(l.Yaw)
		return msg, true

	case item.LoiterTurns != nil:
		l := item.LoiterTurns
		msg := missionItem(target, seq, common.MAV_CMD_NAV_LOITER_TURNS, l.Position)
		msg.Param1 = float32(l.Turns)
		msg.Param2 = encodeBool(l.HeadingRequired)
		msg.Param3 = encodeRadius(l.Radius, l.Clockwise)
		return msg, true

	case item.LoiterToAltitude != nil:
		l := item.LoiterToAltitude
		msg := missionItem(target, seq, common.MAV_CMD_NAV_LOITER_TO_ALT, l.Position)
		msg.Param1 = encodeBool(l.HeadingRequired)
		msg.Param2 = encodeRadius(l.Radius, l.Clockwise)
		return msg, true

	case item.TriggerCamera != nil:
		c := item.TriggerCamera
		msg := missionItem(target, seq, common.MAV_CMD_DO_SET_CAM_TRIGG_DIST, models.Geodetic{})
		msg.Frame = common.MAV_FRAME_MISSION
		msg.X, msg.Y, msg.Z = 0, 0, 0
		msg.Param1 = c.Distance
		msg.Param2 = c.Shutter
		msg.Param3 = encodeBool(c.TriggerOnce)
		return msg, true
	}
	return nil, false
}

// DecodeMissionItem is the inverse of EncodeMissionItem. Commands without
// a route item form decode to a gap.
func DecodeMissionItem(msg *common.MessageMissionItemInt) models.MissionRouteItem {
	pos := DecodePosition(msg.Frame, msg.X, msg.Y, msg.Z)

	switch msg.Command {
	case common.MAV_CMD_NAV_WAYPOINT:
		return models.MissionRouteItem{Waypoint: &models.Waypoint{
			Position:     pos,
			HoldTime:     msg.Param1,
			AcceptRadius: msg.Param2,
			PassRadius:   msg.Param3,
			Yaw:          decodeYaw(msg.Param4),
		}}

	case common.MAV_CMD_NAV_TAKEOFF:
		return models.MissionRouteItem{Takeoff: &models.TakeoffItem{
			Position: pos,
			Pitch:    msg.Param1,
			Yaw:      decodeYaw(msg.Param4),
		}}

	case common.MAV_CMD_DO_LAND_START:
		return models.MissionRouteItem{LandStart: &models.LandStart{Position: pos}}

	case common.MAV_CMD_NAV_LAND:
		return models.MissionRouteItem{Landing: &models.Landing{
			Position:      pos,
			AbortAltitude: msg.Param1,
			Yaw:           decodeYaw(msg.Param4),
		}}

	case common.MAV_CMD_NAV_LOITER_TURNS:
		radius, clockwise := decodeRadius(msg.Param3)
		return models.MissionRouteItem{LoiterTurns: &models.LoiterTurns{
			Position:        pos,
			Turns:           uint16(msg.Param1),
			HeadingRequired: msg.Param2 != 0,
			Radius:          radius,
			Clockwise:       clockwise,
		}}

	case common.MAV_CMD_NAV_LOITER_TO_ALT:
		radius, clockwise := decodeRadius(msg.Param2)
		return models.MissionRouteItem{LoiterToAltitude: &models.LoiterToAltitude{
			Position:        pos,
			HeadingRequired: msg.Param1 != 0,
			Radius:          radius,
			Clockwise:       clockwise,
		}}

	case common.MAV_CMD_DO_SET_CAM_TRIGG_DIST:
		return models.MissionRouteItem{TriggerCamera: &models.TriggerCamera{
			Distance:    msg.Param1,
			Shutter:     msg.Param2,
			TriggerOnce: msg.Param3 != 0,
		}}
	}

	log.Warn("Unsupported mission item command %d at seq %d, stored as gap", msg.Command, msg.Seq)
	return models.MissionRouteItem{}
}
