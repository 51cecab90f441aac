package models

type Waypoint struct {
	Position     Geodetic `json:"position"`
	HoldTime     float32  `json:"hold_time"`
	PassRadius   float32  `json:"pass_radius"`
	AcceptRadius float32  `json:"accept_radius"`
	Yaw          *uint16  `json:"yaw,omitempty"`
}

type TakeoffItem struct {
	Position Geodetic `json:"position"`
	Pitch    float32  `json:"pitch"`
	Yaw      *uint16  `json:"yaw,omitempty"`
}

type LandStart struct {
	Position Geodetic `json:"position"`
}

type Landing struct {
	Position      Geodetic `json:"position"`
	AbortAltitude float32  `json:"abort_altitude"`
	Yaw           *uint16  `json:"yaw,omitempty"`
}

type LoiterTurns struct {
	Position        Geodetic `json:"position"`
	Turns           uint16   `json:"turns"`
	Radius          float32  `json:"radius"`
	Clockwise       bool     `json:"clockwise"`
	HeadingRequired bool     `json:"heading_required"`
}

type LoiterToAltitude struct {
	Position        Geodetic `json:"position"`
	Radius          float32  `json:"radius"`
	Clockwise       bool     `json:"clockwise"`
	HeadingRequired bool     `json:"heading_required"`
}

type TriggerCamera struct {
	Distance    float32 `json:"distance"`
	Shutter     float32 `json:"shutter"`
	TriggerOnce bool    `json:"trigger_once"`
}

// MissionRouteItem is a tagged union; the zero value is a Gap placeholder.
type MissionRouteItem struct {
	Waypoint         *Waypoint         `json:"waypoint,omitempty"`
	Takeoff          *TakeoffItem      `json:"takeoff,omitempty"`
	LandStart        *LandStart        `json:"land_start,omitempty"`
	Landing          *Landing          `json:"landing,omitempty"`
	LoiterTurns      *LoiterTurns      `json:"loiter_turns,omitempty"`
	LoiterToAltitude *LoiterToAltitude `json:"loiter_to_altitude,omitempty"`
	TriggerCamera    *TriggerCamera    `json:"trigger_camera,omitempty"`
}

func (i MissionRouteItem) IsGap() bool {
	return i.Waypoint == nil && i.Takeoff == nil && i.LandStart == nil && i.Landing == nil &&
		i.LoiterTurns == nil && i.LoiterToAltitude == nil && i.TriggerCamera == nil
}

// MissionRoute holds user items; ID equals the mission id.
type MissionRoute struct {
	ID    string             `json:"id"`
	Items []MissionRouteItem `json:"items"`
}

func (r *MissionRoute) EntityID() string      { return r.ID }
func (r *MissionRoute) SetEntityID(id string) { r.ID = id }

// MissionAssignment binds a mission (ID) to a vehicle.
type MissionAssignment struct {
	ID        string `json:"id"`
	VehicleID string `json:"vehicle_id"`
}

func (a *MissionAssignment) EntityID() string      { return a.ID }
func (a *MissionAssignment) SetEntityID(id string) { a.ID = id }

type MissionStateKind string

const (
	MissionNotActual       MissionStateKind = "not_actual"
	MissionPrepareDownload MissionStateKind = "prepare_download"
	MissionDownload        MissionStateKind = "download"
	MissionPrepareUpload   MissionStateKind = "prepare_upload"
	MissionUpload          MissionStateKind = "upload"
	MissionActual          MissionStateKind = "actual"
	MissionClearing        MissionStateKind = "clearing"
)

// MissionState is the transfer state. Total counts wire items (home
// included); Progress is the next wire sequence expected or sent.
type MissionState struct {
	Kind     MissionStateKind `json:"kind"`
	Total    uint16           `json:"total"`
	Progress uint16           `json:"progress"`
}

// IsIdle reports whether no transfer is running.
func (s MissionState) IsIdle() bool {
	return s.Kind == MissionNotActual || s.Kind == MissionActual || s.Kind == ""
}

type MissionProgressKind string

const (
	MissionOnHold     MissionProgressKind = "on_hold"
	MissionInProgress MissionProgressKind = "in_progress"
	MissionFinished   MissionProgressKind = "finished"
)

type MissionProgress struct {
	Kind    MissionProgressKind `json:"kind"`
	Current uint16              `json:"current"`
	Reached []uint16            `json:"reached"`
}

// MissionStatus; ID equals the mission id.
type MissionStatus struct {
	ID       string          `json:"id"`
	State    MissionState    `json:"state"`
	Progress MissionProgress `json:"progress"`
}

func (s *MissionStatus) EntityID() string      { return s.ID }
func (s *MissionStatus) SetEntityID(id string) { s.ID = id }

// DefaultMissionStatus is the status of a mission never transferred.
func DefaultMissionStatus(missionID string) MissionStatus {
	return MissionStatus{
		ID:       missionID,
		State:    MissionState{Kind: MissionNotActual},
		Progress: MissionProgress{Kind: MissionOnHold},
	}
}
