package bus

import (
	"time"

	"github.com/pkg/errors"

	"GroundLink/internal/models"
)

type ClientEventKind string

const (
	ExecuteCommandEvent     ClientEventKind = "execute_command"
	CancelCommandEvent      ClientEventKind = "cancel_command"
	DownloadMissionEvent    ClientEventKind = "download_mission"
	UploadMissionEvent      ClientEventKind = "upload_mission"
	ClearMissionEvent       ClientEventKind = "clear_mission"
	CancelMissionStateEvent ClientEventKind = "cancel_mission_state"
	SetLinkConnectedEvent   ClientEventKind = "set_link_connected"
)

// CommandRequest is what a client asks a vehicle to do.
type CommandRequest struct {
	Command  models.Command  `json:"command"`
	Executor models.Executor `json:"executor"`
}

// ClientEvent is an operator request. Only the fields of Kind are set.
type ClientEvent struct {
	Kind      ClientEventKind `json:"kind"`
	Request   *CommandRequest `json:"request,omitempty"`
	CommandID string          `json:"command_id,omitempty"`
	MissionID string          `json:"mission_id,omitempty"`
	LinkID    string          `json:"link_id,omitempty"`
	Connected bool            `json:"connected,omitempty"`
}

// Validate checks that the fields Kind needs are set.
func (ev ClientEvent) Validate() error {
	switch ev.Kind {
	case ExecuteCommandEvent:
		if ev.Request == nil || ev.CommandID == "" {
			return errors.New("execute_command needs request and command_id")
		}
	case CancelCommandEvent:
		if ev.CommandID == "" {
			return errors.New("cancel_command needs command_id")
		}
	case DownloadMissionEvent, UploadMissionEvent, ClearMissionEvent, CancelMissionStateEvent:
		if ev.MissionID == "" {
			return errors.Errorf("%s needs mission_id", ev.Kind)
		}
	case SetLinkConnectedEvent:
		if ev.LinkID == "" {
			return errors.New("set_link_connected needs link_id")
		}
	default:
		return errors.Errorf("unknown client event %q", ev.Kind)
	}
	return nil
}

func ExecuteCommand(req CommandRequest, commandID string) ClientEvent {
	return ClientEvent{Kind: ExecuteCommandEvent, Request: &req, CommandID: commandID}
}

func CancelCommand(commandID string) ClientEvent {
	return ClientEvent{Kind: CancelCommandEvent, CommandID: commandID}
}

func DownloadMission(missionID string) ClientEvent {
	return ClientEvent{Kind: DownloadMissionEvent, MissionID: missionID}
}

func UploadMission(missionID string) ClientEvent {
	return ClientEvent{Kind: UploadMissionEvent, MissionID: missionID}
}

func ClearMission(missionID string) ClientEvent {
	return ClientEvent{Kind: ClearMissionEvent, MissionID: missionID}
}

func CancelMissionState(missionID string) ClientEvent {
	return ClientEvent{Kind: CancelMissionStateEvent, MissionID: missionID}
}

func SetLinkConnected(linkID string, connected bool) ClientEvent {
	return ClientEvent{Kind: SetLinkConnectedEvent, LinkID: linkID, Connected: connected}
}

type ServerEventKind string

const (
	VehicleUpserted         ServerEventKind = "vehicle_upserted"
	VehicleStatusUpdated    ServerEventKind = "vehicle_status_updated"
	TelemetryFlight         ServerEventKind = "telemetry_flight"
	TelemetryNavigation     ServerEventKind = "telemetry_navigation"
	TelemetryRawSns         ServerEventKind = "telemetry_raw_sns"
	TelemetrySystem         ServerEventKind = "telemetry_system"
	CommandExecutionUpdated ServerEventKind = "command_execution_updated"
	MissionRouteUpdated     ServerEventKind = "mission_route_updated"
	MissionStatusUpdated    ServerEventKind = "mission_status_updated"
	LinkStatusUpdated       ServerEventKind = "link_status_updated"
)

// IsTelemetry reports whether losing an event of this kind is acceptable.
func (k ServerEventKind) IsTelemetry() bool {
	switch k {
	case TelemetryFlight, TelemetryNavigation, TelemetryRawSns, TelemetrySystem:
		return true
	}
	return false
}

// ServerEvent carries a copy of the entity that changed.
type ServerEvent struct {
	Kind      ServerEventKind `json:"kind"`
	Data      interface{}     `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewServerEvent(kind ServerEventKind, data interface{}) ServerEvent {
	return ServerEvent{Kind: kind, Data: data, Timestamp: time.Now()}
}

type (
	ClientBus = Broadcast[ClientEvent]
	ServerBus = Broadcast[ServerEvent]
)

func NewClientBus() *ClientBus { return NewBroadcast[ClientEvent]("client") }

func NewServerBus() *ServerBus { return NewBroadcast[ServerEvent]("server") }
