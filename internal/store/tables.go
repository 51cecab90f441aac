package store

import "GroundLink/internal/models"

// Table names touched by the protocol core.
const (
	TableVehicleDescriptions = "vehicle_descriptions"
	TableVehicleStatuses     = "vehicle_statuses"
	TableTelemetryFlight     = "telemetry_flight"
	TableTelemetryNavigation = "telemetry_navigation"
	TableTelemetryRawSns     = "telemetry_raw_sns"
	TableTelemetrySystem     = "telemetry_system"
	TableCommandExecutions   = "command_executions"
	TableMissionAssignments  = "mission_assignments"
	TableMissionRoutes       = "mission_routes"
	TableMissionStatuses     = "mission_statuses"
	TableLinkDescriptions    = "link_descriptions"
	TableLinkStatuses        = "link_statuses"
)

// Tables bundles every typed table over one backend. It is cheap to share.
type Tables struct {
	VehicleDescriptions *Table[models.VehicleDescription, *models.VehicleDescription]
	VehicleStatuses     *Table[models.VehicleStatus, *models.VehicleStatus]
	Flight              *Table[models.Flight, *models.Flight]
	Navigation          *Table[models.Navigation, *models.Navigation]
	RawSns              *Table[models.RawSns, *models.RawSns]
	System              *Table[models.System, *models.System]
	CommandExecutions   *Table[models.CommandExecution, *models.CommandExecution]
	MissionAssignments  *Table[models.MissionAssignment, *models.MissionAssignment]
	MissionRoutes       *Table[models.MissionRoute, *models.MissionRoute]
	MissionStatuses     *Table[models.MissionStatus, *models.MissionStatus]
	LinkDescriptions    *Table[models.LinkDescription, *models.LinkDescription]
	LinkStatuses        *Table[models.LinkStatus, *models.LinkStatus]
}

func NewTables(backend Backend) *Tables {
	return &Tables{
		VehicleDescriptions: NewTable[models.VehicleDescription](backend, TableVehicleDescriptions),
		VehicleStatuses:     NewTable[models.VehicleStatus](backend, TableVehicleStatuses),
		Flight:              NewTable[models.Flight](backend, TableTelemetryFlight),
		Navigation:          NewTable[models.Navigation](backend, TableTelemetryNavigation),
		RawSns:              NewTable[models.RawSns](backend, TableTelemetryRawSns),
		System:              NewTable[models.System](backend, TableTelemetrySystem),
		CommandExecutions:   NewTable[models.CommandExecution](backend, TableCommandExecutions),
		MissionAssignments:  NewTable[models.MissionAssignment](backend, TableMissionAssignments),
		MissionRoutes:       NewTable[models.MissionRoute](backend, TableMissionRoutes),
		MissionStatuses:     NewTable[models.MissionStatus](backend, TableMissionStatuses),
		LinkDescriptions:    NewTable[models.LinkDescription](backend, TableLinkDescriptions),
		LinkStatuses:        NewTable[models.LinkStatus](backend, TableLinkStatuses),
	}
}
