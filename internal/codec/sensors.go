package codec

import "GroundLink/internal/models"

// Bit positions of MAV_SYS_STATUS_SENSOR.
const (
	sensorPrearmCheck = 28
	sensorExtension   = 31
)

var sensorNames = [...]string{
	"gyro_3d",
	"accel_3d",
	"mag_3d",
	"absolute_pressure",
	"differential_pressure",
	"gps",
	"optical_flow",
	"vision_position",
	"laser_position",
	"external_ground_truth",
	"angular_rate_control",
	"attitude_stabilization",
	"yaw_position",
	"z_altitude_control",
	"xy_position_control",
	"motor_outputs",
	"rc_receiver",
	"gyro2_3d",
	"accel2_3d",
	"mag2_3d",
	"geofence",
	"ahrs",
	"terrain",
	"reverse_motor",
	"logging",
	"battery",
	"proximity",
	"satcom",
	"prearm_check",
	"obstacle_avoidance",
	"propulsion",
	"extension_used",
}

// SensorsFromBitmaps lists the present sensors of SYS_STATUS. The prearm
// check is reported through armReady instead of as a sensor.
func SensorsFromBitmaps(present, enabled, health uint32) (sensors []models.Sensor, armReady bool) {
	sensors = []models.Sensor{}
	for bit, name := range sensorNames {
		if bit == sensorPrearmCheck || bit == sensorExtension {
			continue
		}
		mask := uint32(1) << bit
		if present&mask == 0 {
			continue
		}
		sensors = append(sensors, models.Sensor{
			Name:    name,
			Enabled: enabled&mask != 0,
			Health:  health&mask != 0,
		})
	}
	armReady = health&(uint32(1)<<sensorPrearmCheck) != 0
	return sensors, armReady
}
