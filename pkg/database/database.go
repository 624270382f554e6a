package database

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one indexed sensor record: a camera frame or a lidar sweep
// stored either on the local filesystem or in an object store.
type Record struct {
	gorm.Model
	SensorID  string `json:"sensor_id" gorm:"index:idx_sensor_ts,priority:1"`
	VehicleID string `json:"vehicle_id"`
	DriveID   string `json:"drive_id"`
	Bucket    string `json:"bucket"` // empty for filesystem records
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp" gorm:"index:idx_sensor_ts,priority:2"`
}

// BusSignal is one decoded vehicle-bus telemetry row.
type BusSignal struct {
	gorm.Model
	SensorID         string  `json:"sensor_id" gorm:"index:idx_bus_sensor_ts,priority:1"`
	Timestamp        int64   `json:"timestamp" gorm:"index:idx_bus_sensor_ts,priority:2"`
	VehicleSpeed     float64 `json:"vehicle_speed"`
	AccelerationX    float64 `json:"acceleration_x"`
	AccelerationY    float64 `json:"acceleration_y"`
	AccelerationZ    float64 `json:"acceleration_z"`
	AngularVelocityX float64 `json:"angular_velocity_x"`
	AngularVelocityY float64 `json:"angular_velocity_y"`
	AngularVelocityZ float64 `json:"angular_velocity_z"`
	SteeringAngle    float64 `json:"steering_angle"`
	BrakePressure    float64 `json:"brake_pressure"`
	AcceleratorPedal float64 `json:"accelerator_pedal"`
}

func OpenDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&Record{}, &BusSignal{})
	return db, err
}

// QueueRecordForReplay indexes a record so manifests can page over it.
// Used by the indexer and by test fixtures.
func QueueRecordForReplay(db *gorm.DB, record *Record) error {
	return db.Create(record).Error
}

func QueueBusSignal(db *gorm.DB, row *BusSignal) error {
	return db.Create(row).Error
}
