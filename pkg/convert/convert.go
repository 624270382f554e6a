// Package convert turns raw sensor records into publishable messages.
// The conversion path for a sensor is resolved once at worker start
// from the request's data type; per-record failures surface as errors
// for the worker to log and skip.
package convert

import (
	"errors"
	"fmt"
	"math"
	"os"

	"sensor-replay/pkg/calibration"
	"sensor-replay/pkg/database"
	"sensor-replay/pkg/messages"
	"sensor-replay/pkg/replay"
	"sensor-replay/pkg/storage"
)

// ErrNaNPointCloud marks a decoded cloud with a not-a-number
// coordinate. Workers drop these silently, it is a data artifact of
// the recording, not an error.
var ErrNaNPointCloud = errors.New("point cloud contains NaN coordinates")

// RecordConverter converts one fetched record file into a message.
type RecordConverter interface {
	Convert(path string, timestamp int64) (*messages.Message, error)
}

// ForSensor resolves the conversion path for a file-backed sensor.
// cal may be nil when neither undistortion nor the vehicle view was
// requested. Bus telemetry rows do not pass through here, they convert
// straight from index rows via BusSignal.
func ForSensor(req *replay.Request, sensor string, cal *calibration.Calibration) (RecordConverter, error) {
	frameID := req.Frame(sensor)
	switch req.DataType(sensor) {
	case replay.DataTypeImage:
		conv := &ImageConverter{FrameID: frameID}
		if req.Undistorted() {
			if cal == nil {
				return nil, fmt.Errorf("undistorted images requested for '%s' but no calibration loaded", sensor)
			}
			info, err := cal.CameraInfo(sensor)
			if err != nil {
				return nil, err
			}
			conv.Camera = info
		}
		return conv, nil
	case replay.DataTypePointCloud:
		conv := &PointCloudConverter{FrameID: frameID}
		if req.VehicleView() {
			if cal == nil {
				return nil, fmt.Errorf("vehicle view requested for '%s' but no calibration loaded", sensor)
			}
			transform, err := cal.SensorToVehicle(sensor)
			if err != nil {
				return nil, err
			}
			conv.Transform = transform
		}
		return conv, nil
	default:
		return nil, fmt.Errorf("sensor '%s' has no file-backed conversion path", sensor)
	}
}

// PointCloudConverter decodes cloud records, optionally re-expressing
// points in the vehicle frame.
type PointCloudConverter struct {
	FrameID   string
	Transform *calibration.Transform // nil for camera-frame view
}

func (c *PointCloudConverter) Convert(path string, timestamp int64) (*messages.Message, error) {
	points, reflectance, err := storage.DecodePointCloud(path)
	if err != nil {
		return nil, err
	}
	if c.Transform != nil {
		c.Transform.ApplyAll(points)
	}
	for _, v := range points {
		if math.IsNaN(float64(v)) {
			return nil, ErrNaNPointCloud
		}
	}
	return &messages.Message{
		Kind:      messages.KindPointCloud,
		Timestamp: timestamp,
		FrameID:   c.FrameID,
		Cloud:     &messages.PointCloud{Points: points, Reflectance: reflectance},
	}, nil
}

// BusSignal converts one telemetry index row into a message.
func BusSignal(row *database.BusSignal, frameID string) *messages.Message {
	return &messages.Message{
		Kind:      messages.KindBus,
		Timestamp: row.Timestamp,
		FrameID:   frameID,
		Bus: &messages.BusRecord{
			VehicleSpeed:     row.VehicleSpeed,
			AccelerationX:    row.AccelerationX,
			AccelerationY:    row.AccelerationY,
			AccelerationZ:    row.AccelerationZ,
			AngularVelocityX: row.AngularVelocityX,
			AngularVelocityY: row.AngularVelocityY,
			AngularVelocityZ: row.AngularVelocityZ,
			SteeringAngle:    row.SteeringAngle,
			BrakePressure:    row.BrakePressure,
			AcceleratorPedal: row.AcceleratorPedal,
		},
	}
}

func readRecordBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record '%s': %w", path, err)
	}
	return data, nil
}
