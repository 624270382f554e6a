// Request parsing and validation for sensor replay sessions.
// A request arrives as a JSON document on the message bus and is
// validated in full before any per-sensor state is created.
package replay

import (
	"encoding/json"
	"fmt"
)

type DataType int

const (
	DataTypeUnknown DataType = iota
	DataTypeImage
	DataTypePointCloud
	DataTypeBus
)

func (t DataType) String() string {
	switch t {
	case DataTypeImage:
		return "image"
	case DataTypePointCloud:
		return "point-cloud"
	case DataTypeBus:
		return "bus-telemetry"
	default:
		return "unknown"
	}
}

// ParseDataType accepts both the short tags and the ROS message names
// used by older clients.
func ParseDataType(s string) DataType {
	switch s {
	case "image", "sensor_msgs/Image":
		return DataTypeImage
	case "point-cloud", "pcl", "sensor_msgs/PointCloud2":
		return DataTypePointCloud
	case "bus-telemetry", "bus", "a2d2_msgs/Bus":
		return DataTypeBus
	default:
		return DataTypeUnknown
	}
}

const (
	ImageOriginal    = "original"
	ImageUndistorted = "undistorted"

	LidarViewCamera  = "camera"
	LidarViewVehicle = "vehicle"

	DefaultFrameID = "map"
)

type Request struct {
	SensorID  []string          `json:"sensor_id"`
	RosTopic  map[string]string `json:"ros_topic"`
	RawTypes  map[string]string `json:"data_type"`
	FrameID   map[string]string `json:"frame_id"`
	Image     string            `json:"image"`
	LidarView string            `json:"lidar_view"`
	Preview   bool              `json:"preview"`

	dataTypes map[string]DataType
}

func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed request document: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Request) Validate() error {
	if len(r.SensorID) == 0 {
		return fmt.Errorf("request has no sensor_id entries")
	}
	if r.RawTypes == nil {
		return fmt.Errorf("request is missing data_type")
	}
	if r.RosTopic == nil {
		return fmt.Errorf("request is missing ros_topic")
	}
	seen := make(map[string]bool, len(r.SensorID))
	r.dataTypes = make(map[string]DataType, len(r.SensorID))
	for _, sensor := range r.SensorID {
		if sensor == "" {
			return fmt.Errorf("request contains an empty sensor id")
		}
		if seen[sensor] {
			return fmt.Errorf("sensor '%s' listed twice", sensor)
		}
		seen[sensor] = true
		if r.RosTopic[sensor] == "" {
			return fmt.Errorf("sensor '%s' has no ros_topic", sensor)
		}
		raw, ok := r.RawTypes[sensor]
		if !ok {
			return fmt.Errorf("sensor '%s' has no data_type", sensor)
		}
		dt := ParseDataType(raw)
		if dt == DataTypeUnknown {
			return fmt.Errorf("sensor '%s' has unknown data_type '%s'", sensor, raw)
		}
		r.dataTypes[sensor] = dt
	}
	switch r.Image {
	case "", ImageOriginal, ImageUndistorted:
	default:
		return fmt.Errorf("unknown image mode '%s'", r.Image)
	}
	switch r.LidarView {
	case "", LidarViewCamera, LidarViewVehicle:
	default:
		return fmt.Errorf("unknown lidar_view '%s'", r.LidarView)
	}
	return nil
}

// DataType returns the validated type tag for a sensor.
// Validate must have succeeded first.
func (r *Request) DataType(sensor string) DataType {
	return r.dataTypes[sensor]
}

func (r *Request) Topic(sensor string) string {
	return r.RosTopic[sensor]
}

func (r *Request) Frame(sensor string) string {
	if f, ok := r.FrameID[sensor]; ok && f != "" {
		return f
	}
	return DefaultFrameID
}

func (r *Request) Undistorted() bool {
	return r.Image == ImageUndistorted
}

func (r *Request) VehicleView() bool {
	return r.LidarView == LidarViewVehicle
}
