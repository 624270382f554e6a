// Package calibration loads the vehicle calibration document and
// derives the per-sensor geometry the converters need: camera
// intrinsics for undistortion and rigid sensor-to-vehicle transforms
// from the recorded axis-angle view frames.
package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	LensFisheye = "Fisheye"
	LensTelecam = "Telecam"
)

// View is a sensor mounting frame: an origin and two axes in vehicle
// global coordinates. The z axis is derived.
type View struct {
	Origin [3]float64 `json:"origin"`
	XAxis  [3]float64 `json:"x-axis"`
	YAxis  [3]float64 `json:"y-axis"`
}

type Camera struct {
	View              View        `json:"view"`
	Lens              string      `json:"Lens"`
	Distortion        []float64   `json:"Distortion"`
	CamMatrix         [][]float64 `json:"CamMatrix"`         // undistorted intrinsics
	CamMatrixOriginal [][]float64 `json:"CamMatrixOriginal"` // distorted intrinsics
}

type Lidar struct {
	View View `json:"view"`
}

type Vehicle struct {
	View View `json:"view"`
}

type Calibration struct {
	Cameras map[string]Camera `json:"cameras"`
	Lidars  map[string]Lidar  `json:"lidars"`
	Vehicle Vehicle           `json:"vehicle"`
}

// CameraInfo is the subset of calibration a single image converter
// needs, resolved once per sensor at worker start.
type CameraInfo struct {
	Lens              string
	Distortion        []float64
	CamMatrix         [3][3]float64
	CamMatrixOriginal [3][3]float64
}

// Loader fetches the raw calibration document. The S3-backed loader
// lives in pkg/storage to keep the aws dependency out of this package.
type Loader func(ctx context.Context) ([]byte, error)

func FileLoader(path string) Loader {
	return func(context.Context) ([]byte, error) {
		return os.ReadFile(path)
	}
}

func Load(ctx context.Context, load Loader) (*Calibration, error) {
	data, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading calibration: %w", err)
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parsing calibration: %w", err)
	}
	return &cal, nil
}

// sensorName maps a sensor id like "/camera/front_center" to the
// calibration key "front_center".
func sensorName(sensor string) string {
	idx := strings.LastIndex(sensor, "/")
	if idx < 0 {
		return sensor
	}
	return sensor[idx+1:]
}

func (c *Calibration) CameraInfo(sensor string) (*CameraInfo, error) {
	cam, ok := c.Cameras[sensorName(sensor)]
	if !ok {
		return nil, fmt.Errorf("no camera calibration for sensor '%s'", sensor)
	}
	info := &CameraInfo{
		Lens:       cam.Lens,
		Distortion: cam.Distortion,
	}
	var err error
	if info.CamMatrix, err = toMat3(cam.CamMatrix); err != nil {
		return nil, fmt.Errorf("camera '%s' CamMatrix: %w", sensor, err)
	}
	if info.CamMatrixOriginal, err = toMat3(cam.CamMatrixOriginal); err != nil {
		return nil, fmt.Errorf("camera '%s' CamMatrixOriginal: %w", sensor, err)
	}
	return info, nil
}

// SensorToVehicle builds the rigid transform taking sensor-frame
// points into the vehicle frame.
func (c *Calibration) SensorToVehicle(sensor string) (*Transform, error) {
	name := sensorName(sensor)
	var view View
	if cam, ok := c.Cameras[name]; ok {
		view = cam.View
	} else if lidar, ok := c.Lidars[name]; ok {
		view = lidar.View
	} else {
		return nil, fmt.Errorf("no view calibration for sensor '%s'", sensor)
	}
	return transformFromTo(view, c.Vehicle.View)
}

func toMat3(rows [][]float64) ([3][3]float64, error) {
	var m [3][3]float64
	if len(rows) != 3 {
		return m, fmt.Errorf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 3 {
			return m, fmt.Errorf("row %d has %d columns", i, len(row))
		}
		copy(m[i][:], row)
	}
	return m, nil
}
