// Package session runs one replay session end to end: parse and
// validate the request, resolve calibration and conversion paths,
// open a manifest cursor per sensor, start the producer workers and
// drain the dispatcher when they finish. Sessions are serialized by
// the trigger, at most one is active at a time.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sensor-replay/pkg/calibration"
	"sensor-replay/pkg/convert"
	"sensor-replay/pkg/dispatch"
	"sensor-replay/pkg/manifest"
	"sensor-replay/pkg/publisher"
	"sensor-replay/pkg/replay"
	"sensor-replay/pkg/sensorworker"
	"sensor-replay/pkg/storage"
)

// SinkFactory builds the per-sensor publish sink for a topic.
type SinkFactory func(sensor, topic string) (publisher.Sink, error)

type Deps struct {
	DB          *gorm.DB
	Reader      storage.Reader
	Remote      bool // records are fetched through the prefetch pipeline
	Calibration calibration.Loader
	NewSink     SinkFactory
	BatchSize   int
	FetchRate   int
	Depth       int
}

// Handle runs a single replay session to completion. A request that
// fails validation aborts before any sensor state is created; a
// sensor whose manifest or conversion path cannot be set up is
// skipped while the rest of the session proceeds.
func Handle(ctx context.Context, deps *Deps, raw []byte) error {
	req, err := replay.ParseRequest(raw)
	if err != nil {
		return err
	}

	cal, err := loadCalibration(ctx, deps, req)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher()
	registry := &publisher.Registry{}
	var wg sync.WaitGroup
	started := 0

	for _, sensor := range req.SensorID {
		conf, err := sensorConfig(deps, req, cal, sensor, dispatcher)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"Sensor": sensor,
			}).Errorf("Skipping sensor: %v", err)
			continue
		}
		sink, err := deps.NewSink(sensor, req.Topic(sensor))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"Sensor": sensor,
				"Topic":  req.Topic(sensor),
			}).Errorf("Skipping sensor, cannot create sink: %v", err)
			continue
		}
		registry.Add(sensor, sink)
		dispatcher.AddSensor(sensor, req.DataType(sensor) == replay.DataTypeBus, sink)
		sensorworker.CreateSensorWorker(ctx, &wg, conf)
		started++
	}

	if started == 0 {
		registry.CloseAll()
		return fmt.Errorf("no sensor in the request could be started")
	}

	logrus.Infof("Session started with %d sensor workers (preview=%v)", started, req.Preview)
	wg.Wait()
	dispatcher.Flush()
	registry.CloseAll()
	logrus.Infof("Session finished")
	return nil
}

// loadCalibration fetches and parses the calibration document, but
// only when the request actually needs it. Plain replays never touch
// the calibration store.
func loadCalibration(ctx context.Context, deps *Deps, req *replay.Request) (*calibration.Calibration, error) {
	if !req.Undistorted() && !req.VehicleView() {
		return nil, nil
	}
	if deps.Calibration == nil {
		return nil, fmt.Errorf("request needs calibration but no calibration source is configured")
	}
	cal, err := calibration.Load(ctx, deps.Calibration)
	if err != nil {
		return nil, fmt.Errorf("loading calibration: %w", err)
	}
	return cal, nil
}

func sensorConfig(deps *Deps, req *replay.Request, cal *calibration.Calibration,
	sensor string, dispatcher *dispatch.Dispatcher) (*sensorworker.Config, error) {
	cursor, err := manifest.Open(deps.DB, req, sensor, deps.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	conf := &sensorworker.Config{
		Sensor:     sensor,
		DataType:   req.DataType(sensor),
		FrameID:    req.Frame(sensor),
		Preview:    req.Preview,
		Cursor:     cursor,
		Dispatcher: dispatcher,
		Remote:     deps.Remote,
		FetchRate:  deps.FetchRate,
		Depth:      deps.Depth,
	}
	if conf.DataType != replay.DataTypeBus {
		conv, err := convert.ForSensor(req, sensor, cal)
		if err != nil {
			return nil, err
		}
		conf.Converter = conv
		conf.Reader = deps.Reader
	}
	return conf, nil
}
