// Package sensorworker runs one producer per requested sensor: it
// pulls manifest-ordered record batches, converts each record to a
// message and submits it through the shared dispatcher. Remote-backed
// sensors overlap fetch and conversion through a prefetch pipeline.
package sensorworker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sensor-replay/pkg/convert"
	"sensor-replay/pkg/database"
	"sensor-replay/pkg/dispatch"
	"sensor-replay/pkg/manifest"
	"sensor-replay/pkg/prefetch"
	"sensor-replay/pkg/replay"
	"sensor-replay/pkg/storage"
)

const (
	manifestPollInterval = 100 * time.Millisecond
	prefetchJoinTimeout  = 2 * time.Second
)

type Config struct {
	Sensor     string
	DataType   replay.DataType
	FrameID    string
	Preview    bool
	Cursor     *manifest.Cursor
	Dispatcher *dispatch.Dispatcher
	Converter  convert.RecordConverter // nil for bus telemetry
	Reader     storage.Reader          // nil for bus telemetry
	Remote     bool                    // route reads through the prefetch pipeline
	FetchRate  int
	Depth      int
}

func CreateSensorWorker(ctx context.Context, wg *sync.WaitGroup, conf *Config) {
	wg.Add(1)
	go worker(ctx, wg, conf)
}

func worker(ctx context.Context, wg *sync.WaitGroup, conf *Config) {
	defer wg.Done()
	defer conf.Dispatcher.SetInactive(conf.Sensor)

	var pf *prefetch.Prefetcher
	if conf.Remote && conf.DataType != replay.DataTypeBus {
		pf = prefetch.CreatePrefetcher(ctx, conf.Reader, conf.FetchRate, conf.Depth)
		defer func() {
			pf.Close()
			pf.Join(prefetchJoinTimeout)
		}()
	}

	for {
		batch, err := nextBatch(ctx, conf.Cursor)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"Sensor": conf.Sensor,
			}).Errorf("Error fetching manifest batch: %v", err)
			return
		}
		if batch == nil {
			return
		}

		switch {
		case conf.DataType == replay.DataTypeBus:
			processSignals(ctx, conf, batch.Signals)
		case pf != nil:
			processRemote(ctx, conf, pf, batch.Records)
		default:
			processLocal(ctx, conf, batch.Records)
		}

		if conf.Preview {
			return
		}
	}
}

// nextBatch polls the manifest until it yields records or closes.
// An empty batch while the cursor is still open means "try again".
func nextBatch(ctx context.Context, cursor *manifest.Cursor) (*manifest.Batch, error) {
	ticker := time.NewTicker(manifestPollInterval)
	defer ticker.Stop()
	for cursor.IsOpen() {
		batch, err := cursor.Fetch()
		if err != nil {
			return nil, err
		}
		if batch.Len() > 0 {
			return &batch, nil
		}
		if !cursor.IsOpen() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, nil
}

func processSignals(ctx context.Context, conf *Config, rows []database.BusSignal) {
	for i := range rows {
		if ctx.Err() != nil {
			return
		}
		conf.Dispatcher.Submit(conf.Sensor, convert.BusSignal(&rows[i], conf.FrameID))
	}
}

func processLocal(ctx context.Context, conf *Config, records []database.Record) {
	for i := range records {
		if ctx.Err() != nil {
			return
		}
		rec := &records[i]
		path, temp, err := conf.Reader.ReadRecord(ctx, storage.RecordLocator(rec))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"Sensor": conf.Sensor,
				"Path":   rec.Path,
			}).Errorf("Error reading record: %v", err)
			continue
		}
		submitRecord(conf, path, temp, rec.Timestamp)
	}
}

// processRemote pushes the whole batch into the prefetch pipeline and
// drains one response per record. Responses arrive in request order.
func processRemote(ctx context.Context, conf *Config, pf *prefetch.Prefetcher, records []database.Record) {
	go func() {
		for i := range records {
			if !pf.Enqueue(storage.RecordLocator(&records[i])) {
				return
			}
		}
	}()
	for i := range records {
		var res prefetch.Result
		var ok bool
		select {
		case <-ctx.Done():
			return
		case res, ok = <-pf.Responses():
			if !ok {
				return
			}
		}
		if res.Err != nil {
			logrus.WithFields(logrus.Fields{
				"Sensor":  conf.Sensor,
				"Locator": res.Locator,
			}).Errorf("Error fetching record: %v", res.Err)
			continue
		}
		submitRecord(conf, res.Path, res.Temp, records[i].Timestamp)
	}
}

func submitRecord(conf *Config, path string, temp bool, timestamp int64) {
	msg, err := conf.Converter.Convert(path, timestamp)
	if temp {
		os.Remove(path)
	}
	if err == convert.ErrNaNPointCloud {
		// recording artifact, skip without noise
		logrus.WithFields(logrus.Fields{
			"Sensor": conf.Sensor,
		}).Debugf("Skipping point cloud with NaN coordinates at ts=%d", timestamp)
		return
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"Sensor": conf.Sensor,
			"Record": path,
		}).Errorf("Error converting record: %v", err)
		return
	}
	conf.Dispatcher.Submit(conf.Sensor, msg)
}
