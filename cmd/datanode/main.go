package main

import (
	"context"
	"sensor-replay/pkg/calibration"
	"sensor-replay/pkg/config"
	"sensor-replay/pkg/database"
	"sensor-replay/pkg/publisher"
	"sensor-replay/pkg/session"
	"sensor-replay/pkg/storage"
	"sensor-replay/pkg/trigger"
	"sensor-replay/pkg/utils"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

func buildDeps(ctx context.Context, conf config.Config, nc *nats.Conn) (*session.Deps, error) {
	db, err := database.OpenDatabase(conf.DatabasePath)
	if err != nil {
		return nil, err
	}

	deps := &session.Deps{
		DB:        db,
		BatchSize: conf.BatchSize,
		FetchRate: conf.FetchRatePerSec,
		Depth:     conf.PrefetchDepth,
		NewSink: func(sensor, topic string) (publisher.Sink, error) {
			return publisher.NewNatsSink(nc, topic), nil
		},
	}

	if conf.DataStore == "s3" {
		reader, err := storage.NewS3Reader(ctx, conf.S3Region, conf.ScratchDir)
		if err != nil {
			return nil, err
		}
		deps.Reader = reader
		deps.Remote = true
		if conf.CalibrationBucket != "" {
			deps.Calibration = reader.CalibrationLoader(conf.CalibrationBucket, conf.CalibrationKey)
		}
	} else {
		deps.Reader = &storage.FSReader{Root: conf.RecordingDir, ScratchDir: conf.ScratchDir}
		if conf.CalibrationFile != "" {
			deps.Calibration = calibration.FileLoader(conf.CalibrationFile)
		}
	}
	return deps, nil
}

func main() {
	utils.InitializeLogging("datanode.log")
	conf, err := config.GetConfig("config.toml")
	if err != nil {
		logrus.Errorf("Failed reading config with err %v", err)
		return
	}

	nc, err := nats.Connect(conf.NatsURL)
	if err != nil {
		logrus.Errorf("Failed connecting to NATS at '%s': %v", conf.NatsURL, err)
		return
	}
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background()) // Create a cancelable context and pass it to all goroutines, allows us to gracefully shut down the program
	defer cancel()

	deps, err := buildDeps(ctx, conf, nc)
	if err != nil {
		logrus.Errorf("%v", err)
		return
	}

	var wg sync.WaitGroup
	handler := func(ctx context.Context, raw []byte) error {
		return session.Handle(ctx, deps, raw)
	}
	if err := trigger.CreateTrigger(ctx, &wg, nc, conf.RequestSubject, handler); err != nil {
		logrus.Errorf("Failed subscribing to '%s': %v", conf.RequestSubject, err)
		return
	}
	logrus.Infof("Data node ready, waiting for requests on '%s'", conf.RequestSubject)

	<-utils.CtrlC()
	cancel() // Gracefully shutdown and stop all goroutines
	wg.Wait()
}
