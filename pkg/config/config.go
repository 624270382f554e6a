package config

import (
	"github.com/BurntSushi/toml"
)

type Config struct {
	NatsURL           string
	RequestSubject    string
	DatabasePath      string
	DataStore         string // "fs" or "s3"
	RecordingDir      string
	S3Region          string
	ScratchDir        string
	CalibrationFile   string
	CalibrationBucket string
	CalibrationKey    string
	FetchRatePerSec   int
	PrefetchDepth     int
	BatchSize         int
	LogFile           string
}

func GetConfig(file string) (Config, error) {
	conf := Config{
		NatsURL:        "nats://127.0.0.1:4222",
		RequestSubject: "replay.data_request",
		ScratchDir:     "/tmp",
		PrefetchDepth:  8,
		BatchSize:      32,
	}
	_, err := toml.DecodeFile(file, &conf)
	return conf, err
}
