// Package indexer watches a recording directory and queues newly
// settled record files into the replay index. Recordings land as
// <recording-dir>/<sensor-id>/<timestamp>.<ext>, optionally
// compressed; anything that does not match the layout is skipped.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sensor-replay/pkg/config"
	"sensor-replay/pkg/database"
)

func isDirectory(path string) (bool, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	return fileInfo.IsDir(), err
}

// ParseRecordPath splits a record path under root into its index row.
// The sensor id is the first directory component and the timestamp is
// the file name up to the first dot, so compressed records like
// "cam1/1652163029034.png.gz" index the same as uncompressed ones.
func ParseRecordPath(root, path string) (*database.Record, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if len(parts) < 2 || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("record '%s' is not under <sensor>/<timestamp>.<ext>", rel)
	}
	name := parts[len(parts)-1]
	stem, _, found := strings.Cut(name, ".")
	if !found {
		return nil, fmt.Errorf("record '%s' has no extension", rel)
	}
	timestamp, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("record '%s' has a non-numeric timestamp", rel)
	}
	return &database.Record{
		SensorID:  parts[0],
		Path:      rel,
		Timestamp: timestamp,
	}, nil
}

type indexerConfig struct {
	db     *gorm.DB
	root   string
	input  chan notify.EventInfo
	cache  map[string]time.Time
	settle time.Duration
}

// Recorders write large records in chunks, so a file is only indexed
// once it has stopped changing for a settle period.
func worker(ctx context.Context, conf *indexerConfig) {
	ticker := time.NewTicker(conf.settle / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			notify.Stop(conf.input)
			return
		case ei := <-conf.input:
			isdir, err := isDirectory(ei.Path())
			if err == nil && !isdir {
				conf.cache[ei.Path()] = time.Now()
				logrus.Infof("Noticed change in record '%s'", ei.Path())
			}
		case <-ticker.C:
			for path, lastupdated := range conf.cache {
				if time.Since(lastupdated) < conf.settle {
					continue
				}
				delete(conf.cache, path)
				record, err := ParseRecordPath(conf.root, path)
				if err != nil {
					logrus.Warnf("Skipping record: %v", err)
					continue
				}
				if err := database.QueueRecordForReplay(conf.db, record); err != nil {
					logrus.Errorf("Failed to queue record for replay: %v", err)
				} else {
					logrus.Infof("Record '%s' queued for replay", record.Path)
				}
			}
		}
	}
}

func CreateIndexer(ctx context.Context, db *gorm.DB, recordingDir string, settle time.Duration, input chan notify.EventInfo) {
	if err := notify.Watch(filepath.Join(recordingDir, "..."), input, notify.Write, notify.Create); err != nil {
		logrus.Errorf("Failed to watch dir with error: %v", err)
		return
	}
	conf := indexerConfig{
		db:     db,
		root:   recordingDir,
		input:  input,
		cache:  make(map[string]time.Time),
		settle: settle,
	}
	go worker(ctx, &conf)
}

func Indexer(ctx context.Context, db *gorm.DB, conf config.Config) {
	events := make(chan notify.EventInfo, 500)

	CreateIndexer(ctx, db, conf.RecordingDir, 30*time.Second, events)
}
