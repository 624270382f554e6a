package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjeczalik/notify"
	"gorm.io/gorm"

	"sensor-replay/pkg/database"
)

func Test_isDirectory(t *testing.T) {
	type args struct {
		path string
	}
	tests := []struct {
		name    string
		args    args
		want    bool
		wantErr bool
	}{
		{"test-works", args{"."}, true, false},
		{"test-non-existent", args{"nonexistentdir"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := isDirectory(tt.args.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("isDirectory() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("isDirectory() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRecordPath(t *testing.T) {
	root := string(filepath.Separator) + "data"
	tests := []struct {
		name     string
		path     string
		sensor   string
		ts       int64
		wantErr  bool
		wantPath string
	}{
		{"test-image", filepath.Join(root, "cam_front_center", "1652163029034.png"), "cam_front_center", 1652163029034, false, "cam_front_center/1652163029034.png"},
		{"test-compressed", filepath.Join(root, "lidar_left", "42.pclb.gz"), "lidar_left", 42, false, "lidar_left/42.pclb.gz"},
		{"test-nested", filepath.Join(root, "cam1", "hour01", "99.png"), "cam1", 99, false, "cam1/hour01/99.png"},
		{"test-no-sensor-dir", filepath.Join(root, "stray.png"), "", 0, true, ""},
		{"test-no-extension", filepath.Join(root, "cam1", "123"), "", 0, true, ""},
		{"test-bad-timestamp", filepath.Join(root, "cam1", "latest.png"), "", 0, true, ""},
		{"test-outside-root", filepath.Join(string(filepath.Separator)+"elsewhere", "cam1", "1.png"), "", 0, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseRecordPath(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRecordPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if record.SensorID != tt.sensor || record.Timestamp != tt.ts || record.Path != tt.wantPath {
				t.Errorf("ParseRecordPath() = %+v", record)
			}
		})
	}
}

func TestCreateIndexer_baddir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// must not panic nor spawn a worker
	CreateIndexer(ctx, &gorm.DB{}, "nonexistentdir", time.Second, make(chan notify.EventInfo, 5))
}

func Test_worker_indexes_settled_records(t *testing.T) {
	db, err := database.OpenDatabase(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	full := filepath.Join(root, "cam1", "1000.png")
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, make([]byte, 20), os.ModePerm); err != nil {
		t.Fatal(err)
	}

	conf := indexerConfig{
		db:     db,
		root:   root,
		input:  make(chan notify.EventInfo, 5),
		cache:  map[string]time.Time{full: time.Now().Add(-time.Second)},
		settle: 30 * time.Millisecond,
	}
	if err := notify.Watch(filepath.Join(root, "..."), conf.input, notify.Write, notify.Create); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(500 * time.Millisecond)
		cancel()
	}()
	worker(ctx, &conf)

	var records []database.Record
	if err := db.Find(&records).Error; err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("indexed %d records, want 1", len(records))
	}
	if records[0].SensorID != "cam1" || records[0].Timestamp != 1000 {
		t.Errorf("indexed row = %+v", records[0])
	}
}
