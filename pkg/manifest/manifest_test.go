package manifest_test

import (
	"fmt"
	"path/filepath"
	"sensor-replay/pkg/database"
	"sensor-replay/pkg/manifest"
	"sensor-replay/pkg/replay"
	"testing"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenDatabase(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func testRequest(t *testing.T, sensor, dataType string) *replay.Request {
	t.Helper()
	doc := fmt.Sprintf(`{"sensor_id":["%s"],"ros_topic":{"%s":"/t"},"data_type":{"%s":"%s"}}`,
		sensor, sensor, sensor, dataType)
	req, err := replay.ParseRequest([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestCursorOrderAndExhaustion(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	// insert out of order, expect timestamp order back
	for _, ts := range []int64{30, 10, 20, 50, 40} {
		err := database.QueueRecordForReplay(db, &database.Record{
			SensorID:  "cam1",
			Path:      fmt.Sprintf("cam1/%d.png", ts),
			Timestamp: ts,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	cur, err := manifest.Open(db, testRequest(t, "cam1", "image"), "cam1", 2)
	if err != nil {
		t.Fatal(err)
	}

	var got []int64
	batches := 0
	for cur.IsOpen() {
		batch, err := cur.Fetch()
		if err != nil {
			t.Fatal(err)
		}
		if batch.Len() == 0 {
			break
		}
		batches++
		for _, rec := range batch.Records {
			got = append(got, rec.Timestamp)
		}
	}
	want := []int64{10, 20, 30, 40, 50}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d has ts %d, want %d", i, got[i], want[i])
		}
	}
	if batches != 3 {
		t.Errorf("got %d batches for 5 records with batch size 2", batches)
	}
	if cur.IsOpen() {
		t.Error("cursor still open after exhaustion")
	}
}

func TestCursorBusSignals(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	for ts := int64(1); ts <= 3; ts++ {
		err := database.QueueBusSignal(db, &database.BusSignal{
			SensorID:     "bus1",
			Timestamp:    ts,
			VehicleSpeed: float64(ts) * 2,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	cur, err := manifest.Open(db, testRequest(t, "bus1", "bus-telemetry"), "bus1", 10)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := cur.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Signals) != 3 || len(batch.Records) != 0 {
		t.Fatalf("batch has %d signals, %d records", len(batch.Signals), len(batch.Records))
	}
	if batch.Signals[0].VehicleSpeed != 2 {
		t.Errorf("first signal speed = %f", batch.Signals[0].VehicleSpeed)
	}
	if cur.IsOpen() {
		t.Error("cursor open after draining all signals")
	}
}

func TestCursorEmptySensor(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	cur, err := manifest.Open(db, testRequest(t, "ghost", "image"), "ghost", 4)
	if err != nil {
		t.Fatal(err)
	}
	if cur.IsOpen() {
		t.Fatal("cursor for an unindexed sensor should not be open")
	}
	batch, err := cur.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 0 {
		t.Fatalf("batch.Len() = %d", batch.Len())
	}
}
