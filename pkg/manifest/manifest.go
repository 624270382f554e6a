// Package manifest provides the ordered, resumable cursor over one
// sensor's indexed records for a replay session. A cursor pages through
// the record index in timestamp order; a batch may be empty while the
// cursor is still open, which callers treat as "try again".
package manifest

import (
	"fmt"

	"gorm.io/gorm"

	"sensor-replay/pkg/database"
	"sensor-replay/pkg/replay"
)

const DefaultBatchSize = 32

// Batch is one manifest fetch result. Exactly one of Records or
// Signals is populated, depending on the sensor's data type.
type Batch struct {
	Records []database.Record
	Signals []database.BusSignal
}

func (b Batch) Len() int {
	return len(b.Records) + len(b.Signals)
}

type Cursor struct {
	db        *gorm.DB
	sensor    string
	dataType  replay.DataType
	batchSize int
	offset    int
	total     int64
}

func Open(db *gorm.DB, req *replay.Request, sensor string, batchSize int) (*Cursor, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	c := &Cursor{
		db:        db,
		sensor:    sensor,
		dataType:  req.DataType(sensor),
		batchSize: batchSize,
	}

	var err error
	if c.dataType == replay.DataTypeBus {
		err = db.Model(&database.BusSignal{}).Where("sensor_id = ?", sensor).Count(&c.total).Error
	} else {
		err = db.Model(&database.Record{}).Where("sensor_id = ?", sensor).Count(&c.total).Error
	}
	if err != nil {
		return nil, fmt.Errorf("opening manifest for sensor '%s': %w", sensor, err)
	}
	return c, nil
}

// IsOpen reports whether the cursor may still yield records.
func (c *Cursor) IsOpen() bool {
	return int64(c.offset) < c.total
}

// Fetch returns the next batch in timestamp order (id as tiebreak).
// The returned batch may be empty while IsOpen is still true if the
// underlying index shrank; callers poll again in that case.
func (c *Cursor) Fetch() (Batch, error) {
	var batch Batch
	if !c.IsOpen() {
		return batch, nil
	}

	var err error
	if c.dataType == replay.DataTypeBus {
		err = c.db.Where("sensor_id = ?", c.sensor).
			Order("timestamp, id").
			Offset(c.offset).Limit(c.batchSize).
			Find(&batch.Signals).Error
	} else {
		err = c.db.Where("sensor_id = ?", c.sensor).
			Order("timestamp, id").
			Offset(c.offset).Limit(c.batchSize).
			Find(&batch.Records).Error
	}
	if err != nil {
		return Batch{}, fmt.Errorf("fetching manifest batch for sensor '%s': %w", c.sensor, err)
	}

	n := batch.Len()
	if n == 0 {
		// Index shrank underneath us, close the cursor
		c.total = int64(c.offset)
		return Batch{}, nil
	}
	c.offset += n
	return batch, nil
}
