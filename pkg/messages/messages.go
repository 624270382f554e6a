package messages

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zhuangsirui/binpacker"
)

type Kind uint32

const (
	KindImage Kind = iota + 1
	KindPointCloud
	KindBus
)

// ImageFrame carries an encoded camera frame.
type ImageFrame struct {
	Width    int
	Height   int
	Encoding string // "png" or "jpeg"
	Data     []byte
}

// PointCloud carries a dense cloud as a flat x,y,z triplet array plus
// one reflectance value per point.
type PointCloud struct {
	Points      []float32
	Reflectance []float32
}

func (p *PointCloud) NumPoints() int {
	return len(p.Points) / 3
}

// BusRecord is one converted vehicle-bus telemetry row.
type BusRecord struct {
	VehicleSpeed     float64
	AccelerationX    float64
	AccelerationY    float64
	AccelerationZ    float64
	AngularVelocityX float64
	AngularVelocityY float64
	AngularVelocityZ float64
	SteeringAngle    float64
	BrakePressure    float64
	AcceleratorPedal float64
}

// Message is one publish-ready unit. Exactly one of Image, Cloud or
// Bus is set, matching Kind. Immutable once constructed.
type Message struct {
	Kind      Kind
	Timestamp int64 // nanoseconds
	FrameID   string
	Image     *ImageFrame
	Cloud     *PointCloud
	Bus       *BusRecord
}

// Encode packs a message into the binary wire format.
// The layout is fixed-field, length-prefixed where variable.
func (m *Message) Encode() ([]byte, error) {
	buffer := new(bytes.Buffer)
	packer := binpacker.NewPacker(binary.BigEndian, buffer)
	packer.PushUint32(uint32(m.Kind))
	packer.PushUint64(uint64(m.Timestamp))
	frame := []byte(m.FrameID)
	packer.PushUint32(uint32(len(frame)))
	packer.PushBytes(frame)

	switch m.Kind {
	case KindImage:
		packer.PushUint32(uint32(m.Image.Width))
		packer.PushUint32(uint32(m.Image.Height))
		enc := []byte(m.Image.Encoding)
		packer.PushUint32(uint32(len(enc)))
		packer.PushBytes(enc)
		packer.PushUint32(uint32(len(m.Image.Data)))
		packer.PushBytes(m.Image.Data)
	case KindPointCloud:
		packer.PushUint32(uint32(m.Cloud.NumPoints()))
		packer.PushBytes(packFloats(m.Cloud.Points))
		packer.PushBytes(packFloats(m.Cloud.Reflectance))
	case KindBus:
		for _, v := range m.Bus.fields() {
			packer.PushUint64(math.Float64bits(v))
		}
	default:
		return nil, fmt.Errorf("cannot encode message of kind %d", m.Kind)
	}

	return buffer.Bytes(), packer.Error()
}

// Decode unpacks a wire buffer back into a Message.
func Decode(data []byte) (*Message, error) {
	var m Message

	buffer := bytes.NewBuffer(data)
	unpacker := binpacker.NewUnpacker(binary.BigEndian, buffer)
	var kind uint32
	unpacker.FetchUint32(&kind)
	m.Kind = Kind(kind)
	var ts uint64
	unpacker.FetchUint64(&ts)
	m.Timestamp = int64(ts)
	unpacker.StringWithUint32Prefix(&m.FrameID)

	switch m.Kind {
	case KindImage:
		img := ImageFrame{}
		var w, h uint32
		unpacker.FetchUint32(&w)
		unpacker.FetchUint32(&h)
		img.Width, img.Height = int(w), int(h)
		unpacker.StringWithUint32Prefix(&img.Encoding)
		unpacker.BytesWithUint32Prefix(&img.Data)
		m.Image = &img
	case KindPointCloud:
		var count uint32
		unpacker.FetchUint32(&count)
		var pointbytes, reflbytes []byte
		unpacker.FetchBytes(uint64(count)*12, &pointbytes)
		unpacker.FetchBytes(uint64(count)*4, &reflbytes)
		if err := unpacker.Error(); err != nil {
			return nil, err
		}
		m.Cloud = &PointCloud{
			Points:      unpackFloats(pointbytes),
			Reflectance: unpackFloats(reflbytes),
		}
	case KindBus:
		bus := BusRecord{}
		for _, field := range bus.fieldPtrs() {
			var bits uint64
			unpacker.FetchUint64(&bits)
			*field = math.Float64frombits(bits)
		}
		m.Bus = &bus
	default:
		return nil, fmt.Errorf("cannot decode message of kind %d", kind)
	}

	return &m, unpacker.Error()
}

func (b *BusRecord) fields() []float64 {
	return []float64{
		b.VehicleSpeed,
		b.AccelerationX, b.AccelerationY, b.AccelerationZ,
		b.AngularVelocityX, b.AngularVelocityY, b.AngularVelocityZ,
		b.SteeringAngle, b.BrakePressure, b.AcceleratorPedal,
	}
}

func (b *BusRecord) fieldPtrs() []*float64 {
	return []*float64{
		&b.VehicleSpeed,
		&b.AccelerationX, &b.AccelerationY, &b.AccelerationZ,
		&b.AngularVelocityX, &b.AngularVelocityY, &b.AngularVelocityZ,
		&b.SteeringAngle, &b.BrakePressure, &b.AcceleratorPedal,
	}
}

func packFloats(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func unpackFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
	}
	return out
}
