package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/zhuangsirui/binpacker"
)

// Point cloud records are stored as a fixed binary layout:
// magic "PCLB", point count, count*3 float32 coordinates, count
// float32 reflectance values, all big endian.

var pclMagic = []byte("PCLB")

func EncodePointCloud(points, reflectance []float32) ([]byte, error) {
	if len(points) != 3*len(reflectance) {
		return nil, fmt.Errorf("point/reflectance length mismatch: %d vs %d", len(points), len(reflectance))
	}
	buffer := new(bytes.Buffer)
	packer := binpacker.NewPacker(binary.BigEndian, buffer)
	packer.PushBytes(pclMagic)
	packer.PushUint32(uint32(len(reflectance)))
	packer.PushBytes(floatBytes(points))
	packer.PushBytes(floatBytes(reflectance))
	return buffer.Bytes(), packer.Error()
}

func DecodePointCloud(path string) (points, reflectance []float32, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	buffer := bytes.NewBuffer(data)
	unpacker := binpacker.NewUnpacker(binary.BigEndian, buffer)
	var magic []byte
	unpacker.FetchBytes(uint64(len(pclMagic)), &magic)
	if err := unpacker.Error(); err != nil {
		return nil, nil, fmt.Errorf("short point cloud record '%s': %w", path, err)
	}
	if !bytes.Equal(magic, pclMagic) {
		return nil, nil, fmt.Errorf("'%s' is not a point cloud record", path)
	}
	var count uint32
	unpacker.FetchUint32(&count)
	var pointdata, refldata []byte
	unpacker.FetchBytes(uint64(count)*12, &pointdata)
	unpacker.FetchBytes(uint64(count)*4, &refldata)
	if err := unpacker.Error(); err != nil {
		return nil, nil, fmt.Errorf("truncated point cloud record '%s': %w", path, err)
	}
	return bytesToFloats(pointdata), bytesToFloats(refldata), nil
}

func floatBytes(vals []float32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
	}
	return out
}
