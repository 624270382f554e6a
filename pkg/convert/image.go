package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoder for image.Decode
	"image/png"
	"math"

	"sensor-replay/pkg/calibration"
	"sensor-replay/pkg/messages"
)

// ImageConverter wraps camera frames. With a Camera set, frames are
// undistorted through the calibrated lens model and re-encoded;
// otherwise the original encoded bytes pass through untouched.
type ImageConverter struct {
	FrameID string
	Camera  *calibration.CameraInfo // nil for original mode
}

func (c *ImageConverter) Convert(path string, timestamp int64) (*messages.Message, error) {
	data, err := readRecordBytes(path)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image record '%s': %w", path, err)
	}

	frame := &messages.ImageFrame{
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Encoding: format,
		Data:     data,
	}
	if c.Camera != nil {
		corrected := undistort(img, c.Camera)
		var buf bytes.Buffer
		if err := png.Encode(&buf, corrected); err != nil {
			return nil, fmt.Errorf("re-encoding undistorted frame: %w", err)
		}
		frame.Encoding = "png"
		frame.Data = buf.Bytes()
	}

	return &messages.Message{
		Kind:      messages.KindImage,
		Timestamp: timestamp,
		FrameID:   c.FrameID,
		Image:     frame,
	}, nil
}

// undistort remaps the frame through the lens model: for every output
// pixel the undistorted ray is re-distorted and sampled from the
// original frame (nearest neighbor).
func undistort(src image.Image, cam *calibration.CameraInfo) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)

	fx := cam.CamMatrix[0][0]
	fy := cam.CamMatrix[1][1]
	cx := cam.CamMatrix[0][2]
	cy := cam.CamMatrix[1][2]
	ofx := cam.CamMatrixOriginal[0][0]
	ofy := cam.CamMatrixOriginal[1][1]
	ocx := cam.CamMatrixOriginal[0][2]
	ocy := cam.CamMatrixOriginal[1][2]

	for v := bounds.Min.Y; v < bounds.Max.Y; v++ {
		for u := bounds.Min.X; u < bounds.Max.X; u++ {
			x := (float64(u) - cx) / fx
			y := (float64(v) - cy) / fy
			xd, yd := distortPoint(x, y, cam.Lens, cam.Distortion)
			su := int(math.Round(ofx*xd + ocx))
			sv := int(math.Round(ofy*yd + ocy))
			if su >= bounds.Min.X && su < bounds.Max.X && sv >= bounds.Min.Y && sv < bounds.Max.Y {
				dst.Set(u, v, src.At(su, sv))
			} else {
				dst.Set(u, v, color.Black)
			}
		}
	}
	return dst
}

func distortPoint(x, y float64, lens string, dist []float64) (float64, float64) {
	k := func(i int) float64 {
		if i < len(dist) {
			return dist[i]
		}
		return 0
	}
	switch lens {
	case calibration.LensFisheye:
		// equidistant model with k1..k4
		r := math.Sqrt(x*x + y*y)
		if r < 1e-9 {
			return x, y
		}
		theta := math.Atan(r)
		t2 := theta * theta
		thetaD := theta * (1 + k(0)*t2 + k(1)*t2*t2 + k(2)*t2*t2*t2 + k(3)*t2*t2*t2*t2)
		s := thetaD / r
		return x * s, y * s
	default:
		// radial-tangential model with k1, k2, p1, p2, k3
		r2 := x*x + y*y
		radial := 1 + k(0)*r2 + k(1)*r2*r2 + k(4)*r2*r2*r2
		xd := x*radial + 2*k(2)*x*y + k(3)*(r2+2*x*x)
		yd := y*radial + k(2)*(r2+2*y*y) + 2*k(3)*x*y
		return xd, yd
	}
}
