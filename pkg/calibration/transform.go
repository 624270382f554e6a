package calibration

import (
	"fmt"
	"math"
)

// Transform is a rigid transform: p' = R*p + T.
type Transform struct {
	R [3][3]float64
	T [3]float64
}

// Apply transforms a single float32 point.
func (t *Transform) Apply(x, y, z float32) (float32, float32, float32) {
	px, py, pz := float64(x), float64(y), float64(z)
	ox := t.R[0][0]*px + t.R[0][1]*py + t.R[0][2]*pz + t.T[0]
	oy := t.R[1][0]*px + t.R[1][1]*py + t.R[1][2]*pz + t.T[1]
	oz := t.R[2][0]*px + t.R[2][1]*py + t.R[2][2]*pz + t.T[2]
	return float32(ox), float32(oy), float32(oz)
}

// ApplyAll transforms a flat xyz triplet slice in place.
func (t *Transform) ApplyAll(points []float32) {
	for i := 0; i+2 < len(points); i += 3 {
		points[i], points[i+1], points[i+2] = t.Apply(points[i], points[i+1], points[i+2])
	}
}

const axisEpsilon = 1e-10

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func scale(v [3]float64, s float64) [3]float64 {
	return [3]float64{v[0] * s, v[1] * s, v[2] * s}
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// axesOfView orthonormalizes the recorded view axes: x is normalized,
// y is made orthogonal to x, z completes the right-handed frame.
func axesOfView(v View) (x, y, z [3]float64, err error) {
	nx := norm(v.XAxis)
	if nx < axisEpsilon {
		return x, y, z, fmt.Errorf("view x-axis is degenerate")
	}
	x = scale(v.XAxis, 1/nx)

	y = sub(v.YAxis, scale(x, dot(v.YAxis, x)))
	ny := norm(y)
	if ny < axisEpsilon {
		return x, y, z, fmt.Errorf("view y-axis is degenerate")
	}
	y = scale(y, 1/ny)

	z = cross(x, y)
	return x, y, z, nil
}

// transformOfView builds the view-to-global rigid transform: the
// rotation columns are the view axes, the translation its origin.
func transformOfView(v View) (*Transform, error) {
	x, y, z, err := axesOfView(v)
	if err != nil {
		return nil, err
	}
	t := &Transform{T: v.Origin}
	for i := 0; i < 3; i++ {
		t.R[i][0] = x[i]
		t.R[i][1] = y[i]
		t.R[i][2] = z[i]
	}
	return t, nil
}

// inverse of a rigid transform: R', -R'*t.
func (t *Transform) inverse() *Transform {
	inv := &Transform{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv.R[i][j] = t.R[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		inv.T[i] = -(inv.R[i][0]*t.T[0] + inv.R[i][1]*t.T[1] + inv.R[i][2]*t.T[2])
	}
	return inv
}

func compose(a, b *Transform) *Transform {
	out := &Transform{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = a.R[i][0]*b.R[0][j] + a.R[i][1]*b.R[1][j] + a.R[i][2]*b.R[2][j]
		}
		out.T[i] = a.R[i][0]*b.T[0] + a.R[i][1]*b.T[1] + a.R[i][2]*b.T[2] + a.T[i]
	}
	return out
}

// transformFromTo maps points expressed in the src view into the dst
// view: inv(T_dst) * T_src.
func transformFromTo(src, dst View) (*Transform, error) {
	tsrc, err := transformOfView(src)
	if err != nil {
		return nil, fmt.Errorf("source view: %w", err)
	}
	tdst, err := transformOfView(dst)
	if err != nil {
		return nil, fmt.Errorf("target view: %w", err)
	}
	return compose(tdst.inverse(), tsrc), nil
}
