package eskf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Skew returns the skew symmetric cross product matrix of v.
// It panics if v is not a 3-vector.
func Skew(v mat.Vector) *mat.Dense {
	if v.Len() != 3 {
		panic("skew: not a 3-vector")
	}

	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)

	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// ExpSO3 returns the rotation matrix corresponding to the rotation
// vector v via the Rodrigues formula. Small angles fall back to the
// first order expansion for numerical stability.
func ExpSO3(v mat.Vector) *mat.Dense {
	if v.Len() != 3 {
		panic("expso3: not a 3-vector")
	}

	angle := math.Sqrt(v.AtVec(0)*v.AtVec(0) + v.AtVec(1)*v.AtVec(1) + v.AtVec(2)*v.AtVec(2))
	k := Skew(v)

	r := eye(3)
	if angle < 1e-10 {
		r.Add(r, k)
		return r
	}

	// R = I + sin(a)/a K + (1-cos(a))/a^2 K^2
	k2 := &mat.Dense{}
	k2.Mul(k, k)

	s := &mat.Dense{}
	s.Scale(math.Sin(angle)/angle, k)
	r.Add(r, s)

	c := &mat.Dense{}
	c.Scale((1-math.Cos(angle))/(angle*angle), k2)
	r.Add(r, c)

	return r
}

// Quaternion returns the unit quaternion (x, y, z, w) corresponding to
// the rotation matrix r, w non-negative.
func Quaternion(r mat.Matrix) (x, y, z, w float64) {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)

	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		w = 0.25 * s
		x = (r.At(2, 1) - r.At(1, 2)) / s
		y = (r.At(0, 2) - r.At(2, 0)) / s
		z = (r.At(1, 0) - r.At(0, 1)) / s
	case r.At(0, 0) > r.At(1, 1) && r.At(0, 0) > r.At(2, 2):
		s := 2 * math.Sqrt(1+r.At(0, 0)-r.At(1, 1)-r.At(2, 2))
		w = (r.At(2, 1) - r.At(1, 2)) / s
		x = 0.25 * s
		y = (r.At(0, 1) + r.At(1, 0)) / s
		z = (r.At(0, 2) + r.At(2, 0)) / s
	case r.At(1, 1) > r.At(2, 2):
		s := 2 * math.Sqrt(1+r.At(1, 1)-r.At(0, 0)-r.At(2, 2))
		w = (r.At(0, 2) - r.At(2, 0)) / s
		x = (r.At(0, 1) + r.At(1, 0)) / s
		y = 0.25 * s
		z = (r.At(1, 2) + r.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+r.At(2, 2)-r.At(0, 0)-r.At(1, 1))
		w = (r.At(1, 0) - r.At(0, 1)) / s
		x = (r.At(0, 2) + r.At(2, 0)) / s
		y = (r.At(1, 2) + r.At(2, 1)) / s
		z = 0.25 * s
	}

	n := math.Sqrt(x*x + y*y + z*z + w*w)
	x, y, z, w = x/n, y/n, z/n, w/n
	if w < 0 {
		x, y, z, w = -x, -y, -z, -w
	}

	return x, y, z, w
}

// RotationFromQuaternion returns the rotation matrix corresponding to
// the unit quaternion (x, y, z, w).
func RotationFromQuaternion(x, y, z, w float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}

// orthonormalize recomposes r through its quaternion, restoring
// orthonormality after repeated compositions.
func orthonormalize(r *mat.Dense) {
	x, y, z, w := Quaternion(r)
	r.Copy(RotationFromQuaternion(x, y, z, w))
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}

	return m
}
