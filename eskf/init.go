package eskf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	fusion "github.com/txyxy/imu-x-fusion"
)

// InitAttitude performs static alignment over a window of inertial
// samples collected from a stationary platform. The mean specific
// force estimates the gravity direction sensed in the body frame; the
// returned rotation maps the body "up" axis onto the global ENU "up"
// axis. Heading is not observable from accelerometer data and is left
// aligned with the global X axis until corrected by later updates.
//
// It returns fusion.ErrInsufficientSamples when the window holds fewer
// than minCount samples and fusion.ErrExcessiveMotion when the per
// axis specific force standard deviation exceeds maxAccStd.
func InitAttitude(window []fusion.InertialSample, minCount int, maxAccStd float64) (*mat.Dense, error) {
	if len(window) < minCount {
		return nil, fmt.Errorf("%w: have %d, need %d",
			fusion.ErrInsufficientSamples, len(window), minCount)
	}

	var mean [3]float64
	for _, s := range window {
		for i := 0; i < 3; i++ {
			mean[i] += s.Force[i]
		}
	}
	n := float64(len(window))
	for i := 0; i < 3; i++ {
		mean[i] /= n
	}

	var variance [3]float64
	for _, s := range window {
		for i := 0; i < 3; i++ {
			d := s.Force[i] - mean[i]
			variance[i] += d * d
		}
	}
	for i := 0; i < 3; i++ {
		sd := math.Sqrt(variance[i] / n)
		if sd > maxAccStd {
			return nil, fmt.Errorf("%w: axis %d specific force std %.3f",
				fusion.ErrExcessiveMotion, i, sd)
		}
	}

	norm := math.Sqrt(mean[0]*mean[0] + mean[1]*mean[1] + mean[2]*mean[2])
	if norm < 1e-9 {
		return nil, fmt.Errorf("%w: zero mean specific force", fusion.ErrExcessiveMotion)
	}

	// body frame axis pointing opposite to gravity
	zAxis := mat.NewVecDense(3, []float64{mean[0] / norm, mean[1] / norm, mean[2] / norm})

	// project the global X axis out of the vertical to pin heading
	xAxis := mat.NewVecDense(3, []float64{1, 0, 0})
	xAxis.AddScaledVec(xAxis, -zAxis.AtVec(0), zAxis)
	xNorm := mat.Norm(xAxis, 2)
	if xNorm < 1e-9 {
		return nil, fmt.Errorf("%w: degenerate leveling solution", fusion.ErrExcessiveMotion)
	}
	xAxis.ScaleVec(1/xNorm, xAxis)

	yAxis := cross(zAxis, xAxis)

	// columns [x y z] map global axes into the body frame; the filter
	// carries the body to global rotation, its transpose
	rotGB := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		rotGB.Set(i, 0, xAxis.AtVec(i))
		rotGB.Set(i, 1, yAxis.AtVec(i))
		rotGB.Set(i, 2, zAxis.AtVec(i))
	}

	rot := mat.NewDense(3, 3, nil)
	rot.CloneFrom(rotGB.T())
	orthonormalize(rot)

	return rot, nil
}

func cross(a, b *mat.VecDense) *mat.VecDense {
	return mat.NewVecDense(3, []float64{
		a.AtVec(1)*b.AtVec(2) - a.AtVec(2)*b.AtVec(1),
		a.AtVec(2)*b.AtVec(0) - a.AtVec(0)*b.AtVec(2),
		a.AtVec(0)*b.AtVec(1) - a.AtVec(1)*b.AtVec(0),
	})
}
