// Package estimate provides the filtered pose estimate published to
// collaborators after each successful measurement update.
package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Pose is a filtered pose estimate.
type Pose struct {
	// Timestamp is the filter time of the estimate [s]
	Timestamp float64
	// pos is position in the global frame
	pos *mat.VecDense
	// vel is velocity in the global frame
	vel *mat.VecDense
	// quat is orientation as a unit quaternion (x, y, z, w)
	quat [4]float64
	// cov is the 6x6 pose covariance (position and attitude blocks)
	cov *mat.SymDense
}

// NewPose returns a pose estimate given position, velocity, orientation
// quaternion and the 6x6 pose covariance. It returns error if the
// supplied dimensions do not match.
func NewPose(timestamp float64, pos, vel mat.Vector, quat [4]float64, cov mat.Symmetric) (*Pose, error) {
	if pos.Len() != 3 || vel.Len() != 3 {
		return nil, fmt.Errorf("invalid dimensions: pos %d, vel %d", pos.Len(), vel.Len())
	}

	if cov.SymmetricDim() != 6 {
		return nil, fmt.Errorf("invalid pose covariance dimension: %d", cov.SymmetricDim())
	}

	p := &mat.VecDense{}
	p.CloneFromVec(pos)

	v := &mat.VecDense{}
	v.CloneFromVec(vel)

	c := mat.NewSymDense(6, nil)
	c.CopySym(cov)

	return &Pose{
		Timestamp: timestamp,
		pos:       p,
		vel:       v,
		quat:      quat,
		cov:       c,
	}, nil
}

// Position returns the estimated global position.
func (p *Pose) Position() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(p.pos)

	return v
}

// Velocity returns the estimated global velocity.
func (p *Pose) Velocity() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(p.vel)

	return v
}

// Quaternion returns the estimated orientation as (x, y, z, w).
func (p *Pose) Quaternion() [4]float64 {
	return p.quat
}

// Cov returns the 6x6 pose covariance.
func (p *Pose) Cov() mat.Symmetric {
	cov := mat.NewSymDense(6, nil)
	cov.CopySym(p.cov)

	return cov
}

// CovRowMajor returns the pose covariance flattened row major, the
// layout expected by odometry consumers.
func (p *Pose) CovRowMajor() []float64 {
	out := make([]float64, 36)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			out[6*i+j] = p.cov.At(i, j)
		}
	}

	return out
}
