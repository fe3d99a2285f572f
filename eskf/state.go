// Package eskf implements a 15 state error-state Kalman filter fusing
// body frame inertial measurements with absolute position fixes
// expressed in a local East-North-Up frame.
//
// The nominal state (position, velocity, orientation, accelerometer and
// gyroscope biases) is propagated through the nonlinear strapdown
// mechanization while the filter covariance and gain operate on the
// linear error state (dp, dv, dtheta, dba, dbg). Corrections are
// composed back into the nominal state: additively for the vector
// components and through the SO(3) exponential map for orientation.
package eskf

import "gonum.org/v1/gonum/mat"

// Error state dimensions and block offsets.
const (
	// StateDim is the error state dimension
	StateDim = 15
	// MeasDim is the position measurement dimension
	MeasDim = 3

	idxPos     = 0
	idxVel     = 3
	idxAtt     = 6
	idxAccBias = 9
	idxGyrBias = 12
)

// State is the nominal filter state together with the error state
// covariance. Orientation is the rotation from the body frame to the
// global East-North-Up frame and is always a valid rotation matrix.
type State struct {
	// Timestamp of the last sample folded into the state [s]
	Timestamp float64
	// Pos is position in the global frame [m]
	Pos *mat.VecDense
	// Vel is velocity in the global frame [m/s]
	Vel *mat.VecDense
	// Rot is the body to global rotation matrix
	Rot *mat.Dense
	// AccBias is the accelerometer bias [m/s^2]
	AccBias *mat.VecDense
	// GyrBias is the gyroscope bias [rad/s]
	GyrBias *mat.VecDense
	// Cov is the 15x15 error state covariance
	Cov *mat.SymDense
}

// NewState returns a zeroed state with identity orientation and zero
// covariance.
func NewState() *State {
	return &State{
		Pos:     mat.NewVecDense(3, nil),
		Vel:     mat.NewVecDense(3, nil),
		Rot:     eye(3),
		AccBias: mat.NewVecDense(3, nil),
		GyrBias: mat.NewVecDense(3, nil),
		Cov:     mat.NewSymDense(StateDim, nil),
	}
}

// Copy returns a deep copy of the state.
func (s *State) Copy() *State {
	c := NewState()
	c.Timestamp = s.Timestamp
	c.Pos.CloneFromVec(s.Pos)
	c.Vel.CloneFromVec(s.Vel)
	c.Rot.CloneFrom(s.Rot)
	c.AccBias.CloneFromVec(s.AccBias)
	c.GyrBias.CloneFromVec(s.GyrBias)
	c.Cov.CopySym(s.Cov)

	return c
}

// Quaternion returns the orientation as a unit quaternion (x, y, z, w).
func (s *State) Quaternion() (x, y, z, w float64) {
	return Quaternion(s.Rot)
}

// PoseCov returns the 6x6 pose covariance: the position-position,
// position-attitude, attitude-position and attitude-attitude blocks of
// the error state covariance.
func (s *State) PoseCov() *mat.SymDense {
	p := mat.NewSymDense(6, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			p.SetSym(i, j, s.Cov.At(idxPos+i, idxPos+j))
			p.SetSym(i+3, j+3, s.Cov.At(idxAtt+i, idxAtt+j))
		}
		for j := 0; j < 3; j++ {
			p.SetSym(i, j+3, s.Cov.At(idxPos+i, idxAtt+j))
		}
	}

	return p
}

// setCovDiag sets the covariance to a block diagonal built from the
// configured initial standard deviations.
func (s *State) setCovDiag(sigmaPos, sigmaVel, sigmaRP, sigmaYaw, sigmaBA, sigmaBG float64) {
	diag := [StateDim]float64{
		sigmaPos, sigmaPos, sigmaPos,
		sigmaVel, sigmaVel, sigmaVel,
		sigmaRP, sigmaRP, sigmaYaw,
		sigmaBA, sigmaBA, sigmaBA,
		sigmaBG, sigmaBG, sigmaBG,
	}

	s.Cov = mat.NewSymDense(StateDim, nil)
	for i, sd := range diag {
		s.Cov.SetSym(i, i, sd*sd)
	}
}
