package eskf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	fusion "github.com/txyxy/imu-x-fusion"
)

// Filter is the error-state Kalman filter. All methods mutate the
// owned state in place and must be serialized by the caller.
type Filter struct {
	// cfg holds the noise densities and initial uncertainties
	cfg fusion.Config
	// state is the owned nominal state and covariance
	state *State
	// gravity is the gravity vector in the global ENU frame
	gravity *mat.VecDense
	// leverArm is the body frame sensor offset
	leverArm *mat.VecDense
	// gain is the last computed Kalman gain
	gain *mat.Dense
}

// New creates a new error-state filter from cfg and returns it.
// It returns error if the configuration is invalid.
func New(cfg fusion.Config) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter configuration: %v", err)
	}

	return &Filter{
		cfg:      cfg,
		state:    NewState(),
		gravity:  mat.NewVecDense(3, []float64{0, 0, -fusion.Gravity}),
		leverArm: mat.NewVecDense(3, []float64{cfg.LeverArm[0], cfg.LeverArm[1], cfg.LeverArm[2]}),
		gain:     mat.NewDense(StateDim, MeasDim, nil),
	}, nil
}

// State returns the filter state. The returned state is the live
// object, not a copy; callers must respect the serialization contract.
func (f *Filter) State() *State {
	return f.state
}

// Initialize seeds the nominal state with the alignment rotation and
// timestamp and resets the covariance to the configured initial
// uncertainties. Position, velocity and biases start at zero.
func (f *Filter) Initialize(timestamp float64, rot *mat.Dense) {
	f.state = NewState()
	f.state.Timestamp = timestamp
	f.state.Rot.CloneFrom(rot)
	f.state.setCovDiag(
		f.cfg.SigmaPos, f.cfg.SigmaVel,
		f.cfg.SigmaRollPitch, f.cfg.SigmaYaw,
		f.cfg.SigmaAccBias, f.cfg.SigmaGyrBias,
	)
}

// Predict advances the nominal state through the strapdown
// mechanization and propagates the error covariance over the sample
// interval. Samples must arrive in strictly increasing timestamp
// order; a stale sample returns fusion.ErrOutOfOrderSample and leaves
// the state untouched.
//
// Position integrates the average of the pre and post update velocity
// (trapezoidal step); orientation integrates the body rate through the
// exponential map composed on the right of the current rotation.
func (f *Filter) Predict(sample fusion.InertialSample) error {
	s := f.state

	dt := sample.Timestamp - s.Timestamp
	if dt <= 0 {
		return fmt.Errorf("%w: sample %.6f, state %.6f",
			fusion.ErrOutOfOrderSample, sample.Timestamp, s.Timestamp)
	}

	// bias corrected measurements
	acc := mat.NewVecDense(3, []float64{sample.Force[0], sample.Force[1], sample.Force[2]})
	acc.SubVec(acc, s.AccBias)
	gyr := mat.NewVecDense(3, []float64{sample.Rate[0], sample.Rate[1], sample.Rate[2]})
	gyr.SubVec(gyr, s.GyrBias)

	// acceleration in the global frame
	accG := mat.NewVecDense(3, nil)
	accG.MulVec(s.Rot, acc)
	accG.AddVec(accG, f.gravity)

	velNew := mat.NewVecDense(3, nil)
	velNew.AddScaledVec(s.Vel, dt, accG)

	velMid := mat.NewVecDense(3, nil)
	velMid.AddVec(s.Vel, velNew)
	s.Pos.AddScaledVec(s.Pos, 0.5*dt, velMid)
	s.Vel.CopyVec(velNew)

	dTheta := mat.NewVecDense(3, nil)
	dTheta.ScaleVec(dt, gyr)
	s.Rot.Mul(s.Rot, ExpSO3(dTheta))

	f.propagateCov(acc, gyr, dt)

	s.Timestamp = sample.Timestamp

	return nil
}

// propagateCov performs P <- Phi P Phi' + Fi Qi Fi' with the first
// order discretization of the error state transition.
func (f *Filter) propagateCov(acc, gyr *mat.VecDense, dt float64) {
	s := f.state

	// error state transition
	phi := eye(StateDim)
	setBlock(phi, idxPos, idxVel, scaled(eye(3), dt))

	ra := &mat.Dense{}
	ra.Mul(s.Rot, Skew(acc))
	setBlock(phi, idxVel, idxAtt, scaled(ra, -dt))
	setBlock(phi, idxVel, idxAccBias, scaled(s.Rot, -dt))

	att := eye(3)
	att.Sub(att, scaled(Skew(gyr), dt))
	setBlock(phi, idxAtt, idxAtt, att)
	setBlock(phi, idxAtt, idxGyrBias, scaled(eye(3), -dt))

	// discrete process noise through the noise input mapping
	qd := mat.NewDense(StateDim, StateDim, nil)
	dt2 := dt * dt
	for i := 0; i < 3; i++ {
		qd.Set(idxVel+i, idxVel+i, dt2*f.cfg.AccNoise)
		qd.Set(idxAtt+i, idxAtt+i, dt2*f.cfg.GyrNoise)
		qd.Set(idxAccBias+i, idxAccBias+i, dt*f.cfg.AccBiasNoise)
		qd.Set(idxGyrBias+i, idxGyrBias+i, dt*f.cfg.GyrBiasNoise)
	}

	p := &mat.Dense{}
	p.Mul(phi, s.Cov)
	p.Mul(p, phi.T())
	p.Add(p, qd)

	copySym(s.Cov, p)
}

// Correct fuses an absolute position measurement of the offset sensor,
// expressed in the global ENU frame with covariance measCov, into the
// state. The Kalman correction is applied through the filter
// composition law: additive for position, velocity and biases, right
// composed through the exponential map for orientation.
func (f *Filter) Correct(pos mat.Vector, measCov mat.Symmetric) error {
	if pos.Len() != MeasDim {
		return fmt.Errorf("invalid measurement dimension: %d", pos.Len())
	}
	if measCov.SymmetricDim() != MeasDim {
		return fmt.Errorf("invalid measurement covariance dimension: %d", measCov.SymmetricDim())
	}

	s := f.state

	// predicted sensor position: p + R*l
	predicted := mat.NewVecDense(3, nil)
	predicted.MulVec(s.Rot, f.leverArm)
	predicted.AddVec(predicted, s.Pos)

	residual := mat.NewVecDense(3, nil)
	residual.SubVec(pos, predicted)

	h := f.measurementJacobian()

	// P*H'
	pht := &mat.Dense{}
	pht.Mul(s.Cov, h.T())

	// H*P*H' + R
	inn := &mat.Dense{}
	inn.Mul(h, pht)
	inn.Add(inn, measCov)

	innInv := &mat.Dense{}
	if err := innInv.Inverse(inn); err != nil {
		return fmt.Errorf("%w: %v", fusion.ErrNumericalDegeneracy, err)
	}

	f.gain.Mul(pht, innInv)

	// P <- (I - K*H)*P, symmetrized
	kh := &mat.Dense{}
	kh.Mul(f.gain, h)
	ikh := eye(StateDim)
	ikh.Sub(ikh, kh)

	p := &mat.Dense{}
	p.Mul(ikh, s.Cov)
	copySym(s.Cov, p)

	// compose the error state correction into the nominal state
	dx := mat.NewVecDense(StateDim, nil)
	dx.MulVec(f.gain, residual)

	for i := 0; i < 3; i++ {
		s.Pos.SetVec(i, s.Pos.AtVec(i)+dx.AtVec(idxPos+i))
		s.Vel.SetVec(i, s.Vel.AtVec(i)+dx.AtVec(idxVel+i))
		s.AccBias.SetVec(i, s.AccBias.AtVec(i)+dx.AtVec(idxAccBias+i))
		s.GyrBias.SetVec(i, s.GyrBias.AtVec(i)+dx.AtVec(idxGyrBias+i))
	}

	dTheta := mat.NewVecDense(3, []float64{
		dx.AtVec(idxAtt), dx.AtVec(idxAtt + 1), dx.AtVec(idxAtt + 2),
	})
	s.Rot.Mul(s.Rot, ExpSO3(dTheta))
	orthonormalize(s.Rot)

	return nil
}

// Residual returns the innovation the filter would see for a sensor
// position measurement against the current state.
func (f *Filter) Residual(pos mat.Vector) *mat.VecDense {
	predicted := mat.NewVecDense(3, nil)
	predicted.MulVec(f.state.Rot, f.leverArm)
	predicted.AddVec(predicted, f.state.Pos)

	residual := mat.NewVecDense(3, nil)
	residual.SubVec(pos, predicted)

	return residual
}

// Gain returns the last computed Kalman gain.
func (f *Filter) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(f.gain)

	return gain
}

// measurementJacobian builds H = [I 0 -R*skew(l) 0 0].
func (f *Filter) measurementJacobian() *mat.Dense {
	h := mat.NewDense(MeasDim, StateDim, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, idxPos+i, 1)
	}

	rl := &mat.Dense{}
	rl.Mul(f.state.Rot, Skew(f.leverArm))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.Set(i, idxAtt+j, -rl.At(i, j))
		}
	}

	return h
}

// copySym writes the symmetrized form of p into dst, guarding the
// covariance invariant against numerical drift.
func copySym(dst *mat.SymDense, p *mat.Dense) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (p.At(i, j) + p.At(j, i))
			if i == j && (math.IsNaN(v) || v < 0) {
				v = 0
			}
			dst.SetSym(i, j, v)
		}
	}
}

func setBlock(dst *mat.Dense, row, col int, src mat.Matrix) {
	r, c := src.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(row+i, col+j, src.At(i, j))
		}
	}
}

func scaled(m mat.Matrix, s float64) *mat.Dense {
	out := &mat.Dense{}
	out.Scale(s, m)

	return out
}
