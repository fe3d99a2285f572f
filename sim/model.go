// Package sim generates synthetic inertial and absolute position
// streams along an analytic trajectory, for demos and end to end
// filter tests.
package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	fusion "github.com/txyxy/imu-x-fusion"
	"github.com/txyxy/imu-x-fusion/geo"
	"github.com/txyxy/imu-x-fusion/noise"
)

// Trajectory is the analytic truth: a platform circling in the local
// East-North plane at constant angular rate, starting at the anchor
// with the body frame held aligned to the global frame.
type Trajectory struct {
	// Radius of the circular track [m]
	Radius float64
	// Omega is the track angular rate [rad/s]
	Omega float64
	// Anchor is the geodetic origin of the track
	Anchor geo.LLA
}

// Position returns the truth position at time t in the local frame.
func (tr Trajectory) Position(t float64) *mat.VecDense {
	wt := tr.Omega * t

	return mat.NewVecDense(3, []float64{
		tr.Radius * (math.Cos(wt) - 1),
		tr.Radius * math.Sin(wt),
		0,
	})
}

// Velocity returns the truth velocity at time t in the local frame.
func (tr Trajectory) Velocity(t float64) *mat.VecDense {
	wt := tr.Omega * t
	rw := tr.Radius * tr.Omega

	return mat.NewVecDense(3, []float64{
		-rw * math.Sin(wt),
		rw * math.Cos(wt),
		0,
	})
}

// acceleration returns the truth acceleration at time t.
func (tr Trajectory) acceleration(t float64) [3]float64 {
	wt := tr.Omega * t
	rw2 := tr.Radius * tr.Omega * tr.Omega

	return [3]float64{
		-rw2 * math.Cos(wt),
		-rw2 * math.Sin(wt),
		0,
	}
}

// Generator corrupts the trajectory's ideal sensor streams with the
// configured noise sources.
type Generator struct {
	traj     Trajectory
	accNoise noise.Source
	gyrNoise noise.Source
	fixNoise noise.Source
}

// NewGenerator creates a new sensor stream generator. Each noise
// source must be 3 dimensional; nil sources default to ideal sensors.
func NewGenerator(traj Trajectory, accNoise, gyrNoise, fixNoise noise.Source) (*Generator, error) {
	for _, src := range []noise.Source{accNoise, gyrNoise, fixNoise} {
		if src != nil && src.Cov().SymmetricDim() != 3 {
			return nil, fmt.Errorf("invalid noise dimension: %d", src.Cov().SymmetricDim())
		}
	}

	var err error
	if accNoise == nil {
		if accNoise, err = noise.NewZero(3); err != nil {
			return nil, err
		}
	}
	if gyrNoise == nil {
		if gyrNoise, err = noise.NewZero(3); err != nil {
			return nil, err
		}
	}
	if fixNoise == nil {
		if fixNoise, err = noise.NewZero(3); err != nil {
			return nil, err
		}
	}

	return &Generator{
		traj:     traj,
		accNoise: accNoise,
		gyrNoise: gyrNoise,
		fixNoise: fixNoise,
	}, nil
}

// Trajectory returns the truth trajectory the generator samples.
func (g *Generator) Trajectory() Trajectory {
	return g.traj
}

// Inertial returns the noisy inertial sample at time t. With the body
// frame aligned to the global frame the specific force is the truth
// acceleration minus gravity and the angular rate is zero.
func (g *Generator) Inertial(t float64) fusion.InertialSample {
	acc := g.traj.acceleration(t)
	an := g.accNoise.Sample()
	gn := g.gyrNoise.Sample()

	return fusion.InertialSample{
		Timestamp: t,
		Force: [3]float64{
			acc[0] + an.AtVec(0),
			acc[1] + an.AtVec(1),
			acc[2] + fusion.Gravity + an.AtVec(2),
		},
		Rate: [3]float64{gn.AtVec(0), gn.AtVec(1), gn.AtVec(2)},
	}
}

// Fix returns the noisy absolute position fix at time t, expressed
// geodetically against the trajectory anchor and carrying the noise
// source covariance.
func (g *Generator) Fix(t float64) fusion.AbsoluteFix {
	pos := g.traj.Position(t)
	fn := g.fixNoise.Sample()

	lla := geo.ToLLA(g.traj.Anchor, geo.ENU{
		E: pos.AtVec(0) + fn.AtVec(0),
		N: pos.AtVec(1) + fn.AtVec(1),
		U: pos.AtVec(2) + fn.AtVec(2),
	})

	cov := g.fixNoise.Cov()
	var flat [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			flat[3*i+j] = cov.At(i, j)
		}
	}

	return fusion.AbsoluteFix{
		Timestamp: t,
		LLA:       lla,
		Cov:       flat,
		Quality:   fusion.QualityFixed,
	}
}
