// Package noise provides the stochastic sources used to corrupt
// simulated sensor streams and to drive the filter property tests.
package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Source is a sampleable noise source.
type Source interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	dist, ok := newGaussianDist(cov)
	if !ok {
		return nil, fmt.Errorf("failed to create new Gaussian noise")
	}

	return &Gaussian{
		dist: dist,
		mean: mean,
		cov:  cov,
	}, nil
}

// NewDiagonal creates new zero mean Gaussian noise with the given per
// axis standard deviations. It is the usual way to describe an
// uncorrelated sensor, e.g. NewDiagonal(sigma, sigma, sigma) for a
// triaxial accelerometer. It returns error if any sigma is negative.
func NewDiagonal(sigmas ...float64) (*Gaussian, error) {
	cov := mat.NewSymDense(len(sigmas), nil)
	for i, s := range sigmas {
		if s < 0 {
			return nil, fmt.Errorf("invalid standard deviation: %v", s)
		}
		cov.SetSym(i, i, s*s)
	}

	return NewGaussian(make([]float64, len(sigmas)), cov)
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	for i := range r {
		r[i] += g.mean[i]
	}

	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// Reset resets Gaussian noise.
func (g *Gaussian) Reset() {
	if dist, ok := newGaussianDist(g.cov); ok {
		g.dist = dist
	}
}

func newGaussianDist(cov mat.Symmetric) (*distmv.Normal, bool) {
	seed := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	size := cov.SymmetricDim()

	return distmv.NewNormal(make([]float64, size), cov, seed)
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
