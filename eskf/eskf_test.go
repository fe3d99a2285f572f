package eskf

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	fusion "github.com/txyxy/imu-x-fusion"
)

var (
	cfg fusion.Config
	// staticSample is what a stationary, level, unbiased unit senses
	staticSample = func(t float64) fusion.InertialSample {
		return fusion.InertialSample{
			Timestamp: t,
			Force:     [3]float64{0, 0, fusion.Gravity},
			Rate:      [3]float64{0, 0, 0},
		}
	}
	measCov *mat.SymDense
)

func setup() {
	cfg = fusion.DefaultConfig()
	cfg.LeverArm = [3]float64{0.2, -0.1, 0.05}

	measCov = mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		measCov.SetSym(i, i, 0.01)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func newInitialized(t *testing.T) *Filter {
	t.Helper()

	f, err := New(cfg)
	assert.NoError(t, err)
	f.Initialize(0, eye(3))

	return f
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(cfg)
	assert.NoError(err)
	assert.NotNil(f)

	// malformed noise densities are startup fatal
	bad := cfg
	bad.AccNoise = 0
	f, err = New(bad)
	assert.Nil(f)
	assert.Error(err)

	bad = cfg
	bad.MinBufferSize = -1
	f, err = New(bad)
	assert.Nil(f)
	assert.Error(err)
}

func TestPredictRejectsStaleSamples(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)
	assert.NoError(f.Predict(staticSample(0.01)))

	before := f.State().Copy()

	err := f.Predict(staticSample(0.01))
	assert.ErrorIs(err, fusion.ErrOutOfOrderSample)
	err = f.Predict(staticSample(0.005))
	assert.ErrorIs(err, fusion.ErrOutOfOrderSample)

	// state untouched byte for byte
	assert.True(mat.Equal(before.Pos, f.State().Pos))
	assert.True(mat.Equal(before.Cov, f.State().Cov))
	assert.Equal(before.Timestamp, f.State().Timestamp)
}

func TestPredictStaticMechanization(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)
	for i := 1; i <= 200; i++ {
		assert.NoError(f.Predict(staticSample(float64(i) * 0.01)))
	}

	s := f.State()
	assert.InDelta(2.0, s.Timestamp, 1e-12)
	// a stationary platform stays put
	assert.InDelta(0, mat.Norm(s.Pos, 2), 1e-9)
	assert.InDelta(0, mat.Norm(s.Vel, 2), 1e-9)
}

func TestCovarianceGrowsUnderPropagation(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)

	last := mat.Trace(f.State().Cov)
	for i := 1; i <= 100; i++ {
		assert.NoError(f.Predict(staticSample(float64(i) * 0.01)))
		tr := mat.Trace(f.State().Cov)
		assert.Greater(tr, last)
		last = tr
	}
}

func TestCorrectReducesTraceAndResidual(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)
	assert.NoError(f.Predict(staticSample(0.01)))

	// sensor seen 1.5m east, 0.8m up of where the filter thinks it is
	meas := mat.NewVecDense(3, []float64{1.5, 0, 0.8})

	resBefore := mat.Norm(f.Residual(meas), 2)
	trBefore := mat.Trace(f.State().Cov)

	assert.NoError(f.Correct(meas, measCov))

	resAfter := mat.Norm(f.Residual(meas), 2)
	trAfter := mat.Trace(f.State().Cov)

	assert.Less(trAfter, trBefore)
	assert.Less(resAfter, resBefore)
}

func TestCorrectRejectsBadDimensions(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)

	err := f.Correct(mat.NewVecDense(2, nil), measCov)
	assert.Error(err)

	err = f.Correct(mat.NewVecDense(3, nil), mat.NewSymDense(2, nil))
	assert.Error(err)
}

func TestCovarianceStaysSymmetricPSD(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)
	for i := 1; i <= 50; i++ {
		assert.NoError(f.Predict(staticSample(float64(i) * 0.01)))
		if i%10 == 0 {
			meas := mat.NewVecDense(3, []float64{0.3, -0.2, 0.1})
			assert.NoError(f.Correct(meas, measCov))
		}
	}

	p := f.State().Cov
	for i := 0; i < StateDim; i++ {
		assert.GreaterOrEqual(p.At(i, i), 0.0)
		for j := 0; j < StateDim; j++ {
			assert.InDelta(p.At(i, j), p.At(j, i), 1e-12)
		}
	}

	var chol mat.Cholesky
	jitter := mat.NewSymDense(StateDim, nil)
	jitter.CopySym(p)
	for i := 0; i < StateDim; i++ {
		jitter.SetSym(i, i, jitter.At(i, i)+1e-12)
	}
	assert.True(chol.Factorize(jitter))
}

func TestOrientationStaysValidRotation(t *testing.T) {
	assert := assert.New(t)

	f := newInitialized(t)
	for i := 1; i <= 500; i++ {
		sample := fusion.InertialSample{
			Timestamp: float64(i) * 0.01,
			Force:     [3]float64{0.1, -0.05, fusion.Gravity},
			Rate:      [3]float64{0.3, -0.2, 0.5},
		}
		assert.NoError(f.Predict(sample))
		if i%25 == 0 {
			meas := mat.NewVecDense(3, []float64{0.1, 0.1, -0.1})
			assert.NoError(f.Correct(meas, measCov))
		}
	}

	r := f.State().Rot
	assert.InDelta(1.0, mat.Det(r), 1e-9)

	rtr := &mat.Dense{}
	rtr.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(want, rtr.At(i, j), 1e-9)
		}
	}
}

func TestCorrectConvergesToMeasuredPosition(t *testing.T) {
	assert := assert.New(t)

	noLever := cfg
	noLever.LeverArm = [3]float64{}
	f, err := New(noLever)
	assert.NoError(err)
	f.Initialize(0, eye(3))

	target := mat.NewVecDense(3, []float64{5, -3, 1})
	for i := 1; i <= 20; i++ {
		assert.NoError(f.Predict(staticSample(float64(i) * 0.01)))
		assert.NoError(f.Correct(target, measCov))
	}

	diff := mat.NewVecDense(3, nil)
	diff.SubVec(target, f.State().Pos)
	assert.Less(mat.Norm(diff, 2), math.Sqrt(3*measCov.At(0, 0))*3)
}
