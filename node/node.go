// Package node drives the error-state filter from the two input
// streams. It buffers inertial samples until static alignment
// succeeds, gates absolute fixes on quality and timing, captures the
// write-once geodetic anchor and publishes the filtered pose together
// with the cumulative path and the persisted record files.
//
// All entry points serialize on an internal mutex: propagation and
// measurement updates never run concurrently against the shared state.
package node

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	fusion "github.com/txyxy/imu-x-fusion"
	"github.com/txyxy/imu-x-fusion/eskf"
	"github.com/txyxy/imu-x-fusion/estimate"
	"github.com/txyxy/imu-x-fusion/geo"
)

// PoseSink consumes filtered pose estimates.
type PoseSink interface {
	// Publish hands a pose estimate to the consumer
	Publish(*estimate.Pose)
}

// Config configures the fusion driver.
type Config struct {
	// Filter is the error-state filter configuration
	Filter fusion.Config
	// StateRecord receives one fixed precision line per update with
	// timestamp, position, quaternion and geodetic position
	StateRecord io.Writer
	// FixRecord receives one fixed precision line per accepted fix
	// with timestamp and geodetic position
	FixRecord io.Writer
	// Sink receives every published pose; may be nil
	Sink PoseSink
	// Logger receives non fatal warnings; may be nil
	Logger *log.Logger
}

// Fusion owns the filter and serializes all access to it.
type Fusion struct {
	mu sync.Mutex

	cfg Config
	kf  *eskf.Filter

	// buf holds pre-initialization inertial samples, bounded to the
	// configured alignment window size
	buf []fusion.InertialSample

	initialized bool
	// anchor is the geodetic origin of the working frame, set once at
	// initialization
	anchor geo.LLA

	path []*estimate.Pose
}

// New creates a new fusion driver and returns it.
// It returns error if the filter configuration is invalid.
func New(cfg Config) (*Fusion, error) {
	kf, err := eskf.New(cfg.Filter)
	if err != nil {
		return nil, err
	}

	return &Fusion{
		cfg: cfg,
		kf:  kf,
		buf: make([]fusion.InertialSample, 0, cfg.Filter.MinBufferSize),
	}, nil
}

// OnInertial feeds one inertial sample into the driver. Before
// initialization the sample is buffered for static alignment; after
// initialization it propagates the filter. An out of order sample is
// dropped with a warning and fusion.ErrOutOfOrderSample.
func (f *Fusion) OnInertial(sample fusion.InertialSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		if len(f.buf) == cap(f.buf) {
			f.buf = append(f.buf[:0], f.buf[1:]...)
		}
		f.buf = append(f.buf, sample)

		return nil
	}

	if err := f.kf.Predict(sample); err != nil {
		f.warnf("dropping inertial sample: %v", err)
		return err
	}

	return nil
}

// OnFix feeds one absolute position fix into the driver. Fixes below
// the quality gate are rejected without touching the filter state.
// The first trusted fix arriving with a full, quiescent inertial
// buffer initializes the filter and anchors the working frame at the
// fix coordinate; subsequent fixes are fused as measurement updates
// and yield the published pose.
func (f *Fusion) OnFix(fix fusion.AbsoluteFix) (*estimate.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !fix.Quality.Trusted() {
		f.warnf("rejecting fix at %.3f: quality %d below gate", fix.Timestamp, fix.Quality)
		return nil, fmt.Errorf("%w: quality %d", fusion.ErrRejectedFix, fix.Quality)
	}

	if !f.initialized {
		if err := f.initialize(fix); err != nil {
			f.warnf("initialization failed: %v", err)
			return nil, err
		}
		f.warnf("system initialized at lat %.9f lon %.9f", f.anchor.Lat, f.anchor.Lon)

		return nil, f.recordFix(fix)
	}

	enu := geo.ToENU(f.anchor, fix.LLA)
	pos := mat.NewVecDense(3, []float64{enu.E, enu.N, enu.U})

	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			cov.SetSym(i, j, fix.Cov[3*i+j])
		}
	}

	if err := f.kf.Correct(pos, cov); err != nil {
		f.warnf("dropping fix at %.3f: %v", fix.Timestamp, err)
		return nil, err
	}

	pose, err := f.publish()
	if err != nil {
		return nil, err
	}

	if err := f.recordFix(fix); err != nil {
		return nil, err
	}

	return pose, nil
}

// initialize runs static alignment against the buffered window and
// anchors the working frame at the fix coordinate.
func (f *Fusion) initialize(fix fusion.AbsoluteFix) error {
	cfg := f.cfg.Filter

	if len(f.buf) < cfg.MinBufferSize {
		return fmt.Errorf("%w: have %d, need %d",
			fusion.ErrInsufficientSamples, len(f.buf), cfg.MinBufferSize)
	}

	last := f.buf[len(f.buf)-1]
	if math.Abs(fix.Timestamp-last.Timestamp) > cfg.MaxInitDesync {
		return fmt.Errorf("%w: fix %.3f desynced from inertial stream %.3f",
			fusion.ErrRejectedFix, fix.Timestamp, last.Timestamp)
	}

	rot, err := eskf.InitAttitude(f.buf, cfg.MinBufferSize, cfg.MaxAccStd)
	if err != nil {
		return err
	}

	f.kf.Initialize(last.Timestamp, rot)
	f.anchor = fix.LLA
	f.initialized = true
	f.buf = f.buf[:0]

	return nil
}

// publish assembles the pose estimate from the filter state, appends
// it to the cumulative path, hands it to the sink and writes the state
// record line.
func (f *Fusion) publish() (*estimate.Pose, error) {
	s := f.kf.State()

	x, y, z, w := s.Quaternion()
	pose, err := estimate.NewPose(s.Timestamp, s.Pos, s.Vel, [4]float64{x, y, z, w}, s.PoseCov())
	if err != nil {
		return nil, err
	}

	f.path = append(f.path, pose)

	if f.cfg.Sink != nil {
		f.cfg.Sink.Publish(pose)
	}

	if f.cfg.StateRecord != nil {
		lla := geo.ToLLA(f.anchor, geo.ENU{
			E: s.Pos.AtVec(0),
			N: s.Pos.AtVec(1),
			U: s.Pos.AtVec(2),
		})
		_, err = fmt.Fprintf(f.cfg.StateRecord,
			"%.15f, %.15f, %.15f, %.15f, %.15f, %.15f, %.15f, %.15f, %.15f, %.15f, %.15f\n",
			s.Timestamp,
			s.Pos.AtVec(0), s.Pos.AtVec(1), s.Pos.AtVec(2),
			x, y, z, w,
			lla.Lat, lla.Lon, lla.Alt)
		if err != nil {
			return nil, fmt.Errorf("failed to write state record: %v", err)
		}
	}

	return pose, nil
}

func (f *Fusion) recordFix(fix fusion.AbsoluteFix) error {
	if f.cfg.FixRecord == nil {
		return nil
	}

	_, err := fmt.Fprintf(f.cfg.FixRecord, "%.15f, %.15f, %.15f, %.15f\n",
		fix.Timestamp, fix.LLA.Lat, fix.LLA.Lon, fix.LLA.Alt)
	if err != nil {
		return fmt.Errorf("failed to write fix record: %v", err)
	}

	return nil
}

// Initialized reports whether static alignment has completed.
func (f *Fusion) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.initialized
}

// Anchor returns the geodetic origin of the working frame. It is only
// meaningful once Initialized reports true.
func (f *Fusion) Anchor() geo.LLA {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.anchor
}

// State returns a copy of the current filter state.
func (f *Fusion) State() *eskf.State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.kf.State().Copy()
}

// Path returns the cumulative sequence of all poses published so far.
func (f *Fusion) Path() []*estimate.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := make([]*estimate.Pose, len(f.path))
	copy(path, f.path)

	return path
}

func (f *Fusion) warnf(format string, args ...interface{}) {
	if f.cfg.Logger != nil {
		f.cfg.Logger.Printf(format, args...)
	}
}
