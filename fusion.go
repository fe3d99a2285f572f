package fusion

import (
	"errors"
	"fmt"

	"github.com/txyxy/imu-x-fusion/geo"
)

// FixQuality is the solution quality reported by the absolute position receiver.
type FixQuality int

const (
	// QualityNoFix marks a receiver with no position solution.
	QualityNoFix FixQuality = iota - 1
	// QualityAutonomous marks an unaided single point solution.
	QualityAutonomous
	// QualityDifferential marks a code differential solution.
	QualityDifferential
	// QualityFixed marks a fixed integer ambiguity (or GBAS) solution.
	QualityFixed
)

// Trusted reports whether a fix of this quality may be fused into the filter.
func (q FixQuality) Trusted() bool {
	return q >= QualityFixed
}

// InertialSample is a single body frame inertial measurement.
type InertialSample struct {
	// Timestamp is monotonic time in seconds
	Timestamp float64
	// Force is specific force sensed by the accelerometer [m/s^2]
	Force [3]float64
	// Rate is angular rate sensed by the gyroscope [rad/s]
	Rate [3]float64
}

// AbsoluteFix is a single absolute position measurement.
type AbsoluteFix struct {
	// Timestamp is monotonic time in seconds
	Timestamp float64
	// LLA is the geodetic position of the fix
	LLA geo.LLA
	// Cov is the row-major 3x3 position covariance [m^2]
	Cov [9]float64
	// Quality is the receiver solution quality
	Quality FixQuality
}

// Config holds the filter tuning parameters.
type Config struct {
	// AccNoise is accelerometer white noise density
	AccNoise float64
	// GyrNoise is gyroscope white noise density
	GyrNoise float64
	// AccBiasNoise is accelerometer bias random walk noise density
	AccBiasNoise float64
	// GyrBiasNoise is gyroscope bias random walk noise density
	GyrBiasNoise float64
	// SigmaPos is initial position uncertainty [m]
	SigmaPos float64
	// SigmaVel is initial velocity uncertainty [m/s]
	SigmaVel float64
	// SigmaRollPitch is initial roll/pitch uncertainty [rad]
	SigmaRollPitch float64
	// SigmaYaw is initial yaw uncertainty [rad]
	SigmaYaw float64
	// SigmaAccBias is initial accelerometer bias uncertainty
	SigmaAccBias float64
	// SigmaGyrBias is initial gyroscope bias uncertainty
	SigmaGyrBias float64
	// LeverArm is the body frame offset from the inertial reference
	// point to the absolute position sensor [m]
	LeverArm [3]float64
	// MinBufferSize is the number of inertial samples required before
	// static alignment is attempted
	MinBufferSize int
	// MaxInitDesync is the largest tolerated gap between a fix and the
	// latest buffered inertial sample during initialization [s]
	MaxInitDesync float64
	// MaxAccStd is the largest per-axis accelerometer standard deviation
	// tolerated over the alignment window [m/s^2]
	MaxAccStd float64
}

// DefaultConfig returns the filter configuration tuned for a consumer
// grade MEMS inertial unit and an RTK position receiver.
func DefaultConfig() Config {
	return Config{
		AccNoise:       1e-2,
		GyrNoise:       1e-4,
		AccBiasNoise:   1e-6,
		GyrBiasNoise:   1e-8,
		SigmaPos:       10.0,
		SigmaVel:       10.0,
		SigmaRollPitch: 10.0 * DegToRad,
		SigmaYaw:       100.0 * DegToRad,
		SigmaAccBias:   0.02,
		SigmaGyrBias:   0.02,
		MinBufferSize:  100,
		MaxInitDesync:  0.5,
		MaxAccStd:      3.0,
	}
}

// Validate checks the configuration and returns error if any parameter
// would make the filter unusable.
func (c Config) Validate() error {
	if c.AccNoise <= 0 || c.GyrNoise <= 0 || c.AccBiasNoise <= 0 || c.GyrBiasNoise <= 0 {
		return fmt.Errorf("invalid noise densities: [%v %v %v %v]",
			c.AccNoise, c.GyrNoise, c.AccBiasNoise, c.GyrBiasNoise)
	}

	if c.SigmaPos <= 0 || c.SigmaVel <= 0 || c.SigmaRollPitch <= 0 ||
		c.SigmaYaw <= 0 || c.SigmaAccBias <= 0 || c.SigmaGyrBias <= 0 {
		return fmt.Errorf("invalid initial uncertainty parameters")
	}

	if c.MinBufferSize <= 0 {
		return fmt.Errorf("invalid inertial buffer size: %d", c.MinBufferSize)
	}

	if c.MaxInitDesync <= 0 {
		return fmt.Errorf("invalid initialization desync tolerance: %v", c.MaxInitDesync)
	}

	if c.MaxAccStd <= 0 {
		return fmt.Errorf("invalid alignment motion tolerance: %v", c.MaxAccStd)
	}

	return nil
}

const (
	// Gravity is the local gravitational acceleration magnitude [m/s^2]
	Gravity = 9.81007
	// DegToRad converts degrees to radians
	DegToRad = 0.017453292519943295
)

var (
	// ErrRejectedFix is returned when an absolute fix is discarded
	// without touching the filter state.
	ErrRejectedFix = errors.New("rejected fix")
	// ErrOutOfOrderSample is returned when an inertial sample does not
	// advance the filter timestamp.
	ErrOutOfOrderSample = errors.New("out of order inertial sample")
	// ErrInsufficientSamples is returned when static alignment is
	// attempted on an under-filled inertial buffer.
	ErrInsufficientSamples = errors.New("insufficient inertial samples")
	// ErrExcessiveMotion is returned when the alignment window is not
	// consistent with a stationary platform.
	ErrExcessiveMotion = errors.New("excessive motion during alignment")
	// ErrNumericalDegeneracy is returned when the innovation covariance
	// can not be inverted.
	ErrNumericalDegeneracy = errors.New("numerically degenerate innovation covariance")
)
