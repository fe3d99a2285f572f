// Package geo converts between geodetic coordinates and a local
// East-North-Up tangent plane frame anchored at a reference point,
// going through an Earth centered Cartesian intermediate on the
// WGS84 ellipsoid.
package geo

import "math"

// WGS84 ellipsoid parameters.
const (
	// SemiMajor is the ellipsoid semi-major axis [m]
	SemiMajor = 6378137.0
	// Flattening is the ellipsoid flattening
	Flattening = 1.0 / 298.257223563
)

// LLA is a geodetic position. Latitude and longitude are in degrees,
// altitude in meters above the ellipsoid.
type LLA struct {
	Lat float64
	Lon float64
	Alt float64
}

// NewLLA creates new LLA and returns it.
func NewLLA(lat, lon, alt float64) LLA {
	return LLA{Lat: lat, Lon: lon, Alt: alt}
}

// ECEF is an Earth centered Earth fixed Cartesian position [m].
type ECEF struct {
	X float64
	Y float64
	Z float64
}

// ENU is a local East-North-Up Cartesian position relative to an
// anchor point [m].
type ENU struct {
	E float64
	N float64
	U float64
}

// ToECEF converts a geodetic position to Earth centered Cartesian
// coordinates.
func (lla LLA) ToECEF() ECEF {
	lat := lla.Lat * math.Pi / 180
	lon := lla.Lon * math.Pi / 180

	a := SemiMajor
	e2 := Flattening * (2 - Flattening)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical
	n := a / math.Sqrt(1-e2*sinLat*sinLat)

	return ECEF{
		X: (n + lla.Alt) * cosLat * math.Cos(lon),
		Y: (n + lla.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-e2) + lla.Alt) * sinLat,
	}
}

// ToLLA converts an Earth centered Cartesian position back to geodetic
// coordinates: the closed form of Bowring seeds a fixed point latitude
// refinement, which keeps the inverse exact far above the ellipsoid.
func (p ECEF) ToLLA() LLA {
	if p.X == 0 && p.Y == 0 && p.Z == 0 {
		return LLA{Lat: 0, Lon: 0, Alt: -SemiMajor}
	}

	a := SemiMajor
	b := a * (1 - Flattening)
	e2 := Flattening * (2 - Flattening)

	h := a*a - b*b
	r := math.Sqrt(p.X*p.X + p.Y*p.Y)
	t := math.Atan2(p.Z*a, r*b)
	sinT := math.Sin(t)
	cosT := math.Cos(t)

	lat := math.Atan2(p.Z+h/b*sinT*sinT*sinT, r-h/a*cosT*cosT*cosT)
	lon := math.Atan2(p.Y, p.X)

	var n, alt float64
	for i := 0; i < 4; i++ {
		sinLat := math.Sin(lat)
		n = a / math.Sqrt(1-e2*sinLat*sinLat)
		alt = r/math.Cos(lat) - n
		lat = math.Atan2(p.Z, r*(1-e2*n/(n+alt)))
	}
	sinLat := math.Sin(lat)
	n = a / math.Sqrt(1-e2*sinLat*sinLat)
	alt = r/math.Cos(lat) - n

	return LLA{
		Lat: lat * 180 / math.Pi,
		Lon: lon * 180 / math.Pi,
		Alt: alt,
	}
}

// ToENU converts a geodetic position to local East-North-Up coordinates
// relative to anchor. It is a pure function with no side effects.
func ToENU(anchor, point LLA) ENU {
	ap := anchor.ToECEF()
	pp := point.ToECEF()

	dx := pp.X - ap.X
	dy := pp.Y - ap.Y
	dz := pp.Z - ap.Z

	lat := anchor.Lat * math.Pi / 180
	lon := anchor.Lon * math.Pi / 180
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	return ENU{
		E: -dx*sinLon + dy*cosLon,
		N: -dx*cosLon*sinLat - dy*sinLon*sinLat + dz*cosLat,
		U: dx*cosLon*cosLat + dy*sinLon*cosLat + dz*sinLat,
	}
}

// ToLLA converts a local East-North-Up position relative to anchor back
// to geodetic coordinates. It is the exact inverse of ToENU.
func ToLLA(anchor LLA, local ENU) LLA {
	lat := anchor.Lat * math.Pi / 180
	lon := anchor.Lon * math.Pi / 180
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	dx := -local.E*sinLon - local.N*cosLon*sinLat + local.U*cosLon*cosLat
	dy := local.E*cosLon - local.N*sinLon*sinLat + local.U*sinLon*cosLat
	dz := local.N*cosLat + local.U*sinLat

	ap := anchor.ToECEF()

	return ECEF{
		X: ap.X + dx,
		Y: ap.Y + dy,
		Z: ap.Z + dz,
	}.ToLLA()
}
