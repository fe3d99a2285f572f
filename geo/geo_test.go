package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var anchors = []LLA{
	{Lat: 0, Lon: 0, Alt: 0},
	{Lat: 48.8566, Lon: 2.3522, Alt: 35},
	{Lat: -33.8688, Lon: 151.2093, Alt: 58},
	{Lat: 64.1466, Lon: -21.9426, Alt: 15},
	{Lat: 31.2304, Lon: 121.4737, Alt: 4},
}

func TestECEFRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, lla := range anchors {
		got := lla.ToECEF().ToLLA()
		assert.InDelta(lla.Lat, got.Lat, 1e-9)
		assert.InDelta(lla.Lon, got.Lon, 1e-9)
		assert.InDelta(lla.Alt, got.Alt, 1e-6)
	}
}

func TestENURoundTrip(t *testing.T) {
	assert := assert.New(t)

	offsets := []ENU{
		{E: 0, N: 0, U: 0},
		{E: 12.5, N: -3.2, U: 1.8},
		{E: -2500, N: 4800, U: -120},
		{E: 9.5e6, N: -1.2e6, U: 8000},
	}

	for _, anchor := range anchors {
		for _, enu := range offsets {
			lla := ToLLA(anchor, enu)
			back := ToENU(anchor, lla)
			assert.InDelta(enu.E, back.E, 1e-6)
			assert.InDelta(enu.N, back.N, 1e-6)
			assert.InDelta(enu.U, back.U, 1e-6)
		}
	}
}

func TestGeodeticRoundTrip(t *testing.T) {
	assert := assert.New(t)

	points := []LLA{
		{Lat: 48.8570, Lon: 2.3530, Alt: 42},
		{Lat: 48.8000, Lon: 2.2000, Alt: -10},
		{Lat: 49.5000, Lon: 3.0000, Alt: 9500},
	}

	anchor := anchors[1]
	for _, p := range points {
		back := ToLLA(anchor, ToENU(anchor, p))
		assert.InDelta(p.Lat, back.Lat, 1e-9)
		assert.InDelta(p.Lon, back.Lon, 1e-9)
		assert.InDelta(p.Alt, back.Alt, 1e-6)
	}
}

func TestENUAxes(t *testing.T) {
	assert := assert.New(t)

	anchor := LLA{Lat: 48.8566, Lon: 2.3522, Alt: 35}

	// a point due north of the anchor has positive N and negligible E
	north := LLA{Lat: anchor.Lat + 0.01, Lon: anchor.Lon, Alt: anchor.Alt}
	enu := ToENU(anchor, north)
	assert.Greater(enu.N, 1000.0)
	assert.InDelta(0, enu.E, 1e-6)

	// a point due east of the anchor has positive E
	east := LLA{Lat: anchor.Lat, Lon: anchor.Lon + 0.01, Alt: anchor.Alt}
	enu = ToENU(anchor, east)
	assert.Greater(enu.E, 500.0)
	assert.InDelta(0, math.Abs(enu.N), 1.0)

	// raising the altitude only moves U
	up := LLA{Lat: anchor.Lat, Lon: anchor.Lon, Alt: anchor.Alt + 100}
	enu = ToENU(anchor, up)
	assert.InDelta(100, enu.U, 1e-6)
	assert.InDelta(0, enu.E, 1e-6)
	assert.InDelta(0, enu.N, 1e-6)
}

func TestAnchorMapsToOrigin(t *testing.T) {
	assert := assert.New(t)

	for _, anchor := range anchors {
		enu := ToENU(anchor, anchor)
		assert.InDelta(0, enu.E, 1e-9)
		assert.InDelta(0, enu.N, 1e-9)
		assert.InDelta(0, enu.U, 1e-9)
	}
}
