package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMercatorProjector_RoundTrip(t *testing.T) {
	p := MercatorProjector{Origin: orb.Point{13.40, 52.52}, MetersPerPixel: ZoomResolution(14)}

	coordinate := orb.Point{13.41, 52.51}
	screen := p.Screen(coordinate)
	back := p.Coordinate(screen)

	assert.Greater(t, screen[0], 0.0)
	assert.Greater(t, screen[1], 0.0, "south of the origin is down the screen")
	assert.InDelta(t, coordinate[0], back[0], 1e-9)
	assert.InDelta(t, coordinate[1], back[1], 1e-9)
}

func TestOffset_MovesByMercatorDelta(t *testing.T) {
	o := NewOffset(MercatorProjector{Origin: orb.Point{0, 0}, MetersPerPixel: 1})
	from := orb.Polygon{{{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}, {0, 0}}}

	got, ok := o.Geometry(orb.Point{100, -50}, from)
	require.True(t, ok)

	moved := got.(orb.Polygon)
	require.Len(t, moved[0], len(from[0]))
	for i, p := range moved[0] {
		before := project.WGS84.ToMercator(from[0][i])
		after := project.WGS84.ToMercator(p)
		assert.InDelta(t, 100, after[0]-before[0], 1e-6)
		assert.InDelta(t, 50, after[1]-before[1], 1e-6)
	}
	assert.Equal(t, orb.Point{0, 0}, from[0][0], "input is not modified")
}

func TestOffset_ZeroTranslation(t *testing.T) {
	o := NewOffset(MercatorProjector{Origin: orb.Point{8, 47}, MetersPerPixel: 2})
	from := orb.LineString{{8.1, 47.1}, {8.2, 47.2}}

	got, ok := o.Geometry(orb.Point{0, 0}, from)
	require.True(t, ok)

	line := got.(orb.LineString)
	for i := range line {
		assert.InDelta(t, from[i][0], line[i][0], 1e-9)
		assert.InDelta(t, from[i][1], line[i][1], 1e-9)
	}
}

func TestOffset_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		projector   Projector
		translation orb.Point
		from        orb.Geometry
	}{
		{
			name:        "nil geometry",
			projector:   MercatorProjector{MetersPerPixel: 1},
			translation: orb.Point{1, 1},
		},
		{
			name:        "nil projector",
			translation: orb.Point{1, 1},
			from:        orb.Point{0, 0},
		},
		{
			name:        "not finite",
			projector:   MercatorProjector{MetersPerPixel: 1},
			translation: orb.Point{math.NaN(), 0},
			from:        orb.Point{0, 0},
		},
		{
			name:        "beyond mercator latitude",
			projector:   MercatorProjector{MetersPerPixel: 1e6},
			translation: orb.Point{0, -100},
			from:        orb.Point{0, 0},
		},
		{
			name:        "degenerate scale",
			projector:   MercatorProjector{MetersPerPixel: 0},
			translation: orb.Point{1, 1},
			from:        orb.Point{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Offset{Projector: tt.projector}
			got, ok := o.Geometry(tt.translation, tt.from)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestZoomResolution(t *testing.T) {
	assert.InDelta(t, 78271.517, ZoomResolution(0), 1e-3)
	assert.InDelta(t, ZoomResolution(0)/2, ZoomResolution(1), 1e-9)
}
