// Package geometry turns screen-space drag translations into new annotation
// geometries.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// MaxLatitude is the largest latitude representable in Web Mercator.
const MaxLatitude = 85.05112878

// Projector converts between map coordinates (lon, lat) and screen points.
type Projector interface {
	Screen(coordinate orb.Point) orb.Point
	Coordinate(screen orb.Point) orb.Point
}

// Offset moves a geometry by a screen translation. The translation is
// applied to the center of the geometry's bound and every vertex is shifted
// by the same Web Mercator delta, so shapes keep their projected size.
type Offset struct {
	Projector Projector
}

func NewOffset(p Projector) *Offset {
	return &Offset{Projector: p}
}

// Geometry returns from moved by translation, or false when the projection
// produced a coordinate outside the Mercator domain.
func (o *Offset) Geometry(translation orb.Point, from orb.Geometry) (orb.Geometry, bool) {
	if from == nil || o.Projector == nil {
		return nil, false
	}

	anchor := from.Bound().Center()
	screen := o.Projector.Screen(anchor)
	target := o.Projector.Coordinate(orb.Point{screen[0] + translation[0], screen[1] + translation[1]})
	if !valid(anchor) || !valid(target) {
		return nil, false
	}

	a := project.WGS84.ToMercator(anchor)
	b := project.WGS84.ToMercator(target)
	dx, dy := b[0]-a[0], b[1]-a[1]

	ok := true
	moved := project.Geometry(orb.Clone(from), func(p orb.Point) orb.Point {
		m := project.WGS84.ToMercator(p)
		out := project.Mercator.ToWGS84(orb.Point{m[0] + dx, m[1] + dy})
		if !valid(out) {
			ok = false
		}
		return out
	})
	if !ok {
		return nil, false
	}
	return moved, true
}

func valid(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(p.Lat()) <= MaxLatitude
}

// MercatorProjector is a fixed-scale projector: Origin is the coordinate at
// screen point (0, 0) and the screen y axis points down.
type MercatorProjector struct {
	Origin         orb.Point
	MetersPerPixel float64
}

func (p MercatorProjector) Screen(coordinate orb.Point) orb.Point {
	o := project.WGS84.ToMercator(p.Origin)
	m := project.WGS84.ToMercator(coordinate)
	return orb.Point{
		(m[0] - o[0]) / p.MetersPerPixel,
		(o[1] - m[1]) / p.MetersPerPixel,
	}
}

func (p MercatorProjector) Coordinate(screen orb.Point) orb.Point {
	o := project.WGS84.ToMercator(p.Origin)
	return project.Mercator.ToWGS84(orb.Point{
		o[0] + screen[0]*p.MetersPerPixel,
		o[1] - screen[1]*p.MetersPerPixel,
	})
}

// ZoomResolution returns the Mercator meters covered by one pixel of a
// 512 pixel tile pyramid at zoom.
func ZoomResolution(zoom float64) float64 {
	const circumference = 2 * math.Pi * orb.EarthRadius
	return circumference / (512 * math.Pow(2, zoom))
}
