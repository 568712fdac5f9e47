package hub

import (
	"annotation-server/core"
	"fmt"

	"github.com/paulmach/orb"
)

// GestureKind names a gesture recognized on a feature.
type GestureKind string

const (
	GestureTap        GestureKind = "tap"
	GestureLongPress  GestureKind = "long-press"
	GestureDragBegin  GestureKind = "drag-begin"
	GestureDragChange GestureKind = "drag-change"
	GestureDragEnd    GestureKind = "drag-end"
)

func ParseGestureKind(s string) (GestureKind, error) {
	switch k := GestureKind(s); k {
	case GestureTap, GestureLongPress, GestureDragBegin, GestureDragChange, GestureDragEnd:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGesture, s)
}

// Gesture is a recognized gesture addressed to one manager. Translation is
// only used by drag changes and is measured from the start of the drag.
type Gesture struct {
	Manager     string
	Kind        GestureKind
	FeatureID   string
	Translation orb.Point
	Context     core.GestureContext
}
