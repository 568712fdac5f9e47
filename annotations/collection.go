package annotations

import (
	"annotation-server/core"

	"github.com/paulmach/orb"
)

// noDrag marks the drag state as idle.
const noDrag = -1

// collection holds a manager's annotations split into the main partition,
// synced through diffs, and the dragged partition, replaced wholesale.
type collection struct {
	main []core.Annotation
	// dragged only grows through drag migration; its members never return to main.
	dragged []core.Annotation
	// displayed is the last main sequence pushed to the renderer.
	displayed []core.Annotation

	// idsMap resolves declarative keys to the id first assigned to them.
	idsMap map[string]string

	// dragIndex points into dragged while a drag gesture is active.
	dragIndex int
	// dragOrigin is the geometry of the dragged annotation when the gesture began.
	dragOrigin orb.Geometry

	mainDirty DirtyFlag
	dragDirty DirtyFlag
	// dragSourceReady gates dragDirty: the drag source only exists after
	// the first migration.
	dragSourceReady bool
}

func newCollection() *collection {
	return &collection{
		idsMap:    make(map[string]string),
		dragIndex: noDrag,
	}
}

func (c *collection) all() []core.Annotation {
	all := make([]core.Annotation, 0, len(c.main)+len(c.dragged))
	all = append(all, c.main...)
	return append(all, c.dragged...)
}

func (c *collection) markMain() {
	c.mainDirty.Mark()
}

func (c *collection) markDragged() {
	if c.dragSourceReady {
		c.dragDirty.Mark()
	}
}

func (c *collection) replaceAll(as []core.Annotation) {
	c.main = removeDuplicates(as)
	c.markMain()

	if len(c.dragged) > 0 {
		c.dragged = c.dragged[:0]
		c.markDragged()
	}
	c.clearDrag()
}

func (c *collection) upsertKeyed(pairs []core.KeyedAnnotation) {
	resolved := make([]core.Annotation, 0, len(pairs))
	for _, pair := range pairs {
		a := pair.Annotation
		id, ok := c.idsMap[pair.Key]
		if !ok {
			id = a.ID
			c.idsMap[pair.Key] = id
		}
		a.ID = id
		a.IsDraggable = false
		a.IsSelected = false
		resolved = append(resolved, a)
	}
	c.replaceAll(resolved)
}

// restore replaces the collection with saved annotations as they are and
// rebuilds the key map from their keys.
func (c *collection) restore(pairs []core.KeyedAnnotation) {
	c.idsMap = make(map[string]string, len(pairs))
	as := make([]core.Annotation, 0, len(pairs))
	for _, pair := range pairs {
		if _, ok := c.idsMap[pair.Key]; pair.Key != "" && !ok {
			c.idsMap[pair.Key] = pair.Annotation.ID
		}
		as = append(as, pair.Annotation)
	}
	c.replaceAll(as)
}

// keyed pairs the logical annotation set with the declarative key each id
// was registered under, or "" for annotations set without one.
func (c *collection) keyed() []core.KeyedAnnotation {
	keys := make(map[string]string, len(c.idsMap))
	for key, id := range c.idsMap {
		if prev, ok := keys[id]; !ok || key < prev {
			keys[id] = key
		}
	}

	all := c.all()
	out := make([]core.KeyedAnnotation, len(all))
	for i, a := range all {
		out[i] = core.KeyedAnnotation{Key: keys[a.ID], Annotation: a}
	}
	return out
}

func (c *collection) clearDrag() {
	c.dragIndex = noDrag
	c.dragOrigin = nil
}

func (c *collection) dragging() bool {
	return c.dragIndex >= 0 && c.dragIndex < len(c.dragged)
}

// firstIndex returns the first index in as matching pred, or -1.
func firstIndex(as []core.Annotation, pred func(core.Annotation) bool) int {
	for i, a := range as {
		if pred(a) {
			return i
		}
	}
	return -1
}

// lastIndex returns the last index in as matching pred, or -1.
func lastIndex(as []core.Annotation, pred func(core.Annotation) bool) int {
	for i := len(as) - 1; i >= 0; i-- {
		if pred(as[i]) {
			return i
		}
	}
	return -1
}

// removeDuplicates returns a copy of as keeping the first annotation per id.
func removeDuplicates(as []core.Annotation) []core.Annotation {
	seen := make(map[string]struct{}, len(as))
	out := make([]core.Annotation, 0, len(as))
	for _, a := range as {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}
