package annotations

import (
	"annotation-server/core"
	"slices"

	"github.com/paulmach/orb"
)

// HandleDragBegin starts dragging the draggable annotation with featureID.
// Annotations already on the drag layer are found first; otherwise the last
// matching main annotation migrates to the drag layer. It returns false when
// nothing matched or the annotation's DragBeginHandler refused.
func (m *Manager) HandleDragBegin(featureID string, ctx core.GestureContext) bool {
	if m.destroyOnce.happened() || m.interactionDisabled {
		return false
	}

	matches := func(a core.Annotation) bool {
		return a.ID == featureID && a.IsDraggable
	}

	if idx := firstIndex(m.store.dragged, matches); idx >= 0 {
		a, ok := beginDrag(m.store.dragged[idx], ctx)
		if !ok {
			return false
		}
		m.store.dragged[idx] = a
		m.store.markDragged()
		m.startDrag(idx)
		return true
	}

	if idx := lastIndex(m.store.main, matches); idx >= 0 {
		a, ok := beginDrag(m.store.main[idx], ctx)
		if !ok {
			return false
		}

		m.insertDragLayerAndSource()

		m.store.main = slices.Delete(m.store.main, idx, idx+1)
		m.store.markMain()
		m.store.dragged = append(m.store.dragged, a)
		m.store.markDragged()
		m.startDrag(len(m.store.dragged) - 1)
		return true
	}

	return false
}

// beginDrag runs the annotation's DragBeginHandler, if any, on a copy.
func beginDrag(a core.Annotation, ctx core.GestureContext) (core.Annotation, bool) {
	if a.DragBeginHandler == nil {
		return a, true
	}
	return a.DragBeginHandler(a, ctx)
}

func (m *Manager) startDrag(idx int) {
	m.store.dragIndex = idx
	m.store.dragOrigin = orb.Clone(m.store.dragged[idx].Geometry)
}

func (m *Manager) insertDragLayerAndSource() {
	m.dragLayerOnce.do(func() {
		m.store.dragSourceReady = true

		id := m.DragLayerID()
		if err := m.renderer.AddSource(id); err != nil {
			m.log.WithError(err).Error("Failed to add drag source")
			return
		}
		layer := core.Layer{ID: id, Type: layerType, Source: id}
		if err := m.renderer.AddPersistentLayer(layer, core.LayerPosition{Above: m.LayerID()}); err != nil {
			m.log.WithError(err).Error("Failed to add drag layer")
		}
	})
}

// HandleDragChange moves the dragged annotation. translation is measured
// from where the gesture began, and is applied to the geometry the
// annotation had at that moment.
func (m *Manager) HandleDragChange(translation orb.Point, ctx core.GestureContext) {
	if m.destroyOnce.happened() || m.interactionDisabled || !m.store.dragging() {
		return
	}

	geometry, ok := m.offsets.Geometry(translation, m.store.dragOrigin)
	if !ok {
		return
	}

	idx := m.store.dragIndex
	m.store.dragged[idx].Geometry = geometry
	m.callDragHandler(m.store.dragged[idx].DragChangeHandler, ctx)
	m.store.markDragged()
}

// HandleDragEnd finishes the active drag. The annotation stays on the drag
// layer.
func (m *Manager) HandleDragEnd(ctx core.GestureContext) {
	if m.destroyOnce.happened() || m.interactionDisabled || !m.store.dragging() {
		return
	}

	if handler := m.store.dragged[m.store.dragIndex].DragEndHandler; handler != nil {
		m.callDragHandler(handler, ctx)
		m.store.markDragged()
	}
	m.store.clearDrag()
}

func (m *Manager) callDragHandler(handler core.DragHandler, ctx core.GestureContext) {
	if handler == nil {
		return
	}
	idx := m.store.dragIndex
	m.store.dragged[idx] = handler(m.store.dragged[idx], ctx)
}
