package annotations

import (
	"annotation-server/core"
)

// HandleTap toggles the selection of the annotation with featureID,
// notifies the tap observer and returns the result of its TapHandler.
func (m *Manager) HandleTap(featureID string, ctx core.GestureContext) bool {
	if m.destroyOnce.happened() {
		return false
	}

	matches := func(a core.Annotation) bool { return a.ID == featureID }

	partition, idx := &m.store.main, firstIndex(m.store.main, matches)
	if idx < 0 {
		partition, idx = &m.store.dragged, firstIndex(m.store.dragged, matches)
	}
	if idx < 0 {
		return false
	}

	tapped := (*partition)[idx]
	tapped.IsSelected = !tapped.IsSelected

	if !m.interactionDisabled {
		(*partition)[idx] = tapped
		if partition == &m.store.main {
			m.store.markMain()
		} else {
			m.store.markDragged()
		}
	}

	if m.tapObserver != nil {
		m.tapObserver([]core.Annotation{tapped})
	}

	if tapped.TapHandler == nil {
		return false
	}
	return tapped.TapHandler(ctx)
}

// HandleLongPress returns the result of the LongPressHandler of the
// annotation with featureID, or false.
func (m *Manager) HandleLongPress(featureID string, ctx core.GestureContext) bool {
	if m.destroyOnce.happened() {
		return false
	}

	all := m.store.all()
	idx := firstIndex(all, func(a core.Annotation) bool { return a.ID == featureID })
	if idx < 0 || all[idx].LongPressHandler == nil {
		return false
	}
	return all[idx].LongPressHandler(ctx)
}
