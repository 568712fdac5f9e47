package annotations

import (
	"annotation-server/core"
	"slices"
)

// Sync pushes owed changes to the renderer. It is driven by the display
// signal and does nothing when no mutation happened since the last call.
func (m *Manager) Sync() {
	if m.destroyOnce.happened() {
		return
	}

	m.syncSource()
	m.syncDragSource()
	m.syncLayer()
}

func (m *Manager) syncSource() {
	if !m.store.mainDirty.ConsumeIfPending() {
		return
	}

	script := Diff(m.store.displayed, m.store.main)
	m.store.displayed = slices.Clone(m.store.main)
	if script.IsEmpty() {
		return
	}
	// The set of present annotations changed, so may the set of style keys.
	m.layerDirty.Mark()

	if err := m.renderer.ApplyDiff(m.SourceID(), script.SourceDiff()); err != nil {
		m.log.WithError(err).WithField("source_id", m.SourceID()).Error("Failed to apply annotations diff")
	}
}

func (m *Manager) syncDragSource() {
	if !m.store.dragDirty.ConsumeIfPending() {
		return
	}
	if !m.dragLayerOnce.happened() {
		return
	}

	data := core.FeatureCollection(m.store.dragged)
	if err := m.renderer.ReplaceSourceData(m.DragLayerID(), data); err != nil {
		m.log.WithError(err).WithField("source_id", m.DragLayerID()).Error("Failed to update drag source")
	}
}

func (m *Manager) syncLayer() {
	if !m.layerDirty.ConsumeIfPending() {
		return
	}

	merged := mergeLayerStyle(m.store.all(), m.layerStyle)
	var properties map[string]any
	properties, m.previousKeys = layerProperties(merged, m.previousKeys)

	if err := m.renderer.SetLayerProperties(m.LayerID(), properties); err != nil {
		m.log.WithError(err).WithField("layer_id", m.LayerID()).Error("Could not set layer properties")
		return
	}
	if len(m.store.dragged) == 0 {
		return
	}
	// The drag layer misses syncs while it is empty, so its resets are
	// computed against what it was last given.
	dragProperties, dragKeys := layerProperties(merged, m.dragPreviousKeys)
	if err := m.renderer.SetLayerProperties(m.DragLayerID(), dragProperties); err != nil {
		m.log.WithError(err).WithField("layer_id", m.DragLayerID()).Error("Could not set drag layer properties")
		return
	}
	m.dragPreviousKeys = dragKeys
}

// dataDrivenExpression reads p from a feature's layerProperties.
func dataDrivenExpression(p core.StyleProperty) []any {
	return []any{"get", p.String(), []any{"get", core.FeatureLayerPropertiesKey}}
}

// mergeLayerStyle combines the per-annotation style keys, read back through
// data-driven expressions, with the manager style. Manager values win.
func mergeLayerStyle(as []core.Annotation, style core.LayerStyle) map[core.StyleProperty]any {
	merged := make(map[core.StyleProperty]any)
	for _, a := range as {
		for p := range a.Style.Values() {
			merged[p] = dataDrivenExpression(p)
		}
	}
	for p, v := range style.Values() {
		merged[p] = v
	}
	return merged
}

// layerProperties turns merged into wire-level layer properties. Keys in
// previous that are no longer present are reset to their default. It
// returns the properties and the keys to compare against next time.
func layerProperties(merged map[core.StyleProperty]any, previous map[core.StyleProperty]struct{}) (map[string]any, map[core.StyleProperty]struct{}) {
	keys := make(map[core.StyleProperty]struct{}, len(merged))
	properties := make(map[string]any, len(merged)+len(previous))
	for p, v := range merged {
		keys[p] = struct{}{}
		properties[p.String()] = v
	}
	for p := range previous {
		if _, ok := keys[p]; !ok {
			properties[p.String()] = p.Default()
		}
	}
	return properties, keys
}
