package annotations

import (
	"annotation-server/core"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *recordingRenderer, *manualSignal) {
	t.Helper()
	r := newRecordingRenderer()
	s := &manualSignal{}
	m := NewManager("polygons", r, s, shiftOffsets{}, opts...)
	r.reset()
	return m, r, s
}

func TestNewManager_ProvisionsSourceAndLayer(t *testing.T) {
	r := newRecordingRenderer()
	s := &manualSignal{}
	idx := 2
	m := NewManager("polygons", r, s, shiftOffsets{}, WithLayerPosition(core.LayerPosition{Index: &idx}))

	assert.Equal(t, []string{"AddSource(polygons)", "AddPersistentLayer(polygons)"}, r.methods())
	c, _ := r.last("AddPersistentLayer", "polygons")
	assert.Equal(t, core.LayerPosition{Index: &idx}, c.arg)
	assert.Len(t, s.observers, 1)
	assert.Equal(t, []string{"polygons", "polygons_drag"}, m.AllLayerIDs())
}

func TestNewManager_SourceFailureSkipsLayer(t *testing.T) {
	r := newRecordingRenderer()
	r.fail["AddSource"] = errors.New("source exists")

	NewManager("polygons", r, nil, shiftOffsets{})

	assert.Equal(t, []string{"AddSource(polygons)"}, r.methods())
}

func TestSync_NoMutationNoCalls(t *testing.T) {
	_, r, s := newTestManager(t)

	s.fire()
	s.fire()

	assert.Empty(t, r.calls)
}

func TestSync_Idempotent(t *testing.T) {
	m, r, s := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", false), annotation("b", false)})

	s.fire()
	assert.Equal(t, []string{"ApplyDiff(polygons)", "SetLayerProperties(polygons)"}, r.methods())

	r.reset()
	s.fire()
	assert.Empty(t, r.calls)
}

func TestSync_ManyMutationsOneDiff(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", false)})
	m.SetAnnotations([]core.Annotation{annotation("b", false)})
	m.SetAnnotations([]core.Annotation{annotation("b", false), annotation("c", false)})

	m.Sync()

	c, ok := r.last("ApplyDiff", "polygons")
	require.True(t, ok)
	diff := c.arg.(core.SourceDiff)
	assert.Len(t, diff.Add, 2)
	assert.Empty(t, diff.Update)
	assert.Empty(t, diff.Remove)
}

func TestSync_EmptyScriptSkipsRenderer(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.SetAnnotations(nil)

	m.Sync()

	assert.Empty(t, r.calls)
}

func TestSetAnnotations_DropsDuplicates(t *testing.T) {
	m, _, _ := newTestManager(t)
	first := annotation("a", true)
	second := annotation("a", false)

	m.SetAnnotations([]core.Annotation{first, annotation("b", false), second})

	got := m.Annotations()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.True(t, got[0].IsDraggable)
}

func TestUpsertKeyed_ReusesIDForKnownKey(t *testing.T) {
	m, _, _ := newTestManager(t)

	first := annotation("id-1", true)
	first.IsSelected = true
	m.UpsertKeyed([]core.KeyedAnnotation{{Key: "home", Annotation: first}})

	got := m.Annotations()
	require.Len(t, got, 1)
	assert.Equal(t, "id-1", got[0].ID)
	assert.False(t, got[0].IsDraggable)
	assert.False(t, got[0].IsSelected)

	m.UpsertKeyed([]core.KeyedAnnotation{
		{Key: "home", Annotation: annotation("id-2", false)},
		{Key: "work", Annotation: annotation("id-3", false)},
	})

	assert.Equal(t, []string{"id-1", "id-3"}, ids(m.Annotations()))
}

func TestUpsertKeyed_StableIDsDiffAsUpdates(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.UpsertKeyed([]core.KeyedAnnotation{{Key: "home", Annotation: annotation("id-1", false)}})
	m.Sync()
	r.reset()

	m.UpsertKeyed([]core.KeyedAnnotation{{Key: "home", Annotation: annotation("id-2", false)}})
	m.Sync()

	c, ok := r.last("ApplyDiff", "polygons")
	require.True(t, ok)
	diff := c.arg.(core.SourceDiff)
	assert.Empty(t, diff.Add)
	assert.Empty(t, diff.Remove)
	require.Len(t, diff.Update, 1)
	assert.Equal(t, "id-1", diff.Update[0].ID)
}

func TestKeyedAnnotations_RestoreKeepsKeys(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.UpsertKeyed([]core.KeyedAnnotation{
		{Key: "home", Annotation: annotation("id-1", false)},
		{Key: "work", Annotation: annotation("id-2", false)},
	})
	saved := m.KeyedAnnotations()
	require.Len(t, saved, 2)
	assert.Equal(t, "home", saved[0].Key)
	assert.Equal(t, "work", saved[1].Key)

	other, _, _ := newTestManager(t)
	other.Restore(saved)
	assert.Equal(t, []string{"id-1", "id-2"}, ids(other.Annotations()))

	other.UpsertKeyed([]core.KeyedAnnotation{{Key: "work", Annotation: annotation("id-9", false)}})
	assert.Equal(t, []string{"id-2"}, ids(other.Annotations()))
}

func TestKeyedAnnotations_UnkeyedAndDragged(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", true), annotation("b", false)})
	require.True(t, m.HandleDragBegin("a", core.GestureContext{}))

	saved := m.KeyedAnnotations()
	require.Len(t, saved, 2)
	assert.Equal(t, "b", saved[0].Annotation.ID)
	assert.Equal(t, "a", saved[1].Annotation.ID)
	assert.Empty(t, saved[0].Key)
	assert.Empty(t, saved[1].Key)

	m.Restore(saved)
	assert.Equal(t, []string{"b", "a"}, ids(m.Annotations()))
	assert.True(t, m.Annotations()[1].IsDraggable)
}

func TestSyncLayer_DataDrivenAndLayerStyle(t *testing.T) {
	m, r, _ := newTestManager(t, WithLayerStyle(core.LayerStyle{FillAntialias: core.Bool(false)}))
	a := annotation("a", false)
	a.Style.FillColor = core.String("#00ff00")
	m.SetAnnotations([]core.Annotation{a})

	m.Sync()

	c, ok := r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	props := c.arg.(map[string]any)
	assert.Equal(t, []any{"get", "fill-color", []any{"get", "layerProperties"}}, props["fill-color"])
	assert.Equal(t, false, props["fill-antialias"])
	assert.Len(t, props, 2)
}

func TestSyncLayer_StaleKeyResetOnce(t *testing.T) {
	m, r, _ := newTestManager(t)
	styled := annotation("a", false)
	styled.Style.FillOpacity = core.Float(0.5)
	m.SetAnnotations([]core.Annotation{styled})
	m.Sync()

	m.SetAnnotations([]core.Annotation{annotation("a", false)})
	r.reset()
	m.Sync()

	c, ok := r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"fill-opacity": 1.0}, c.arg)

	m.SetAnnotations([]core.Annotation{annotation("b", false)})
	r.reset()
	m.Sync()

	c, ok = r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	assert.Empty(t, c.arg)
}

func TestSyncLayer_ResetWithoutDefaultClearsProperty(t *testing.T) {
	m, r, _ := newTestManager(t)
	patterned := annotation("a", false)
	patterned.Style.FillPattern = core.String("hatch")
	m.SetAnnotations([]core.Annotation{patterned})
	m.Sync()

	m.SetAnnotations(nil)
	r.reset()
	m.Sync()

	c, ok := r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	props := c.arg.(map[string]any)
	v, present := props["fill-pattern"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestSetLayerStyle(t *testing.T) {
	m, r, _ := newTestManager(t)

	err := m.SetLayerStyle(core.LayerStyle{FillEmissiveStrength: core.Float(-1)})
	require.Error(t, err)
	m.Sync()
	assert.Empty(t, r.calls)

	require.NoError(t, m.SetLayerStyle(core.LayerStyle{Slot: core.String("top")}))
	assert.Equal(t, "top", *m.LayerStyle().Slot)
	m.Sync()

	c, ok := r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"slot": "top"}, c.arg)
}

func TestSync_RendererFailureConsumesFlag(t *testing.T) {
	m, r, _ := newTestManager(t)
	r.fail["ApplyDiff"] = errors.New("source missing")
	m.SetAnnotations([]core.Annotation{annotation("a", false)})

	m.Sync()
	assert.Equal(t, []string{"ApplyDiff(polygons)", "SetLayerProperties(polygons)"}, r.methods())

	delete(r.fail, "ApplyDiff")
	r.reset()
	m.Sync()
	assert.Empty(t, r.calls)

	m.SetAnnotations([]core.Annotation{annotation("a", false)})
	m.Sync()
	c, ok := r.last("ApplyDiff", "polygons")
	require.True(t, ok)
	assert.Len(t, c.arg.(core.SourceDiff).Update, 1)
}

func TestSync_MainLayerFailureSkipsDragLayer(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", true), annotation("b", false)})
	m.Sync()
	require.True(t, m.HandleDragBegin("a", core.GestureContext{}))
	r.fail["SetLayerProperties:polygons"] = errors.New("layer missing")
	r.reset()

	m.Sync()

	_, ok := r.last("SetLayerProperties", "polygons_drag")
	assert.False(t, ok)
	_, ok = r.last("ReplaceSourceData", "polygons_drag")
	assert.True(t, ok)
}

func TestSyncLayer_DragLayerResetAfterMissedSync(t *testing.T) {
	m, r, _ := newTestManager(t, WithLayerStyle(core.LayerStyle{FillTranslate: []float64{5, 5}}))
	m.SetAnnotations([]core.Annotation{annotation("a", true)})
	m.Sync()
	require.True(t, m.HandleDragBegin("a", core.GestureContext{}))
	m.Sync()

	// The drag layer is empty while the manager style loses its key.
	m.SetAnnotations([]core.Annotation{annotation("b", true)})
	require.NoError(t, m.SetLayerStyle(core.LayerStyle{}))
	m.Sync()

	require.True(t, m.HandleDragBegin("b", core.GestureContext{}))
	r.reset()
	m.Sync()

	main, ok := r.last("SetLayerProperties", "polygons")
	require.True(t, ok)
	assert.Empty(t, main.arg)

	drag, ok := r.last("SetLayerProperties", "polygons_drag")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"fill-translate": core.FillTranslate.Default()}, drag.arg)

	// Once both layers are reset they stay in step.
	m.HandleDragChange(orb.Point{1, 0}, core.GestureContext{})
	require.NoError(t, m.SetLayerStyle(core.LayerStyle{FillAntialias: core.Bool(false)}))
	r.reset()
	m.Sync()
	main, _ = r.last("SetLayerProperties", "polygons")
	drag, _ = r.last("SetLayerProperties", "polygons_drag")
	assert.Equal(t, main.arg, drag.arg)
}

func TestSetLayerPosition(t *testing.T) {
	m, r, _ := newTestManager(t)
	r.fail["MoveLayer"] = errors.New("layer missing")

	m.SetLayerPosition(core.LayerPosition{Below: "labels"})

	c, ok := r.last("MoveLayer", "polygons")
	require.True(t, ok)
	assert.Equal(t, core.LayerPosition{Below: "labels"}, c.arg)
}

func TestDestroy_Idempotent(t *testing.T) {
	m, r, s := newTestManager(t)

	m.Destroy()
	m.Destroy()

	assert.Equal(t, []string{"RemoveLayer(polygons)", "RemoveSource(polygons)"}, r.methods())
	assert.Equal(t, 1, s.cancelled)
	assert.True(t, m.Destroyed())
}

func TestDestroy_RemovesDragLayerWhenCreated(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", true)})
	require.True(t, m.HandleDragBegin("a", core.GestureContext{}))
	r.reset()

	m.Destroy()

	assert.Equal(t, []string{
		"RemoveLayer(polygons)",
		"RemoveSource(polygons)",
		"RemoveLayer(polygons_drag)",
		"RemoveSource(polygons_drag)",
	}, r.methods())
}

func TestDestroy_FailuresAreAbsorbed(t *testing.T) {
	m, r, _ := newTestManager(t)
	r.fail["RemoveLayer"] = errors.New("layer missing")

	m.Destroy()

	assert.Equal(t, []string{"RemoveLayer(polygons)", "RemoveSource(polygons)"}, r.methods())
}

func TestDestroy_LaterCallsAreNoops(t *testing.T) {
	m, r, _ := newTestManager(t)
	m.SetAnnotations([]core.Annotation{annotation("a", true)})
	m.Destroy()
	r.reset()

	m.Sync()
	assert.False(t, m.HandleDragBegin("a", core.GestureContext{}))
	m.HandleDragChange(orb.Point{1, 1}, core.GestureContext{})
	m.HandleDragEnd(core.GestureContext{})
	assert.False(t, m.HandleTap("a", core.GestureContext{}))
	assert.False(t, m.HandleLongPress("a", core.GestureContext{}))

	assert.Empty(t, r.calls)
}
