package memory

import (
	"annotation-server/core"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(id string, x float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{x, 0})
	f.ID = id
	return f
}

func TestScene_SourceLifecycle(t *testing.T) {
	s := NewScene()

	require.NoError(t, s.AddSource("a"))
	assert.ErrorIs(t, s.AddSource("a"), ErrSourceExists)

	require.NoError(t, s.AddPersistentLayer(core.Layer{ID: "a", Type: "fill", Source: "a"}, core.LayerPosition{}))
	assert.ErrorIs(t, s.RemoveSource("a"), ErrSourceInUse)

	require.NoError(t, s.RemoveLayer("a"))
	require.NoError(t, s.RemoveSource("a"))
	assert.ErrorIs(t, s.RemoveSource("a"), ErrSourceNotFound)
}

func TestScene_AddLayerErrors(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))

	err := s.AddPersistentLayer(core.Layer{ID: "l", Source: "missing"}, core.LayerPosition{})
	assert.ErrorIs(t, err, ErrSourceNotFound)

	require.NoError(t, s.AddPersistentLayer(core.Layer{ID: "l", Source: "src"}, core.LayerPosition{}))
	err = s.AddPersistentLayer(core.Layer{ID: "l", Source: "src"}, core.LayerPosition{})
	assert.ErrorIs(t, err, ErrLayerExists)

	err = s.AddPersistentLayer(core.Layer{ID: "m", Source: "src"}, core.LayerPosition{Above: "nope"})
	assert.ErrorIs(t, err, ErrLayerNotFound)
}

func TestScene_LayerPositions(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))
	add := func(id string, position core.LayerPosition) {
		t.Helper()
		require.NoError(t, s.AddPersistentLayer(core.Layer{ID: id, Type: "fill", Source: "src"}, position))
	}
	zero := 0
	far := 99

	add("base", core.LayerPosition{})
	add("top", core.LayerPosition{})
	add("middle", core.LayerPosition{Below: "top"})
	add("above-base", core.LayerPosition{Above: "base"})
	add("bottom", core.LayerPosition{Index: &zero})
	add("last", core.LayerPosition{Index: &far})

	assert.Equal(t, []string{"bottom", "base", "above-base", "middle", "top", "last"}, s.LayerIDs())

	require.NoError(t, s.MoveLayer("bottom", core.LayerPosition{Above: "top"}))
	assert.Equal(t, []string{"base", "above-base", "middle", "top", "bottom", "last"}, s.LayerIDs())

	require.NoError(t, s.MoveLayer("last", core.LayerPosition{Below: "base"}))
	assert.Equal(t, []string{"last", "base", "above-base", "middle", "top", "bottom"}, s.LayerIDs())

	assert.ErrorIs(t, s.MoveLayer("middle", core.LayerPosition{Above: "nope"}), ErrLayerNotFound)
	assert.Equal(t, []string{"last", "base", "above-base", "middle", "top", "bottom"}, s.LayerIDs())

	assert.ErrorIs(t, s.MoveLayer("nope", core.LayerPosition{}), ErrLayerNotFound)
}

func TestScene_ApplyDiff(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))

	require.NoError(t, s.ApplyDiff("src", core.SourceDiff{Add: []*geojson.Feature{feature("a", 1), feature("b", 2)}}))
	require.NoError(t, s.ApplyDiff("src", core.SourceDiff{
		Add:    []*geojson.Feature{feature("c", 3)},
		Update: []*geojson.Feature{feature("a", 10)},
		Remove: []string{"b", "never-there"},
	}))

	fc, err := s.SourceData("src")
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "a", fc.Features[0].ID)
	assert.Equal(t, orb.Point{10, 0}, fc.Features[0].Geometry)
	assert.Equal(t, "c", fc.Features[1].ID)

	assert.ErrorIs(t, s.ApplyDiff("missing", core.SourceDiff{}), ErrSourceNotFound)
}

func TestScene_ReplaceSourceData(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))
	require.NoError(t, s.ApplyDiff("src", core.SourceDiff{Add: []*geojson.Feature{feature("a", 1)}}))

	fc := geojson.NewFeatureCollection()
	fc.Append(feature("z", 0))
	require.NoError(t, s.ReplaceSourceData("src", fc))

	got, err := s.SourceData("src")
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.Equal(t, "z", got.Features[0].ID)

	require.NoError(t, s.ReplaceSourceData("src", nil))
	got, _ = s.SourceData("src")
	assert.Empty(t, got.Features)

	assert.ErrorIs(t, s.ReplaceSourceData("missing", fc), ErrSourceNotFound)
}

func TestScene_LayerProperties(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))
	require.NoError(t, s.AddPersistentLayer(core.Layer{ID: "l", Source: "src"}, core.LayerPosition{}))

	require.NoError(t, s.SetLayerProperties("l", map[string]any{"fill-opacity": 0.5, "fill-pattern": "hatch"}))
	require.NoError(t, s.SetLayerProperties("l", map[string]any{"fill-pattern": nil}))

	props, err := s.LayerProperties("l")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fill-opacity": 0.5}, props)

	props["fill-opacity"] = 1.0
	again, _ := s.LayerProperties("l")
	assert.Equal(t, 0.5, again["fill-opacity"])

	assert.ErrorIs(t, s.SetLayerProperties("missing", nil), ErrLayerNotFound)
	_, err = s.LayerProperties("missing")
	assert.ErrorIs(t, err, ErrLayerNotFound)
}

func TestScene_StateIsJSON(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.AddSource("src"))
	require.NoError(t, s.AddPersistentLayer(core.Layer{ID: "l", Type: "fill", Source: "src"}, core.LayerPosition{}))
	require.NoError(t, s.ApplyDiff("src", core.SourceDiff{Add: []*geojson.Feature{feature("a", 1)}}))

	data, err := json.Marshal(s.State())
	require.NoError(t, err)

	var decoded struct {
		Sources map[string]json.RawMessage `json:"sources"`
		Layers  []map[string]any           `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded.Sources, "src")
	require.Len(t, decoded.Layers, 1)
	assert.Equal(t, "l", decoded.Layers[0]["id"])
}
