// Package metrics exposes prometheus instrumentation for the display loop,
// the managers and the renderer they drive.
package metrics

import (
	"annotation-server/core"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rendererCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotation_renderer_calls_total",
		Help: "Total number of renderer calls by method",
	}, []string{"method"})

	rendererErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotation_renderer_errors_total",
		Help: "Total number of failed renderer calls by method",
	}, []string{"method"})

	diffFeaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotation_diff_features_total",
		Help: "Total number of features sent in source diffs by edit kind",
	}, []string{"kind"})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "annotation_tick_duration_seconds",
		Help:    "Time spent syncing managers per display frame",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.016},
	})

	managersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "annotation_managers",
		Help: "Current number of annotation managers",
	})

	gesturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annotation_gestures_total",
		Help: "Total number of gestures dispatched by kind and outcome",
	}, []string{"kind", "handled"})
)

// ObserveTick records the duration of one display frame.
func ObserveTick(elapsed time.Duration) {
	tickDuration.Observe(elapsed.Seconds())
}

// SetManagers records the number of live managers.
func SetManagers(n int) {
	managersGauge.Set(float64(n))
}

// CountGesture records a dispatched gesture.
func CountGesture(kind string, handled bool) {
	h := "false"
	if handled {
		h = "true"
	}
	gesturesTotal.WithLabelValues(kind, h).Inc()
}

// InstrumentRenderer counts every call made to next.
func InstrumentRenderer(next core.Renderer) core.Renderer {
	return &instrumentedRenderer{next: next}
}

type instrumentedRenderer struct {
	next core.Renderer
}

func (r *instrumentedRenderer) observe(method string, err error) error {
	rendererCallsTotal.WithLabelValues(method).Inc()
	if err != nil {
		rendererErrorsTotal.WithLabelValues(method).Inc()
	}
	return err
}

func (r *instrumentedRenderer) AddSource(id string) error {
	return r.observe("add_source", r.next.AddSource(id))
}

func (r *instrumentedRenderer) RemoveSource(id string) error {
	return r.observe("remove_source", r.next.RemoveSource(id))
}

func (r *instrumentedRenderer) AddPersistentLayer(layer core.Layer, position core.LayerPosition) error {
	return r.observe("add_layer", r.next.AddPersistentLayer(layer, position))
}

func (r *instrumentedRenderer) RemoveLayer(id string) error {
	return r.observe("remove_layer", r.next.RemoveLayer(id))
}

func (r *instrumentedRenderer) MoveLayer(id string, position core.LayerPosition) error {
	return r.observe("move_layer", r.next.MoveLayer(id, position))
}

func (r *instrumentedRenderer) SetLayerProperties(id string, properties map[string]any) error {
	return r.observe("set_layer_properties", r.next.SetLayerProperties(id, properties))
}

func (r *instrumentedRenderer) ApplyDiff(sourceID string, diff core.SourceDiff) error {
	diffFeaturesTotal.WithLabelValues("add").Add(float64(len(diff.Add)))
	diffFeaturesTotal.WithLabelValues("update").Add(float64(len(diff.Update)))
	diffFeaturesTotal.WithLabelValues("remove").Add(float64(len(diff.Remove)))
	return r.observe("apply_diff", r.next.ApplyDiff(sourceID, diff))
}

func (r *instrumentedRenderer) ReplaceSourceData(id string, data *geojson.FeatureCollection) error {
	return r.observe("replace_source_data", r.next.ReplaceSourceData(id, data))
}
