package websocket

import (
	"annotation-server/core"
	"annotation-server/hub"
	"annotation-server/renderer/memory"
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

type mockGestureHub struct {
	gestures []hub.Gesture
	handled  bool
	err      error
}

func (m *mockGestureHub) Gesture(ctx context.Context, g hub.Gesture) (bool, error) {
	m.gestures = append(m.gestures, g)
	return m.handled, m.err
}

type emitted struct {
	event string
	args  []any
}

type mockEmitter struct {
	events []emitted
}

func (m *mockEmitter) Emit(event string, args ...any) error {
	m.events = append(m.events, emitted{event: event, args: args})
	return nil
}

func TestParseGesture(t *testing.T) {
	g, err := parseGesture(map[string]any{
		"manager":     "parcels",
		"kind":        "drag-change",
		"featureId":   "a",
		"translation": []any{10.0, -5.0},
		"point":       []any{100.0, 200.0},
		"coordinate":  []any{13.4, 52.5},
	})
	if err != nil {
		t.Fatalf("parseGesture() failed: %v", err)
	}
	if g.Manager != "parcels" || g.Kind != hub.GestureDragChange || g.FeatureID != "a" {
		t.Errorf("Unexpected gesture: %+v", g)
	}
	if g.Translation != (orb.Point{10, -5}) {
		t.Errorf("Translation mismatch: %v", g.Translation)
	}
	if g.Context.Point != (orb.Point{100, 200}) || g.Context.Coordinate != (orb.Point{13.4, 52.5}) {
		t.Errorf("Context mismatch: %+v", g.Context)
	}
}

func TestParseGesture_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{"not an object", "tap"},
		{"missing manager", map[string]any{"kind": "tap"}},
		{"unknown kind", map[string]any{"manager": "parcels", "kind": "pinch"}},
		{"short point", map[string]any{"manager": "parcels", "kind": "tap", "point": []any{1.0}}},
		{"string coordinate", map[string]any{"manager": "parcels", "kind": "tap", "coordinate": []any{"1", "2"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseGesture(tt.payload); err == nil {
				t.Errorf("parseGesture(%v) should fail", tt.payload)
			}
		})
	}
}

func TestHandleGesture_Ack(t *testing.T) {
	gestures := &mockGestureHub{handled: true}

	var got map[string]any
	ack := func(err error, payload map[string]any) { got = payload }
	handleGesture(nil, gestures, []any{map[string]any{"manager": "parcels", "kind": "tap", "featureId": "a"}, ack})

	if len(gestures.gestures) != 1 || gestures.gestures[0].FeatureID != "a" {
		t.Fatalf("Gesture was not dispatched: %+v", gestures.gestures)
	}
	if got["status"] != "ok" || got["handled"] != true {
		t.Errorf("Unexpected ack payload: %v", got)
	}
}

func TestHandleGesture_ErrorAck(t *testing.T) {
	gestures := &mockGestureHub{err: hub.ErrManagerNotFound}

	var gotErr error
	var got map[string]any
	ack := func(err error, payload map[string]any) { gotErr, got = err, payload }
	handleGesture(nil, gestures, []any{map[string]any{"manager": "missing", "kind": "tap"}, ack})

	if !errors.Is(gotErr, hub.ErrManagerNotFound) {
		t.Errorf("Ack error = %v, want ErrManagerNotFound", gotErr)
	}
	if got["status"] != "error" || got["handled"] != false {
		t.Errorf("Unexpected ack payload: %v", got)
	}

	gotErr = nil
	handleGesture(nil, gestures, []any{ack})
	if gotErr == nil {
		t.Error("Missing payload should be acknowledged with an error")
	}
}

func TestExtractAck(t *testing.T) {
	if ack, args := extractAck([]any{"a", "b"}); ack != nil || len(args) != 2 {
		t.Errorf("extractAck() found an ack in plain args")
	}

	var got map[string]any
	ack, args := extractAck([]any{"a", func(payload map[string]any) { got = payload }})
	if ack == nil || len(args) != 1 {
		t.Fatalf("extractAck() = %v, %v", ack, args)
	}
	ack(nil, map[string]any{"status": "ok"})
	if got["status"] != "ok" {
		t.Errorf("Single argument ack should receive the payload, got %v", got)
	}

	var gotString string
	ack, _ = extractAck([]any{func(message string) { gotString = message }})
	ack(errors.New("boom"), nil)
	if gotString != "boom" {
		t.Errorf("String ack should receive the error text, got %q", gotString)
	}
}

func TestBroadcaster_EmitsAfterSuccess(t *testing.T) {
	scene := memory.NewScene()
	b := NewBroadcaster(scene)

	// Not attached yet: the call reaches the scene but nothing is sent.
	if err := b.AddSource("early"); err != nil {
		t.Fatalf("AddSource() failed: %v", err)
	}

	emitter := &mockEmitter{}
	b.Attach(emitter)

	if err := b.AddSource("parcels"); err != nil {
		t.Fatalf("AddSource() failed: %v", err)
	}
	if err := b.AddPersistentLayer(core.Layer{ID: "parcels", Type: "fill", Source: "parcels"}, core.LayerPosition{}); err != nil {
		t.Fatalf("AddPersistentLayer() failed: %v", err)
	}
	if err := b.AddSource("parcels"); err == nil {
		t.Fatal("Duplicate AddSource() should fail")
	}

	if len(emitter.events) != 2 {
		t.Fatalf("Expected 2 events, got %+v", emitter.events)
	}
	if emitter.events[0].event != EventSourceAdd || emitter.events[1].event != EventLayerAdd {
		t.Errorf("Unexpected events: %+v", emitter.events)
	}
	if ev, ok := emitter.events[1].args[0].(LayerEvent); !ok || ev.Layer.ID != "parcels" {
		t.Errorf("Unexpected layer payload: %+v", emitter.events[1].args)
	}
}

func TestBroadcaster_Tap(t *testing.T) {
	emitter := &mockEmitter{}
	b := NewBroadcaster(memory.NewScene())
	b.Attach(emitter)

	b.Tap("parcels", []core.Annotation{{ID: "a", Geometry: orb.Point{1, 2}}})

	if len(emitter.events) != 1 || emitter.events[0].event != EventAnnotationTap {
		t.Fatalf("Unexpected events: %+v", emitter.events)
	}
	ev := emitter.events[0].args[0].(TapEvent)
	if ev.Manager != "parcels" || len(ev.Features.Features) != 1 {
		t.Errorf("Unexpected tap payload: %+v", ev)
	}
}
