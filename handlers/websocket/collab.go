package websocket

import (
	"annotation-server/hub"
	"annotation-server/renderer/memory"
	"context"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	EventScene             = "scene"
	EventAnnotationGesture = "annotation-gesture"
	eventGestureAck        = "annotation-gesture-ack"

	gestureTimeout = 5 * time.Second
)

type (
	ackInvoker func(err error, payload map[string]any)

	// GestureHub dispatches gestures to managers.
	GestureHub interface {
		Gesture(ctx context.Context, g hub.Gesture) (bool, error)
	}

	// SceneStater returns the scene sent to newly connected clients.
	SceneStater interface {
		State() memory.State
	}
)

func SetupSocketIO(gestures GestureHub, scene SceneStater) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin:      []any{localhostOrigin},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		log := logrus.WithField("socket_id", socket.Id())
		log.Debug("Client connected")
		if err := socket.Emit(EventScene, scene.State()); err != nil {
			log.WithError(err).Warn("Failed to send scene")
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On(EventAnnotationGesture, func(datas ...any) {
			handleGesture(socket, gestures, datas)
		})

		socket.On("disconnect", func(datas ...any) {
			log.Debug("Client disconnected")
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

func handleGesture(socket *socketio.Socket, gestures GestureHub, datas []any) {
	ack, args := extractAck(datas)
	if len(args) == 0 {
		err := fmt.Errorf("gesture payload is required")
		respondWithAck(socket, ack, eventGestureAck, gestureAckPayload(false, err), err)
		return
	}

	g, err := parseGesture(args[0])
	if err != nil {
		respondWithAck(socket, ack, eventGestureAck, gestureAckPayload(false, err), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), gestureTimeout)
	defer cancel()

	handled, err := gestures.Gesture(ctx, g)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"manager_id": g.Manager,
			"kind":       g.Kind,
		}).Warn("Gesture rejected")
	}
	respondWithAck(socket, ack, eventGestureAck, gestureAckPayload(handled, err), err)
}

// parseGesture reads {manager, kind, featureId, translation, point,
// coordinate} as decoded from JSON.
func parseGesture(raw any) (hub.Gesture, error) {
	payload, ok := raw.(map[string]any)
	if !ok {
		return hub.Gesture{}, fmt.Errorf("gesture payload must be an object")
	}

	var g hub.Gesture
	g.Manager, _ = payload["manager"].(string)
	if g.Manager == "" {
		return hub.Gesture{}, fmt.Errorf("manager is required")
	}
	kind, _ := payload["kind"].(string)
	k, err := hub.ParseGestureKind(kind)
	if err != nil {
		return hub.Gesture{}, err
	}
	g.Kind = k
	g.FeatureID, _ = payload["featureId"].(string)

	for key, dst := range map[string]*orb.Point{
		"translation": &g.Translation,
		"point":       &g.Context.Point,
		"coordinate":  &g.Context.Coordinate,
	} {
		if v, ok := payload[key]; ok && v != nil {
			p, err := parsePoint(v)
			if err != nil {
				return hub.Gesture{}, fmt.Errorf("%s: %w", key, err)
			}
			*dst = p
		}
	}
	return g, nil
}

func parsePoint(v any) (orb.Point, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return orb.Point{}, fmt.Errorf("expected [x, y]")
	}
	var p orb.Point
	for i, c := range pair {
		f, ok := c.(float64)
		if !ok {
			return orb.Point{}, fmt.Errorf("expected numbers, got %T", c)
		}
		p[i] = f
	}
	return p, nil
}

func gestureAckPayload(handled bool, ackErr error) map[string]any {
	response := map[string]any{
		"status":  "ok",
		"handled": handled,
	}
	if ackErr != nil {
		response["status"] = "error"
		response["error"] = ackErr.Error()
	}
	return response
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		value.Call(buildAckArgs(typ, err, payload))
	}
}

// buildAckArgs fits (err, payload) to whatever signature the client's ack
// callback has.
func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		var argValue any
		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		}
		args[i] = coerceValue(argValue, typ.In(i))
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}
	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}
	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}
	if targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		if payload, ok := value.(map[string]any); ok {
			return convertMap(payload, targetType)
		}
	}

	return reflect.Zero(targetType)
}

func convertMap(source map[string]any, targetType reflect.Type) reflect.Value {
	result := reflect.MakeMapWithSize(targetType, len(source))
	for key, val := range source {
		keyValue := reflect.ValueOf(key).Convert(targetType.Key())
		valueValue := reflect.ValueOf(val)
		if !valueValue.IsValid() {
			valueValue = reflect.Zero(targetType.Elem())
		} else if !valueValue.Type().AssignableTo(targetType.Elem()) {
			if valueValue.Type().ConvertibleTo(targetType.Elem()) {
				valueValue = valueValue.Convert(targetType.Elem())
			} else {
				continue
			}
		}
		result.SetMapIndex(keyValue, valueValue)
	}
	return result
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
		return
	}
	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
