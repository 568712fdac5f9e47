// Package hub owns the annotation managers of a server and runs every
// operation on them from the display loop goroutine.
package hub

import (
	"annotation-server/annotations"
	"annotation-server/core"
	"annotation-server/metrics"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

var (
	ErrManagerNotFound = errors.New("manager not found")
	ErrManagerExists   = errors.New("manager already exists")
	ErrInvalidManager  = errors.New("invalid manager")
	ErrUnknownGesture  = errors.New("unknown gesture")
)

type (
	// Loop is the display loop the hub schedules work on.
	Loop interface {
		core.Signal
		Do(ctx context.Context, fn func()) error
	}

	// ManagerSpec describes a manager to create.
	ManagerSpec struct {
		ID            string             `json:"id" yaml:"id"`
		LayerPosition core.LayerPosition `json:"layer_position,omitempty" yaml:"layer_position,omitempty"`
		Style         core.LayerStyle    `json:"style,omitempty" yaml:"style,omitempty"`
		// Declarative managers are fed through UpsertKeyed and ignore drags.
		Declarative bool `json:"declarative,omitempty" yaml:"declarative,omitempty"`
	}

	// TapListener is notified of annotations tapped on a manager.
	TapListener func(managerID string, tapped []core.Annotation)

	Option func(*Hub)
)

// WithTapListener registers fn for taps on every manager.
func WithTapListener(fn TapListener) Option {
	return func(h *Hub) {
		h.onTap = fn
	}
}

type Hub struct {
	loop     Loop
	renderer core.Renderer
	offsets  core.OffsetCalculator
	onTap    TapListener

	// managers is only touched on the loop goroutine.
	managers map[string]*annotations.Manager
}

func New(loop Loop, renderer core.Renderer, offsets core.OffsetCalculator, opts ...Option) *Hub {
	h := &Hub{
		loop:     loop,
		renderer: renderer,
		offsets:  offsets,
		managers: make(map[string]*annotations.Manager),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// run executes fn on the loop. Values captured by fn must only be read when
// run returns nil, since a Loop may still execute fn after giving up.
func (h *Hub) run(ctx context.Context, fn func() error) error {
	var err error
	if doErr := h.loop.Do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

func (h *Hub) withManager(ctx context.Context, id string, fn func(*annotations.Manager) error) error {
	return h.run(ctx, func() error {
		m, ok := h.managers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrManagerNotFound, id)
		}
		return fn(m)
	})
}

// CreateManager provisions a new manager in the renderer.
func (h *Hub) CreateManager(ctx context.Context, spec ManagerSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidManager)
	}
	if err := spec.Style.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidManager, err)
	}

	return h.run(ctx, func() error {
		if _, ok := h.managers[spec.ID]; ok {
			return fmt.Errorf("%w: %s", ErrManagerExists, spec.ID)
		}

		opts := []annotations.Option{
			annotations.WithLayerPosition(spec.LayerPosition),
			annotations.WithLayerStyle(spec.Style),
		}
		if spec.Declarative {
			opts = append(opts, annotations.WithInteractionDisabled())
		}
		if h.onTap != nil {
			id := spec.ID
			opts = append(opts, annotations.WithTapObserver(func(tapped []core.Annotation) {
				h.onTap(id, tapped)
			}))
		}

		h.managers[spec.ID] = annotations.NewManager(spec.ID, h.renderer, h.loop, h.offsets, opts...)
		metrics.SetManagers(len(h.managers))
		logrus.WithFields(logrus.Fields{
			"manager_id":  spec.ID,
			"declarative": spec.Declarative,
		}).Info("Manager created")
		return nil
	})
}

// DestroyManager tears the manager down and forgets it.
func (h *Hub) DestroyManager(ctx context.Context, id string) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		m.Destroy()
		delete(h.managers, id)
		metrics.SetManagers(len(h.managers))
		logrus.WithField("manager_id", id).Info("Manager destroyed")
		return nil
	})
}

// ManagerIDs returns the ids of all managers, sorted.
func (h *Hub) ManagerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := h.run(ctx, func() error {
		ids = make([]string, 0, len(h.managers))
		for id := range h.managers {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (h *Hub) Annotations(ctx context.Context, id string) ([]core.Annotation, error) {
	var as []core.Annotation
	err := h.withManager(ctx, id, func(m *annotations.Manager) error {
		as = m.Annotations()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return as, nil
}

func (h *Hub) ReplaceAll(ctx context.Context, id string, as []core.Annotation) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		m.SetAnnotations(as)
		return nil
	})
}

func (h *Hub) UpsertKeyed(ctx context.Context, id string, pairs []core.KeyedAnnotation) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		m.UpsertKeyed(pairs)
		return nil
	})
}

// KeyedAnnotations returns the annotations of a manager with their
// declarative keys.
func (h *Hub) KeyedAnnotations(ctx context.Context, id string) ([]core.KeyedAnnotation, error) {
	var pairs []core.KeyedAnnotation
	err := h.withManager(ctx, id, func(m *annotations.Manager) error {
		pairs = m.KeyedAnnotations()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (h *Hub) Restore(ctx context.Context, id string, pairs []core.KeyedAnnotation) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		m.Restore(pairs)
		return nil
	})
}

func (h *Hub) LayerStyle(ctx context.Context, id string) (core.LayerStyle, error) {
	var style core.LayerStyle
	err := h.withManager(ctx, id, func(m *annotations.Manager) error {
		style = m.LayerStyle()
		return nil
	})
	if err != nil {
		return core.LayerStyle{}, err
	}
	return style, nil
}

func (h *Hub) SetLayerStyle(ctx context.Context, id string, style core.LayerStyle) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		return m.SetLayerStyle(style)
	})
}

func (h *Hub) SetLayerPosition(ctx context.Context, id string, position core.LayerPosition) error {
	return h.withManager(ctx, id, func(m *annotations.Manager) error {
		m.SetLayerPosition(position)
		return nil
	})
}

// Gesture dispatches g to its manager and reports whether it was handled.
func (h *Hub) Gesture(ctx context.Context, g Gesture) (bool, error) {
	var handled bool
	err := h.withManager(ctx, g.Manager, func(m *annotations.Manager) error {
		switch g.Kind {
		case GestureTap:
			handled = m.HandleTap(g.FeatureID, g.Context)
		case GestureLongPress:
			handled = m.HandleLongPress(g.FeatureID, g.Context)
		case GestureDragBegin:
			handled = m.HandleDragBegin(g.FeatureID, g.Context)
		case GestureDragChange:
			m.HandleDragChange(g.Translation, g.Context)
			handled = true
		case GestureDragEnd:
			m.HandleDragEnd(g.Context)
			handled = true
		default:
			return fmt.Errorf("%w: %q", ErrUnknownGesture, g.Kind)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	metrics.CountGesture(string(g.Kind), handled)
	return handled, nil
}

// Close destroys every manager.
func (h *Hub) Close(ctx context.Context) error {
	return h.run(ctx, func() error {
		for id, m := range h.managers {
			m.Destroy()
			delete(h.managers, id)
		}
		metrics.SetManagers(0)
		return nil
	})
}
