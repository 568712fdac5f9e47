// Package annotations keeps a collection of annotations synchronized with a
// renderer's sources and layers.
//
// A Manager is not safe for concurrent use. All of its methods, including
// the Sync it subscribes to the display signal, must run on one goroutine.
package annotations

import (
	"annotation-server/core"
	"fmt"

	"github.com/sirupsen/logrus"
)

const layerType = "fill"

// Option configures a Manager.
type Option func(*Manager)

// WithLayerPosition places the main layer when it is created.
func WithLayerPosition(position core.LayerPosition) Option {
	return func(m *Manager) {
		m.layerPosition = position
	}
}

// WithLayerStyle sets the initial manager-level style.
func WithLayerStyle(style core.LayerStyle) Option {
	return func(m *Manager) {
		m.layerStyle = style
		m.layerDirty.Mark()
	}
}

// WithTapObserver registers a callback notified of every tapped annotation.
func WithTapObserver(fn func(tapped []core.Annotation)) Option {
	return func(m *Manager) {
		m.tapObserver = fn
	}
}

// WithInteractionDisabled makes the manager read-only for gestures: drags
// are refused and taps do not write selection back. Used when annotations
// are owned by a declarative caller.
func WithInteractionDisabled() Option {
	return func(m *Manager) {
		m.interactionDisabled = true
	}
}

// Manager is responsible for a collection of fill annotations.
type Manager struct {
	id       string
	renderer core.Renderer
	offsets  core.OffsetCalculator
	log      *logrus.Entry

	store *collection

	layerPosition core.LayerPosition
	layerStyle    core.LayerStyle
	// previousKeys are the property keys set by the previous layer sync.
	previousKeys     map[core.StyleProperty]struct{}
	dragPreviousKeys map[core.StyleProperty]struct{}
	layerDirty       DirtyFlag

	dragLayerOnce once
	destroyOnce   once
	subscription  core.Cancelable

	interactionDisabled bool
	tapObserver         func([]core.Annotation)
}

// NewManager provisions the manager's source and layer in renderer and
// subscribes Sync to signal.
func NewManager(id string, renderer core.Renderer, signal core.Signal, offsets core.OffsetCalculator, opts ...Option) *Manager {
	m := &Manager{
		id:               id,
		renderer:         renderer,
		offsets:          offsets,
		log:              logrus.WithField("manager_id", id),
		store:            newCollection(),
		previousKeys:     make(map[core.StyleProperty]struct{}),
		dragPreviousKeys: make(map[core.StyleProperty]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.renderer.AddSource(m.SourceID()); err != nil {
		m.log.WithError(err).Error("Failed to create source")
	} else if err := m.renderer.AddPersistentLayer(core.Layer{ID: m.LayerID(), Type: layerType, Source: m.SourceID()}, m.layerPosition); err != nil {
		m.log.WithError(err).Error("Failed to create layer")
	}

	if signal != nil {
		m.subscription = signal.Observe(m.Sync)
	}
	return m
}

func (m *Manager) ID() string { return m.id }

// SourceID is the id of the main source.
func (m *Manager) SourceID() string { return m.id }

// LayerID is the id of the main layer.
func (m *Manager) LayerID() string { return m.id }

// DragLayerID is the id shared by the drag source and layer.
func (m *Manager) DragLayerID() string { return fmt.Sprintf("%s_drag", m.id) }

// AllLayerIDs returns the ids of every layer the manager may own.
func (m *Manager) AllLayerIDs() []string {
	return []string{m.LayerID(), m.DragLayerID()}
}

// Annotations returns the logical annotation set: main annotations followed
// by dragged ones, which render on top.
func (m *Manager) Annotations() []core.Annotation {
	return m.store.all()
}

// SetAnnotations replaces the whole collection. Annotations with a
// duplicate id are dropped, keeping the first. Dragged annotations are not
// preserved.
func (m *Manager) SetAnnotations(as []core.Annotation) {
	m.store.replaceAll(as)
}

// UpsertKeyed replaces the collection from a declarative description. Each
// key keeps the id it was first seen with, and interactive flags are cleared.
func (m *Manager) UpsertKeyed(pairs []core.KeyedAnnotation) {
	m.store.upsertKeyed(pairs)
}

// KeyedAnnotations returns Annotations paired with their declarative keys.
// Annotations that were not set through UpsertKeyed have an empty key.
func (m *Manager) KeyedAnnotations() []core.KeyedAnnotation {
	return m.store.keyed()
}

// Restore replaces the collection with annotations read back from
// KeyedAnnotations. Ids and flags are kept as given and the keys become the
// ones later UpsertKeyed calls resolve against.
func (m *Manager) Restore(pairs []core.KeyedAnnotation) {
	m.store.restore(pairs)
}

// LayerStyle returns the manager-level style.
func (m *Manager) LayerStyle() core.LayerStyle {
	return m.layerStyle
}

// SetLayerStyle validates and stores the manager-level style; it is applied
// on the next sync.
func (m *Manager) SetLayerStyle(style core.LayerStyle) error {
	if err := style.Validate(); err != nil {
		return err
	}
	m.layerStyle = style
	m.layerDirty.Mark()
	return nil
}

// SetLayerPosition moves the main layer.
func (m *Manager) SetLayerPosition(position core.LayerPosition) {
	m.layerPosition = position
	if err := m.renderer.MoveLayer(m.LayerID(), position); err != nil {
		m.log.WithError(err).Error("Failed to move layer to a new position")
	}
}

// InteractionEnabled reports whether gestures may mutate annotations.
func (m *Manager) InteractionEnabled() bool {
	return !m.interactionDisabled
}

// Destroyed reports whether Destroy has run.
func (m *Manager) Destroyed() bool {
	return m.destroyOnce.happened()
}

// Destroy cancels the display subscription and removes everything the
// manager added to the renderer. Subsequent calls do nothing.
func (m *Manager) Destroy() {
	m.destroyOnce.do(func() {
		if m.subscription != nil {
			m.subscription.Cancel()
		}

		m.removeQuietly("layer", func() error { return m.renderer.RemoveLayer(m.LayerID()) })
		m.removeQuietly("source", func() error { return m.renderer.RemoveSource(m.SourceID()) })

		if m.dragLayerOnce.happened() {
			m.removeQuietly("drag source and layer", func() error {
				if err := m.renderer.RemoveLayer(m.DragLayerID()); err != nil {
					return err
				}
				return m.renderer.RemoveSource(m.DragLayerID())
			})
		}
	})
}

func (m *Manager) removeQuietly(what string, remove func() error) {
	if err := remove(); err != nil {
		m.log.WithError(err).Warnf("Failed to remove %s", what)
	}
}
