// Package annotations serves the manager registry over HTTP.
package annotations

import (
	"annotation-server/core"
	"annotation-server/hub"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	Hub interface {
		CreateManager(ctx context.Context, spec hub.ManagerSpec) error
		DestroyManager(ctx context.Context, id string) error
		ManagerIDs(ctx context.Context) ([]string, error)
		Annotations(ctx context.Context, id string) ([]core.Annotation, error)
		ReplaceAll(ctx context.Context, id string, as []core.Annotation) error
		UpsertKeyed(ctx context.Context, id string, pairs []core.KeyedAnnotation) error
		LayerStyle(ctx context.Context, id string) (core.LayerStyle, error)
		SetLayerStyle(ctx context.Context, id string, style core.LayerStyle) error
		SetLayerPosition(ctx context.Context, id string, position core.LayerPosition) error
	}

	ManagerListResponse struct {
		Managers []string `json:"managers"`
	}

	ManagerCreateResponse struct {
		ID string `json:"id"`
	}
)

// maxBodySize bounds uploaded feature collections.
const maxBodySize = 16 << 20

func statusFor(err error) int {
	switch {
	case errors.Is(err, hub.ErrManagerNotFound):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrManagerExists):
		return http.StatusConflict
	case errors.Is(err, hub.ErrInvalidManager):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		logrus.WithError(err).Error("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func HandleListManagers(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.ManagerIDs(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list managers")
			http.Error(w, "Failed to list managers", statusFor(err))
			return
		}
		render.JSON(w, r, ManagerListResponse{Managers: ids})
	}
}

// HandleCreateManager creates a manager from a JSON hub.ManagerSpec.
func HandleCreateManager(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec hub.ManagerSpec
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&spec); err != nil {
			logrus.WithError(err).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := h.CreateManager(r.Context(), spec); err != nil {
			logrus.WithError(err).WithField("manager_id", spec.ID).Error("Failed to create manager")
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, ManagerCreateResponse{ID: spec.ID})
	}
}

func HandleDestroyManager(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.DestroyManager(r.Context(), id); err != nil {
			logrus.WithError(err).WithField("manager_id", id).Error("Failed to destroy manager")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetAnnotations writes the annotations of a manager as a GeoJSON
// FeatureCollection.
func HandleGetAnnotations(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("manager_id", id)

		as, err := h.Annotations(r.Context(), id)
		if err != nil {
			log.WithError(err).Error("Failed to read annotations")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		data, err := core.EncodeAnnotations(as)
		if err != nil {
			log.WithError(err).Error("Failed to encode annotations")
			http.Error(w, "Failed to encode annotations", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			log.WithError(err).Error("Failed to write response")
		}
	}
}

// HandleReplaceAnnotations replaces the whole annotation list of a manager.
func HandleReplaceAnnotations(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("manager_id", id)

		body, ok := readBody(w, r)
		if !ok {
			return
		}
		as, err := core.DecodeAnnotations(body)
		if err != nil {
			log.WithError(err).Warn("Rejected feature collection")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.ReplaceAll(r.Context(), id, as); err != nil {
			log.WithError(err).Error("Failed to replace annotations")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		log.WithField("annotations", len(as)).Debug("Annotations replaced")
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUpsertKeyed feeds a declarative manager. Each feature's "key"
// property identifies it across updates.
func HandleUpsertKeyed(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("manager_id", id)

		body, ok := readBody(w, r)
		if !ok {
			return
		}
		pairs, err := core.DecodeKeyedAnnotations(body)
		if err != nil {
			log.WithError(err).Warn("Rejected feature collection")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.UpsertKeyed(r.Context(), id, pairs); err != nil {
			log.WithError(err).Error("Failed to upsert annotations")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleGetStyle(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		style, err := h.LayerStyle(r.Context(), id)
		if err != nil {
			logrus.WithError(err).WithField("manager_id", id).Error("Failed to read layer style")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		render.JSON(w, r, style)
	}
}

// HandleSetStyle replaces the manager-level layer style.
func HandleSetStyle(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("manager_id", id)

		var style core.LayerStyle
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&style); err != nil {
			log.WithError(err).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := style.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.SetLayerStyle(r.Context(), id, style); err != nil {
			log.WithError(err).Error("Failed to set layer style")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleSetPosition moves the manager's layers in the stack.
func HandleSetPosition(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var position core.LayerPosition
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&position); err != nil {
			logrus.WithError(err).WithField("manager_id", id).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := h.SetLayerPosition(r.Context(), id, position); err != nil {
			logrus.WithError(err).WithField("manager_id", id).Error("Failed to set layer position")
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
