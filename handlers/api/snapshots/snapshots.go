package snapshots

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
	CreateSnapshotRequest struct {
		Name string `json:"name"`
	}

	CreateSnapshotResponse struct {
		ID string `json:"id"`
	}

	// SnapshotResponse is a snapshot with its data inlined as GeoJSON.
	SnapshotResponse struct {
		ID        string          `json:"id"`
		ManagerID string          `json:"manager_id"`
		Name      string          `json:"name"`
		CreatedAt int64           `json:"created_at"`
		Data      json.RawMessage `json:"data"`
	}

	// Annotator reads and restores the annotations of a manager, keys included.
	Annotator interface {
		KeyedAnnotations(ctx context.Context, managerID string) ([]core.KeyedAnnotation, error)
		Restore(ctx context.Context, managerID string, pairs []core.KeyedAnnotation) error
	}
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSnapshotNotFound), errors.Is(err, hub.ErrManagerNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleCreateSnapshot saves the current annotations of a manager.
func HandleCreateSnapshot(store core.SnapshotStore, annotator Annotator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		managerID := chi.URLParam(r, "id")
		log := logrus.WithField("manager_id", managerID)

		var req CreateSnapshotRequest
		// An empty body saves an unnamed snapshot.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			log.WithError(err).Error("Failed to decode request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		pairs, err := annotator.KeyedAnnotations(r.Context(), managerID)
		if err != nil {
			log.WithError(err).Error("Failed to read annotations")
			http.Error(w, "Failed to read annotations", statusFor(err))
			return
		}
		data, err := core.EncodeKeyedAnnotations(pairs)
		if err != nil {
			log.WithError(err).Error("Failed to encode annotations")
			http.Error(w, "Failed to encode annotations", http.StatusInternalServerError)
			return
		}

		id, err := store.CreateSnapshot(r.Context(), managerID, req.Name, data)
		if err != nil {
			log.WithError(err).Error("Failed to create snapshot")
			http.Error(w, "Failed to create snapshot", http.StatusInternalServerError)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateSnapshotResponse{ID: id})
	}
}

// HandleListSnapshots lists the snapshots of a manager, newest first.
func HandleListSnapshots(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		managerID := chi.URLParam(r, "id")

		snapshots, err := store.ListSnapshots(r.Context(), managerID)
		if err != nil {
			logrus.WithError(err).WithField("manager_id", managerID).Error("Failed to list snapshots")
			http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
			return
		}
		if snapshots == nil {
			snapshots = []core.Snapshot{}
		}

		render.JSON(w, r, snapshots)
	}
}

func HandleGetSnapshot(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotId")

		snapshot, err := store.GetSnapshot(r.Context(), snapshotID)
		if err != nil {
			logrus.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to get snapshot")
			http.Error(w, "Snapshot not found", statusFor(err))
			return
		}

		render.JSON(w, r, SnapshotResponse{
			ID:        snapshot.ID,
			ManagerID: snapshot.ManagerID,
			Name:      snapshot.Name,
			CreatedAt: snapshot.CreatedAt,
			Data:      json.RawMessage(snapshot.Data),
		})
	}
}

func HandleDeleteSnapshot(store core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotId")

		if err := store.DeleteSnapshot(r.Context(), snapshotID); err != nil {
			logrus.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to delete snapshot")
			http.Error(w, "Failed to delete snapshot", statusFor(err))
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleRestoreSnapshot replaces the annotations of a manager with the
// contents of one of its snapshots.
func HandleRestoreSnapshot(store core.SnapshotStore, annotator Annotator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		managerID := chi.URLParam(r, "id")
		snapshotID := chi.URLParam(r, "snapshotId")
		log := logrus.WithFields(logrus.Fields{
			"manager_id":  managerID,
			"snapshot_id": snapshotID,
		})

		snapshot, err := store.GetSnapshot(r.Context(), snapshotID)
		if err != nil {
			log.WithError(err).Error("Failed to get snapshot")
			http.Error(w, "Snapshot not found", statusFor(err))
			return
		}
		if snapshot.ManagerID != managerID {
			log.Warn("Snapshot belongs to another manager")
			http.Error(w, "Snapshot not found", http.StatusNotFound)
			return
		}

		pairs, err := core.DecodeSavedAnnotations(snapshot.Data)
		if err != nil {
			log.WithError(err).Error("Failed to decode snapshot")
			http.Error(w, "Corrupt snapshot", http.StatusInternalServerError)
			return
		}
		if err := annotator.Restore(r.Context(), managerID, pairs); err != nil {
			log.WithError(err).Error("Failed to restore snapshot")
			http.Error(w, "Failed to restore snapshot", statusFor(err))
			return
		}

		log.WithField("annotations", len(pairs)).Info("Snapshot restored")
		w.WriteHeader(http.StatusNoContent)
	}
}
