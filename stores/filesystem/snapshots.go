package filesystem

import (
	"annotation-server/core"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const snapshotExt = ".json"

type snapshotStore struct {
	// mu serializes writers so retention sees a consistent directory.
	mu       sync.Mutex
	basePath string
}

// NewSnapshotStore creates a store keeping one JSON file per snapshot under basePath.
func NewSnapshotStore(basePath string) core.SnapshotStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &snapshotStore{basePath: basePath}
}

// snapshotPath resolves id inside basePath, refusing anything that is not a
// plain file name.
func (s *snapshotStore) snapshotPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\:`) {
		return "", fmt.Errorf("invalid snapshot id %q", id)
	}
	return filepath.Join(s.basePath, id+snapshotExt), nil
}

func (s *snapshotStore) CreateSnapshot(ctx context.Context, managerID, name string, data []byte) (string, error) {
	if managerID == "" {
		return "", fmt.Errorf("manager id is required")
	}

	id := ulid.Make().String()
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{
		"snapshot_id": id,
		"manager_id":  managerID,
		"file_path":   filePath,
	})

	encoded, err := json.Marshal(core.Snapshot{
		ID:        id,
		ManagerID: managerID,
		Name:      name,
		CreatedAt: int64(ulid.Now()),
		Data:      data,
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filePath, encoded, 0644); err != nil {
		log.WithError(err).Error("Failed to create snapshot")
		return "", err
	}
	s.prune(managerID)

	log.Info("Snapshot created successfully")
	return id, nil
}

// prune removes the oldest snapshots of managerID beyond the retention
// limit. Callers hold mu.
func (s *snapshotStore) prune(managerID string) {
	owned, err := s.readAll(managerID)
	if err != nil || len(owned) <= core.MaxSnapshotsPerManager {
		return
	}
	core.SortSnapshots(owned)
	for _, old := range owned[core.MaxSnapshotsPerManager:] {
		if filePath, err := s.snapshotPath(old.ID); err == nil {
			if err := os.Remove(filePath); err != nil {
				logrus.WithError(err).WithField("snapshot_id", old.ID).Warn("Failed to prune snapshot")
			}
		}
	}
}

// readAll decodes every snapshot belonging to managerID.
func (s *snapshotStore) readAll(managerID string) ([]core.Snapshot, error) {
	log := logrus.WithField("manager_id", managerID)

	files, err := os.ReadDir(s.basePath)
	if err != nil {
		log.WithError(err).Error("Failed to read snapshot directory")
		return nil, err
	}

	snapshots := make([]core.Snapshot, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != snapshotExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read snapshot file %s, skipping", file.Name())
			continue
		}
		var snapshot core.Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal snapshot file %s, skipping", file.Name())
			continue
		}
		if snapshot.ManagerID == managerID {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots, nil
}

func (s *snapshotStore) ListSnapshots(ctx context.Context, managerID string) ([]core.Snapshot, error) {
	snapshots, err := s.readAll(managerID)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		snapshots[i].Data = nil
	}
	core.SortSnapshots(snapshots)
	return snapshots, nil
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"snapshot_id": id, "file_path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Snapshot with specified ID not found")
			return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
		}
		log.WithError(err).Error("Failed to read snapshot")
		return nil, err
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.WithError(err).Error("Failed to unmarshal snapshot")
		return nil, err
	}
	log.Debug("Snapshot retrieved successfully")
	return &snapshot, nil
}

func (s *snapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	filePath, err := s.snapshotPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
		}
		return err
	}
	logrus.WithField("snapshot_id", id).Info("Snapshot deleted successfully")
	return nil
}
