package memory

import (
	"annotation-server/core"
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type snapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]core.Snapshot
}

func NewSnapshotStore() core.SnapshotStore {
	return &snapshotStore{
		snapshots: make(map[string]core.Snapshot),
	}
}

func (s *snapshotStore) CreateSnapshot(ctx context.Context, managerID, name string, data []byte) (string, error) {
	if managerID == "" {
		return "", fmt.Errorf("manager id is required")
	}

	id := ulid.Make().String()
	snapshot := core.Snapshot{
		ID:        id,
		ManagerID: managerID,
		Name:      name,
		CreatedAt: int64(ulid.Now()),
		Data:      append([]byte(nil), data...),
	}

	s.mu.Lock()
	s.snapshots[id] = snapshot
	pruned := s.prune(managerID)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"snapshot_id": id,
		"manager_id":  managerID,
		"data_length": len(data),
		"pruned":      pruned,
	}).Info("Snapshot created successfully")
	return id, nil
}

// prune drops the oldest snapshots of managerID beyond the retention limit.
// Callers hold the write lock.
func (s *snapshotStore) prune(managerID string) int {
	var owned []core.Snapshot
	for _, snapshot := range s.snapshots {
		if snapshot.ManagerID == managerID {
			owned = append(owned, snapshot)
		}
	}
	if len(owned) <= core.MaxSnapshotsPerManager {
		return 0
	}

	core.SortSnapshots(owned)
	for _, old := range owned[core.MaxSnapshotsPerManager:] {
		delete(s.snapshots, old.ID)
	}
	return len(owned) - core.MaxSnapshotsPerManager
}

func (s *snapshotStore) ListSnapshots(ctx context.Context, managerID string) ([]core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]core.Snapshot, 0)
	for _, snapshot := range s.snapshots {
		if snapshot.ManagerID != managerID {
			continue
		}
		snapshot.Data = nil
		snapshots = append(snapshots, snapshot)
	}
	core.SortSnapshots(snapshots)
	return snapshots, nil
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	log := logrus.WithField("snapshot_id", id)

	s.mu.RLock()
	snapshot, ok := s.snapshots[id]
	s.mu.RUnlock()

	if !ok {
		log.Warn("Snapshot with specified ID not found")
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
	}

	snapshot.Data = append([]byte(nil), snapshot.Data...)
	log.Debug("Snapshot retrieved successfully")
	return &snapshot, nil
}

func (s *snapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
	}
	delete(s.snapshots, id)
	logrus.WithField("snapshot_id", id).Info("Snapshot deleted successfully")
	return nil
}
