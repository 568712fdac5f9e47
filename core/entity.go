package core

import (
	"context"
	"errors"
	"sort"
)

// MaxSnapshotsPerManager is how many snapshots a store keeps per manager.
// Creating one more deletes the oldest.
const MaxSnapshotsPerManager = 10

var ErrSnapshotNotFound = errors.New("snapshot not found")

type (
	// Snapshot is a saved copy of a manager's logical annotation set.
	// Data holds the encoded FeatureCollection produced by EncodeAnnotations.
	Snapshot struct {
		ID        string `json:"id"`
		ManagerID string `json:"manager_id"`
		Name      string `json:"name"`
		CreatedAt int64  `json:"created_at"`
		Data      []byte `json:"data,omitempty"`
	}

	// SnapshotStore persists snapshots. List results are newest first and
	// omit Data.
	SnapshotStore interface {
		CreateSnapshot(ctx context.Context, managerID, name string, data []byte) (string, error)
		ListSnapshots(ctx context.Context, managerID string) ([]Snapshot, error)
		GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
		DeleteSnapshot(ctx context.Context, id string) error
	}
)

// SortSnapshots orders snapshots newest first. Ties are broken by id, which
// sorts by creation time for ULIDs.
func SortSnapshots(snapshots []Snapshot) {
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt == snapshots[j].CreatedAt {
			return snapshots[i].ID > snapshots[j].ID
		}
		return snapshots[i].CreatedAt > snapshots[j].CreatedAt
	})
}
