// Package storetest holds behaviour tests shared by every core.SnapshotStore
// implementation.
package storetest

import (
	"annotation-server/core"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// Run exercises a store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) core.SnapshotStore) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, newStore(t)) })
	t.Run("ListIsolatesManagers", func(t *testing.T) { testListIsolatesManagers(t, newStore(t)) })
	t.Run("Retention", func(t *testing.T) { testRetention(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()
	data := []byte(`{"type":"FeatureCollection","features":[]}`)

	id, err := store.CreateSnapshot(ctx, "parcels", "before edit", data)
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("CreateSnapshot() returned invalid ID length: got %d, want 26", len(id))
	}

	snapshot, err := store.GetSnapshot(ctx, id)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snapshot.ID != id || snapshot.ManagerID != "parcels" || snapshot.Name != "before edit" {
		t.Errorf("GetSnapshot() returned wrong metadata: %+v", snapshot)
	}
	if !bytes.Equal(snapshot.Data, data) {
		t.Errorf("Data mismatch: got %q, want %q", snapshot.Data, data)
	}
	if snapshot.CreatedAt == 0 {
		t.Error("CreatedAt was not set")
	}
}

func testGetNotFound(t *testing.T, store core.SnapshotStore) {
	_, err := store.GetSnapshot(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Errorf("GetSnapshot() error = %v, want ErrSnapshotNotFound", err)
	}
}

func testListNewestFirst(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.CreateSnapshot(ctx, "parcels", fmt.Sprintf("snapshot %d", i), []byte("data"))
		if err != nil {
			t.Fatalf("CreateSnapshot() failed: %v", err)
		}
		ids = append(ids, id)
	}

	snapshots, err := store.ListSnapshots(ctx, "parcels")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snapshots) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(snapshots))
	}
	for i, snapshot := range snapshots {
		if want := ids[len(ids)-1-i]; snapshot.ID != want {
			t.Errorf("snapshots[%d] = %s, want %s", i, snapshot.ID, want)
		}
		if snapshot.Data != nil {
			t.Errorf("ListSnapshots() should omit data, got %d bytes", len(snapshot.Data))
		}
	}
}

func testListIsolatesManagers(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()
	if _, err := store.CreateSnapshot(ctx, "parcels", "a", []byte("a")); err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if _, err := store.CreateSnapshot(ctx, "labels", "b", []byte("b")); err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	snapshots, err := store.ListSnapshots(ctx, "labels")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].ManagerID != "labels" {
		t.Errorf("ListSnapshots() leaked other managers: %+v", snapshots)
	}

	empty, err := store.ListSnapshots(ctx, "unknown")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no snapshots, got %d", len(empty))
	}
}

func testRetention(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < core.MaxSnapshotsPerManager+2; i++ {
		id, err := store.CreateSnapshot(ctx, "parcels", fmt.Sprintf("snapshot %d", i), []byte("data"))
		if err != nil {
			t.Fatalf("CreateSnapshot() failed: %v", err)
		}
		ids = append(ids, id)
	}

	snapshots, err := store.ListSnapshots(ctx, "parcels")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snapshots) != core.MaxSnapshotsPerManager {
		t.Fatalf("Expected %d snapshots, got %d", core.MaxSnapshotsPerManager, len(snapshots))
	}
	for _, oldest := range ids[:2] {
		if _, err := store.GetSnapshot(ctx, oldest); !errors.Is(err, core.ErrSnapshotNotFound) {
			t.Errorf("Oldest snapshot %s should have been pruned, got err %v", oldest, err)
		}
	}
	if snapshots[0].ID != ids[len(ids)-1] {
		t.Errorf("Newest snapshot should be kept first, got %s", snapshots[0].ID)
	}
}

func testDelete(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()
	id, err := store.CreateSnapshot(ctx, "parcels", "doomed", []byte("data"))
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	if err := store.DeleteSnapshot(ctx, id); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	if _, err := store.GetSnapshot(ctx, id); !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Errorf("GetSnapshot() after delete error = %v, want ErrSnapshotNotFound", err)
	}
	if err := store.DeleteSnapshot(ctx, id); !errors.Is(err, core.ErrSnapshotNotFound) {
		t.Errorf("Second DeleteSnapshot() error = %v, want ErrSnapshotNotFound", err)
	}
}

func testConcurrentCreate(t *testing.T, store core.SnapshotStore) {
	ctx := context.Background()

	numGoroutines := 8
	var wg sync.WaitGroup
	idsMutex := sync.Mutex{}
	ids := make(map[string]bool, numGoroutines)
	errorsMutex := sync.Mutex{}
	var testErrors []error

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			managerID := fmt.Sprintf("manager-%d", index)
			id, err := store.CreateSnapshot(ctx, managerID, "concurrent", []byte(managerID))
			if err != nil {
				errorsMutex.Lock()
				testErrors = append(testErrors, err)
				errorsMutex.Unlock()
				return
			}
			idsMutex.Lock()
			ids[id] = true
			idsMutex.Unlock()
		}(i)
	}

	wg.Wait()

	for _, err := range testErrors {
		t.Errorf("Concurrent CreateSnapshot() failed: %v", err)
	}
	if len(ids) != numGoroutines {
		t.Errorf("Expected %d unique IDs, got %d", numGoroutines, len(ids))
	}
}
