package sqlite

import (
	"annotation-server/core"
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const schema = `CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	manager_id TEXT NOT NULL,
	name TEXT,
	created_at INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_manager ON snapshots (manager_id, created_at);`

type snapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(dataSourceName string) core.SnapshotStore {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}
	// SQLite allows one writer; a single connection keeps concurrent
	// creates from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		stdlog.Fatal(err)
	}
	logrus.WithFields(logrus.Fields{
		"driver":      driverName,
		"cgo_enabled": CGOEnabled,
	}).Debug("Opened sqlite snapshot store")
	return newSnapshotStoreWithDB(db)
}

// newSnapshotStoreWithDB wraps an already migrated database.
func newSnapshotStoreWithDB(db *sql.DB) *snapshotStore {
	return &snapshotStore{db: db}
}

func (s *snapshotStore) CreateSnapshot(ctx context.Context, managerID, name string, data []byte) (string, error) {
	if managerID == "" {
		return "", fmt.Errorf("manager id is required")
	}

	id := ulid.Make().String()
	createdAt := int64(ulid.Now())
	if data == nil {
		data = []byte{}
	}

	log := logrus.WithFields(logrus.Fields{
		"snapshot_id": id,
		"manager_id":  managerID,
		"data_length": len(data),
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to begin transaction")
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, manager_id, name, created_at, data) VALUES (?, ?, ?, ?, ?)",
		id, managerID, name, createdAt, data)
	if err != nil {
		log.WithError(err).Error("Failed to create snapshot")
		return "", err
	}

	// Keep only the newest snapshots of this manager.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE manager_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE manager_id = ? ORDER BY created_at DESC, id DESC LIMIT ?)`,
		managerID, managerID, core.MaxSnapshotsPerManager)
	if err != nil {
		log.WithError(err).Error("Failed to prune old snapshots")
		return "", err
	}

	if err := tx.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit snapshot")
		return "", err
	}

	log.Info("Snapshot created successfully")
	return id, nil
}

func (s *snapshotStore) ListSnapshots(ctx context.Context, managerID string) ([]core.Snapshot, error) {
	log := logrus.WithField("manager_id", managerID)
	log.Debug("Listing snapshots for manager")

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, manager_id, name, created_at FROM snapshots WHERE manager_id = ? ORDER BY created_at DESC, id DESC",
		managerID)
	if err != nil {
		log.WithError(err).Error("Failed to list snapshots")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close snapshot rows")
		}
	}()

	snapshots := make([]core.Snapshot, 0)
	for rows.Next() {
		var snapshot core.Snapshot
		var name sql.NullString
		if err := rows.Scan(&snapshot.ID, &snapshot.ManagerID, &name, &snapshot.CreatedAt); err != nil {
			log.WithError(err).Error("Failed to scan snapshot")
			return nil, err
		}
		snapshot.Name = name.String
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	log := logrus.WithField("snapshot_id", id)
	log.Debug("Retrieving snapshot by ID")

	var snapshot core.Snapshot
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, manager_id, name, created_at, data FROM snapshots WHERE id = ?",
		id).Scan(&snapshot.ID, &snapshot.ManagerID, &name, &snapshot.CreatedAt, &snapshot.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Snapshot with specified ID not found")
			return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
		}
		log.WithError(err).Error("Failed to retrieve snapshot")
		return nil, err
	}
	snapshot.Name = name.String
	return &snapshot, nil
}

func (s *snapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	log := logrus.WithField("snapshot_id", id)

	result, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		log.WithError(err).Error("Failed to delete snapshot")
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
	}

	log.Info("Snapshot deleted successfully")
	return nil
}
