package stores

import (
	"annotation-server/config"
	"annotation-server/core"
	"annotation-server/stores/aws"
	"annotation-server/stores/filesystem"
	"annotation-server/stores/memory"
	"annotation-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the snapshot store selected by cfg.Type.
func GetStore(cfg config.Storage) core.SnapshotStore {
	var store core.SnapshotStore

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		basePath := cfg.LocalPath
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewSnapshotStore(basePath)
	case "sqlite":
		dataSourceName := cfg.DataSourceName
		if dataSourceName == "" {
			dataSourceName = "annotations.db"
		}
		storageField["dataSourceName"] = dataSourceName
		storageField["cgo"] = sqlite.CGOEnabled
		store = sqlite.NewSnapshotStore(dataSourceName)
	case "s3":
		if cfg.S3Bucket == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3Bucket
		store = aws.NewSnapshotStore(cfg.S3Bucket)
	default:
		store = memory.NewSnapshotStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
