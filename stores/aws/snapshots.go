package aws

import (
	"annotation-server/core"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const snapshotExt = ".json"

// objectAPI is the part of the S3 client the store talks to.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// snapshotStore keeps each snapshot at <manager id>/<snapshot id>.json.
type snapshotStore struct {
	client objectAPI
	bucket string
}

// NewSnapshotStore creates an S3 backed store using the default AWS
// credential chain.
func NewSnapshotStore(bucketName string) core.SnapshotStore {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	return newSnapshotStore(s3.NewFromConfig(cfg), bucketName)
}

func newSnapshotStore(client objectAPI, bucket string) *snapshotStore {
	return &snapshotStore{client: client, bucket: bucket}
}

// validName rejects anything that could escape its key segment.
func validName(kind, name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid %s: must not be empty or a dot directory", kind)
	}
	if path.Base(name) != name || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid %s: must not be a path", kind)
	}
	return nil
}

func (s *snapshotStore) snapshotKey(managerID, id string) (string, error) {
	if err := validName("manager id", managerID); err != nil {
		return "", err
	}
	if err := validName("snapshot id", id); err != nil {
		return "", err
	}
	return path.Join(managerID, id+snapshotExt), nil
}

func (s *snapshotStore) CreateSnapshot(ctx context.Context, managerID, name string, data []byte) (string, error) {
	id := ulid.Make().String()
	key, err := s.snapshotKey(managerID, id)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(core.Snapshot{
		ID:        id,
		ManagerID: managerID,
		Name:      name,
		CreatedAt: int64(ulid.Now()),
		Data:      data,
	})
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %v", err)
	}

	s.prune(ctx, managerID)

	logrus.WithFields(logrus.Fields{
		"snapshot_id": id,
		"manager_id":  managerID,
		"key":         key,
	}).Info("Snapshot created successfully")
	return id, nil
}

// keys returns every object key under prefix in ascending order.
func (s *snapshotStore) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, object := range page.Contents {
			if object.Key != nil && strings.HasSuffix(*object.Key, snapshotExt) {
				keys = append(keys, *object.Key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// prune deletes the oldest objects of managerID past the retention limit.
// ULID keys sort by creation time.
func (s *snapshotStore) prune(ctx context.Context, managerID string) {
	keys, err := s.keys(ctx, managerID+"/")
	if err != nil {
		logrus.WithError(err).WithField("manager_id", managerID).Warn("Failed to list snapshots for pruning")
		return
	}
	if len(keys) <= core.MaxSnapshotsPerManager {
		return
	}
	for _, key := range keys[:len(keys)-core.MaxSnapshotsPerManager] {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to prune snapshot")
		}
	}
}

func (s *snapshotStore) read(ctx context.Context, key string) (*core.Snapshot, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrSnapshotNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %v", err)
	}
	var snapshot core.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return &snapshot, nil
}

func (s *snapshotStore) ListSnapshots(ctx context.Context, managerID string) ([]core.Snapshot, error) {
	if err := validName("manager id", managerID); err != nil {
		return nil, err
	}
	keys, err := s.keys(ctx, managerID+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots for manager %s: %v", managerID, err)
	}

	snapshots := make([]core.Snapshot, 0, len(keys))
	for _, key := range keys {
		snapshot, err := s.read(ctx, key)
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to read snapshot, skipping")
			continue
		}
		snapshot.Data = nil
		snapshots = append(snapshots, *snapshot)
	}
	core.SortSnapshots(snapshots)
	return snapshots, nil
}

// find resolves the key of id. Snapshot ids are unique across managers.
func (s *snapshotStore) find(ctx context.Context, id string) (string, error) {
	if err := validName("snapshot id", id); err != nil {
		return "", err
	}
	keys, err := s.keys(ctx, "")
	if err != nil {
		return "", err
	}
	suffix := "/" + id + snapshotExt
	for _, key := range keys {
		if strings.HasSuffix(key, suffix) {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, id string) (*core.Snapshot, error) {
	key, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.read(ctx, key)
	if errors.Is(err, core.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, id)
	}
	return snapshot, err
}

func (s *snapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	key, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %v", id, err)
	}
	logrus.WithField("snapshot_id", id).Info("Snapshot deleted successfully")
	return nil
}
