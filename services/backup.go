package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// ObjectPutter is the slice of the S3 client the backup service needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BackupInfo describes one uploaded snapshot archive
type BackupInfo struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Students  int       `json:"students"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
}

// BackupService zips the state snapshots plus a CSV of payments and uploads them to S3
type BackupService struct {
	client ObjectPutter
	bucket string
	store  *StateStore
	now    func() time.Time
}

// NewBackupService loads AWS config the default way, with static keys when given.
func NewBackupService(ctx context.Context, store *StateStore, region, accessKeyID, secretAccessKey, bucket string) (*BackupService, error) {
	if bucket == "" {
		return nil, ErrBackupDisabled
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBackupServiceWithClient(s3.NewFromConfig(cfg), bucket, store), nil
}

func NewBackupServiceWithClient(client ObjectPutter, bucket string, store *StateStore) *BackupService {
	return &BackupService{client: client, bucket: bucket, store: store, now: time.Now}
}

// Run builds the archive for the current state and uploads it.
func (b *BackupService) Run(ctx context.Context) (*BackupInfo, error) {
	now := b.now().UTC()
	snapshots, err := b.store.Export()
	if err != nil {
		return nil, err
	}
	st := b.store.Snapshot()

	fileName := fmt.Sprintf("tuitionflow_%s.zip", now.Format("2006-01-02"))
	buf, err := b.createZipArchive(snapshots, st, fileName, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZIP archive: %w", err)
	}

	key := fmt.Sprintf("backups/%d/%02d/%s", now.Year(), now.Month(), fileName)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload backup to S3: %w", err)
	}

	info := &BackupInfo{
		Key:       key,
		Size:      int64(buf.Len()),
		Students:  len(st.Students),
		Records:   len(st.History),
		CreatedAt: now,
	}
	logrus.WithFields(logrus.Fields{
		"key":      key,
		"size":     info.Size,
		"students": info.Students,
		"records":  info.Records,
	}).Info("State backup uploaded")
	return info, nil
}

func (b *BackupService) createZipArchive(snapshots map[string][]byte, st State, fileName string, now time.Time) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	for _, key := range []string{KeyStudents, KeyHistory, KeySheetConfig} {
		f, err := zipWriter.Create(key + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to create %s in ZIP: %w", key, err)
		}
		if _, err := f.Write(snapshots[key]); err != nil {
			return nil, err
		}
	}

	csvFile, err := zipWriter.Create("payments.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file in ZIP: %w", err)
	}
	if err := WriteCSV(csvFile, st.History); err != nil {
		return nil, err
	}

	metadataFile, err := zipWriter.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata file in ZIP: %w", err)
	}
	metadata := map[string]any{
		"file_name":      fileName,
		"created_at":     now,
		"student_count":  len(st.Students),
		"record_count":   len(st.History),
		"schema_version": "1.0",
	}
	if err := json.NewEncoder(metadataFile).Encode(metadata); err != nil {
		return nil, fmt.Errorf("failed to encode metadata to JSON: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	return buf, nil
}
