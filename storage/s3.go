package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

// StorageService archives generated export files to S3
type StorageService struct {
	s3Client s3iface.S3API
	bucket   string
	region   string
}

// NewStorageService creates an S3-backed archive. Empty keys fall back to the default credential chain.
func NewStorageService(region, accessKeyID, secretAccessKey, bucket string) (*StorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket not configured")
	}
	cfg := &aws.Config{Region: aws.String(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKeyID, secretAccessKey, "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}
	return NewStorageServiceWithClient(s3.New(sess), bucket, region), nil
}

func NewStorageServiceWithClient(client s3iface.S3API, bucket, region string) *StorageService {
	return &StorageService{s3Client: client, bucket: bucket, region: region}
}

// UploadExport stores an export under exports/YYYY/MM/DD/<id>.<ext> and returns its key.
func (s *StorageService) UploadExport(filename string, data []byte, now time.Time) (string, error) {
	ext := s.getFileExtension(filename)
	key := fmt.Sprintf("exports/%d/%02d/%02d/%s.%s",
		now.Year(),
		now.Month(),
		now.Day(),
		uuid.New().String()[:16],
		ext,
	)

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String(s.getContentType(ext)),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %v", err)
	}
	return key, nil
}

// URL returns the virtual-hosted URL of a key.
func (s *StorageService) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *StorageService) getFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return "bin"
}

func (s *StorageService) getContentType(extension string) string {
	switch extension {
	case "csv":
		return "text/csv; charset=utf-8"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "zip":
		return "application/zip"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
