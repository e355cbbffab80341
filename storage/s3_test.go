package storage

import (
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestUploadExportKeyLayout(t *testing.T) {
	fake := &fakeS3{}
	svc := NewStorageServiceWithClient(fake, "fees-bucket", "ap-south-1")

	key, err := svc.UploadExport("fee_records.csv", []byte("Date,Student Name,Amount,Method\n"), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Regexp(t, `^exports/2026/03/09/[0-9a-f-]{16}\.csv$`, key)
	assert.Equal(t, "text/csv; charset=utf-8", *fake.input.ContentType)
	assert.Equal(t, "fees-bucket", *fake.input.Bucket)
	assert.Equal(t, "Date,Student Name,Amount,Method\n", string(fake.body))
	assert.Equal(t, "https://fees-bucket.s3.ap-south-1.amazonaws.com/"+key, svc.URL(key))
}
