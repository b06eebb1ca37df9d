package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ExportBucketPrefix is prepended to the configured bucket suffix
const ExportBucketPrefix = "com.diabeloop.yourloops.dexcom-export."

type S3Uploader struct {
	uploader   *manager.Uploader
	bucketName string
}

func NewS3Uploader(s3UploadClient manager.UploadAPIClient, bucketSuffix string) (*S3Uploader, error) {
	if s3UploadClient == nil {
		return nil, errors.New("s3 upload client nil")
	}
	if bucketSuffix == "" {
		return nil, errors.New("bucket suffix is empty")
	}
	return &S3Uploader{
		uploader:   manager.NewUploader(s3UploadClient),
		bucketName: ExportBucketPrefix + bucketSuffix,
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, filename string, buffer *bytes.Buffer) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(filename),
		Body:        buffer,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload failed filename=[%s], bucket=[%s]: %w", filename, u.bucketName, err)
	}
	return nil
}
