// Package s3util provides shared S3 helpers used by the API and completion
// paths: presigned upload/view URLs and per-job folder deletion.
package s3util

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// Presigned URL lifetimes. Uploads get longer because browsers PUT large
// videos through them.
const (
	UploadExpiry = 30 * time.Minute
	ViewExpiry   = 15 * time.Minute
)

// PresignGet creates a pre-signed GET URL for an S3 object.
func PresignGet(ctx context.Context, presigner *s3.PresignClient, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject %s: %w", key, err)
	}
	return result.URL, nil
}

// PresignPut creates a pre-signed PUT URL for a browser upload with the
// given content type.
func PresignPut(ctx context.Context, presigner *s3.PresignClient, bucket, key, contentType string, expiry time.Duration) (string, error) {
	result, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign PutObject %s: %w", key, err)
	}
	return result.URL, nil
}

// DeleteFolder removes every object under the given folder prefix, the
// uploaded video plus any result blob. Folders never exceed a handful of
// objects, so one list/delete round per page is enough.
func DeleteFolder(ctx context.Context, client *s3.Client, bucket, folder string) error {
	prefix := folder + "/"
	var continuation *string

	for {
		listed, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("ListObjectsV2 %s: %w", prefix, err)
		}
		if len(listed.Contents) > 0 {
			objects := make([]s3types.ObjectIdentifier, 0, len(listed.Contents))
			for _, obj := range listed.Contents {
				objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
			}
			if _, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: &bucket,
				Delete: &s3types.Delete{Objects: objects},
			}); err != nil {
				return fmt.Errorf("DeleteObjects %s: %w", prefix, err)
			}
			log.Debug().Str("prefix", prefix).Int("objects", len(objects)).Msg("Objects deleted from S3")
		}

		if listed.NextContinuationToken == nil {
			return nil
		}
		continuation = listed.NextContinuationToken
	}
}
