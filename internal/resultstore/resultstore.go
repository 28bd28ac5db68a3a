// Package resultstore persists the immutable frame-result blob of a
// succeeded job. Each job owns exactly one blob at
// {s3_folder_name}/results.json, written once by the completion path. Writes
// are full overwrites, so redelivered completion signals can safely repeat
// them. The body is gzip-compressed with a matching Content-Encoding header,
// which keeps large result sets cheap to store while staying transparent to
// HTTP clients following a presigned URL.
package resultstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/tracking"
)

// ResultsKey is the blob's object name within a job's S3 folder.
const ResultsKey = "results.json"

// Store reads and writes frame-result blobs in one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New creates a Store for the given bucket.
func New(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Key returns the blob's object key for a job folder.
func (s *Store) Key(folder string) string {
	return folder + "/" + ResultsKey
}

// Put overwrites the job's result blob. Safe to repeat: the same results
// encode to the same bytes (GroupByFrame sorts by frame), and S3 PutObject
// replaces the object atomically.
func (s *Store) Put(ctx context.Context, folder string, results []tracking.Result) error {
	body, err := encodeResults(results)
	if err != nil {
		return fmt.Errorf("encode results for %s: %w", folder, err)
	}

	key := s.Key(folder)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          &s.bucket,
		Key:             &key,
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("PutObject %s: %w", key, err)
	}

	log.Info().
		Str("key", key).
		Int("frames", len(results)).
		Int("compressedBytes", len(body)).
		Msg("Frame results stored")
	return nil
}

// Get fetches and decodes the job's result blob. Returns an error when the
// blob does not exist; callers gate on job status first.
func (s *Store) Get(ctx context.Context, folder string) ([]tracking.Result, error) {
	key := s.Key(folder)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	results, err := decodeResults(result.Body)
	if err != nil {
		return nil, fmt.Errorf("decode results %s: %w", key, err)
	}
	return results, nil
}

func encodeResults(results []tracking.Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(results); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeResults(r io.Reader) ([]tracking.Result, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()

	var results []tracking.Result
	if err := json.NewDecoder(zr).Decode(&results); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return results, nil
}
