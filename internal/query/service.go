// Package query serves read-side job operations: job lookup, per-user
// listing, presigned upload/view URLs and on-demand aggregation over the
// persisted frame-result blob.
package query

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/resultstore"
	"github.com/jmorrow/persontrack/internal/s3util"
	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// ErrResultsNotReady is returned when tracking results are requested for a
// job that has not reached SUCCEEDED.
var ErrResultsNotReady = errors.New("tracking results not ready")

// DefaultPageSize bounds ListJobs when the caller does not pick a size.
const DefaultPageSize int32 = 25

// ResultFetcher loads a job's persisted frame results.
type ResultFetcher interface {
	Get(ctx context.Context, folder string) ([]tracking.Result, error)
}

// URLSigner mints presigned URLs for objects in the media bucket.
type URLSigner interface {
	GetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	PutURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
}

// FolderCleaner removes every object under a job's folder prefix.
type FolderCleaner interface {
	DeleteFolder(ctx context.Context, folder string) error
}

// S3Media adapts an S3 client and presigner to URLSigner and FolderCleaner
// for one bucket.
type S3Media struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

func NewS3Media(client *s3.Client, presigner *s3.PresignClient, bucket string) *S3Media {
	return &S3Media{client: client, presigner: presigner, bucket: bucket}
}

func (m *S3Media) GetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s3util.PresignGet(ctx, m.presigner, m.bucket, key, expiry)
}

func (m *S3Media) PutURL(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return s3util.PresignPut(ctx, m.presigner, m.bucket, key, contentType, expiry)
}

func (m *S3Media) DeleteFolder(ctx context.Context, folder string) error {
	return s3util.DeleteFolder(ctx, m.client, m.bucket, folder)
}

// Upload describes a presigned upload slot for a new video.
type Upload struct {
	URL      string `json:"upload_url"`
	Folder   string `json:"s3_folder_name"`
	Filename string `json:"filename"`
}

// Media is the bucket surface the service needs: presigned URLs plus
// whole-folder deletion.
type Media interface {
	URLSigner
	FolderCleaner
}

// Service composes the job store, the result blob store and the media
// bucket into the read-side API.
type Service struct {
	store   store.JobStore
	results ResultFetcher
	media   Media
}

func NewService(jobStore store.JobStore, results ResultFetcher, media Media) *Service {
	return &Service{store: jobStore, results: results, media: media}
}

// UploadURL mints a fresh folder and a presigned PUT for the video object.
// The folder name is the unit of isolation: one job, one prefix.
func (s *Service) UploadURL(ctx context.Context, filename string) (*Upload, error) {
	folder := uuid.NewString()
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.media.PutURL(ctx, folder+"/"+filename, contentType, s3util.UploadExpiry)
	if err != nil {
		return nil, fmt.Errorf("presigning upload for %q: %w", filename, err)
	}
	return &Upload{URL: url, Folder: folder, Filename: filename}, nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*store.Job, error) {
	return s.store.Get(ctx, jobID)
}

// ListJobs pages a user's jobs in ascending request_timestamp order. The
// returned cursor is nil once the scan is exhausted.
func (s *Service) ListJobs(ctx context.Context, userID string, cursor *store.Cursor, pageSize int32) ([]*store.Job, *store.Cursor, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return s.store.ScanByUser(ctx, userID, cursor, pageSize)
}

// DeleteJob removes the job's S3 folder first, then the record. A crash in
// between leaves a record whose objects are gone, which a retried delete
// cleans up; the reverse order would orphan the objects.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.media.DeleteFolder(ctx, job.S3FolderName); err != nil {
		return fmt.Errorf("deleting folder %s: %w", job.S3FolderName, err)
	}
	if err := s.store.Delete(ctx, jobID); err != nil {
		return err
	}
	log.Info().Str("jobId", jobID).Str("folder", job.S3FolderName).Msg("Job deleted")
	return nil
}

// VideoURL presigns a GET of the uploaded video object.
func (s *Service) VideoURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.media.GetURL(ctx, job.S3FolderName+"/"+job.Filename, s3util.ViewExpiry)
}

// ResultsURL presigns a GET of the frame-result blob. Only SUCCEEDED jobs
// have one.
func (s *Service) ResultsURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.succeededJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.media.GetURL(ctx, job.S3FolderName+"/"+resultstore.ResultsKey, s3util.ViewExpiry)
}

// RangeSummary aggregates tracked persons over an inclusive frame window,
// using the frame duration derived from the stored video metadata.
func (s *Service) RangeSummary(ctx context.Context, jobID string, startFrame, endFrame int64) (tracking.Summary, error) {
	job, err := s.succeededJob(ctx, jobID)
	if err != nil {
		return tracking.Summary{}, err
	}
	results, err := s.results.Get(ctx, job.S3FolderName)
	if err != nil {
		return tracking.Summary{}, fmt.Errorf("loading results for job %s: %w", jobID, err)
	}
	frameDuration := 1 / job.VideoMetadata.FrameRate
	return tracking.Summarize(tracking.BuildPresenceMap(results), startFrame, endFrame, frameDuration)
}

// FrameDetections returns the persons detected at a single frame, empty
// (never nil) when the frame has none.
func (s *Service) FrameDetections(ctx context.Context, jobID string, frame int64) ([]tracking.Person, error) {
	if frame < 0 {
		return nil, fmt.Errorf("%w: frame %d is negative", tracking.ErrInvalidRange, frame)
	}
	job, err := s.succeededJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.Get(ctx, job.S3FolderName)
	if err != nil {
		return nil, fmt.Errorf("loading results for job %s: %w", jobID, err)
	}
	return tracking.DetectionsAt(results, frame), nil
}

func (s *Service) succeededJob(ctx context.Context, jobID string) (*store.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != store.StatusSucceeded || job.VideoMetadata == nil {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrResultsNotReady)
	}
	return job, nil
}
