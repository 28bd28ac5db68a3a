package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/store"
	"github.com/jmorrow/persontrack/internal/tracking"
)

// Metadata fallbacks when the engine omits a field. 16:9 at 400px per unit.
const (
	defaultFrameRate   = 30.0
	defaultFrameHeight = 9 * 400
	defaultFrameWidth  = 16 * 400
)

// RekognitionEngine implements Engine on AWS Rekognition person tracking.
// Completion notifications are published by Rekognition itself to the SNS
// topic configured here; the role ARN grants Rekognition publish rights.
type RekognitionEngine struct {
	client   *rekognition.Client
	bucket   string
	roleARN  string
	topicARN string
}

var _ Engine = (*RekognitionEngine)(nil)

// NewRekognitionEngine creates an engine client for videos stored in bucket.
func NewRekognitionEngine(client *rekognition.Client, bucket, roleARN, topicARN string) *RekognitionEngine {
	return &RekognitionEngine{
		client:   client,
		bucket:   bucket,
		roleARN:  roleARN,
		topicARN: topicARN,
	}
}

func (e *RekognitionEngine) StartTracking(ctx context.Context, s3Key, jobTag string) (string, error) {
	result, err := e.client.StartPersonTracking(ctx, &rekognition.StartPersonTrackingInput{
		Video: &types.Video{
			S3Object: &types.S3Object{
				Bucket: &e.bucket,
				Name:   &s3Key,
			},
		},
		NotificationChannel: &types.NotificationChannel{
			RoleArn:     &e.roleARN,
			SNSTopicArn: &e.topicARN,
		},
		JobTag: &jobTag,
	})
	if err != nil {
		return "", fmt.Errorf("StartPersonTracking %s: %w", s3Key, err)
	}
	engineJobID := aws.ToString(result.JobId)
	if engineJobID == "" {
		return "", fmt.Errorf("StartPersonTracking %s: no job id returned", s3Key)
	}

	log.Info().
		Str("s3Key", s3Key).
		Str("jobTag", jobTag).
		Str("engineJobId", engineJobID).
		Msg("Person tracking started")
	return engineJobID, nil
}

func (e *RekognitionEngine) FetchResults(ctx context.Context, engineJobID string) ([]tracking.TimedDetection, *store.VideoMetadata, error) {
	var timeline []tracking.TimedDetection
	var metadata *store.VideoMetadata
	var nextToken *string

	// GetPersonTracking returns up to 1000 detections per call.
	for {
		result, err := e.client.GetPersonTracking(ctx, &rekognition.GetPersonTrackingInput{
			JobId:     &engineJobID,
			SortBy:    types.PersonTrackingSortByTimestamp,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("GetPersonTracking %s: %w", engineJobID, err)
		}

		if metadata == nil && result.VideoMetadata != nil {
			metadata = convertMetadata(result.VideoMetadata)
		}
		for _, detection := range result.Persons {
			timed, ok := convertDetection(detection)
			if !ok {
				continue
			}
			timeline = append(timeline, timed)
		}

		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	log.Debug().
		Str("engineJobId", engineJobID).
		Int("detections", len(timeline)).
		Msg("Person tracking results fetched")
	return timeline, metadata, nil
}

// convertDetection maps one engine detection onto the tracking timeline.
// Detections without a person or bounding box carry no usable signal and
// are dropped.
func convertDetection(detection types.PersonDetection) (tracking.TimedDetection, bool) {
	if detection.Person == nil || detection.Person.BoundingBox == nil {
		return tracking.TimedDetection{}, false
	}
	box := detection.Person.BoundingBox
	return tracking.TimedDetection{
		TimestampMillis: detection.Timestamp,
		Person: tracking.Person{
			Index: detection.Person.Index,
			BoundingBox: tracking.BoundingBox{
				Left:   float64(aws.ToFloat32(box.Left)),
				Top:    float64(aws.ToFloat32(box.Top)),
				Width:  float64(aws.ToFloat32(box.Width)),
				Height: float64(aws.ToFloat32(box.Height)),
			},
		},
	}, true
}

func convertMetadata(metadata *types.VideoMetadata) *store.VideoMetadata {
	converted := &store.VideoMetadata{
		DurationMillis: aws.ToInt64(metadata.DurationMillis),
		FrameRate:      float64(aws.ToFloat32(metadata.FrameRate)),
		FrameHeight:    aws.ToInt64(metadata.FrameHeight),
		FrameWidth:     aws.ToInt64(metadata.FrameWidth),
	}
	if converted.FrameRate == 0 {
		converted.FrameRate = defaultFrameRate
	}
	if converted.FrameHeight == 0 {
		converted.FrameHeight = defaultFrameHeight
	}
	if converted.FrameWidth == 0 {
		converted.FrameWidth = defaultFrameWidth
	}
	return converted
}
