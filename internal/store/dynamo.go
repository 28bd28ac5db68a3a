package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// userIndexName is the GSI ordering jobs by (user_id, request_timestamp).
const userIndexName = "gsi-userid"

// DynamoStore implements JobStore on a single DynamoDB table keyed by
// job_id. Owner scans run against the gsi-userid index; the pagination
// cursor is a direct projection of DynamoDB's LastEvaluatedKey.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// Client exposes the underlying DynamoDB client for bootstrap code that
// shares one client across stores.
func (s *DynamoStore) Client() *dynamodb.Client {
	return s.client
}

func (s *DynamoStore) Put(ctx context.Context, job *Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return &WriteError{Op: fmt.Sprintf("marshal job %s", job.JobID), Err: err}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return &WriteError{Op: fmt.Sprintf("PutItem job %s", job.JobID), Err: err}
	}

	log.Debug().Str("jobId", job.JobID).Str("status", string(job.Status)).Msg("Job persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, jobID string) (*Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       jobKey(jobID),
	})
	if err != nil {
		return nil, &ReadError{Op: fmt.Sprintf("GetItem job %s", jobID), Err: err}
	}
	if result.Item == nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, ErrNotFound)
	}

	var job Job
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, &ReadError{Op: fmt.Sprintf("unmarshal job %s", jobID), Err: err}
	}
	return &job, nil
}

func (s *DynamoStore) ConditionalUpdateStatus(ctx context.Context, jobID string, expected, next JobStatus, fields *StatusFields) error {
	sets := []string{"#s = :next"}
	names := map[string]string{
		"#s": "job_status",
	}
	values := map[string]types.AttributeValue{
		":next":     &types.AttributeValueMemberS{Value: string(next)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
	}

	if fields != nil {
		if fields.EngineJobID != "" {
			sets = append(sets, "engine_job_id = :engine")
			values[":engine"] = &types.AttributeValueMemberS{Value: fields.EngineJobID}
		}
		if fields.VideoMetadata != nil {
			av, err := attributevalue.Marshal(fields.VideoMetadata)
			if err != nil {
				return &WriteError{Op: fmt.Sprintf("marshal video metadata for job %s", jobID), Err: err}
			}
			sets = append(sets, "video_metadata = :meta")
			values[":meta"] = av
		}
		if fields.TrackingSummary != nil {
			av, err := attributevalue.Marshal(fields.TrackingSummary)
			if err != nil {
				return &WriteError{Op: fmt.Sprintf("marshal tracking summary for job %s", jobID), Err: err}
			}
			sets = append(sets, "tracking_summary = :summary")
			values[":summary"] = av
		}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 jobKey(jobID),
		UpdateExpression:                    aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:                 aws.String("attribute_exists(job_id) AND #s = :expected"),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			if len(condFailed.Item) == 0 {
				return fmt.Errorf("update job %s: %w", jobID, ErrNotFound)
			}
			return fmt.Errorf("update job %s from %s to %s: %w", jobID, expected, next, ErrConflict)
		}
		return &WriteError{Op: fmt.Sprintf("UpdateItem job %s", jobID), Err: err}
	}

	log.Debug().
		Str("jobId", jobID).
		Str("from", string(expected)).
		Str("to", string(next)).
		Msg("Job status updated")
	return nil
}

func (s *DynamoStore) ScanByUser(ctx context.Context, userID string, cursor *Cursor, pageSize int32) ([]*Job, *Cursor, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(userIndexName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(true), // ascending request_timestamp
	}
	if pageSize > 0 {
		input.Limit = aws.Int32(pageSize)
	}
	if cursor != nil {
		startKey, err := attributevalue.MarshalMap(cursor)
		if err != nil {
			return nil, nil, &ReadError{Op: fmt.Sprintf("marshal cursor for user %s", userID), Err: err}
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, nil, &ReadError{Op: fmt.Sprintf("Query jobs for user %s", userID), Err: err}
	}

	jobs := make([]*Job, 0, len(result.Items))
	for _, item := range result.Items {
		var job Job
		if err := attributevalue.UnmarshalMap(item, &job); err != nil {
			return nil, nil, &ReadError{Op: fmt.Sprintf("unmarshal job for user %s", userID), Err: err}
		}
		jobs = append(jobs, &job)
	}

	var next *Cursor
	if result.LastEvaluatedKey != nil {
		next = &Cursor{}
		if err := attributevalue.UnmarshalMap(result.LastEvaluatedKey, next); err != nil {
			return nil, nil, &ReadError{Op: fmt.Sprintf("unmarshal page cursor for user %s", userID), Err: err}
		}
	}

	log.Debug().
		Str("userId", userID).
		Int("jobs", len(jobs)).
		Bool("morePages", next != nil).
		Msg("Job page scanned")
	return jobs, next, nil
}

func (s *DynamoStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       jobKey(jobID),
	})
	if err != nil {
		return &WriteError{Op: fmt.Sprintf("DeleteItem job %s", jobID), Err: err}
	}

	log.Debug().Str("jobId", jobID).Msg("Job deleted from DynamoDB")
	return nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"job_id": &types.AttributeValueMemberS{Value: jobID},
	}
}
