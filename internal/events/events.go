// Package events emits job state changes to EventBridge so downstream
// consumers (billing, notifications, dashboards) can react without polling
// the job table. Emission is strictly best-effort: the completion path never
// fails because an event could not be published.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/store"
)

const (
	eventSource     = "persontrack"
	eventDetailType = "JobStateChanged"
)

// JobStateChanged is the event payload published when a job reaches a
// terminal state.
type JobStateChanged struct {
	JobID               string          `json:"job_id"`
	UserID              string          `json:"user_id"`
	Status              store.JobStatus `json:"job_status"`
	TotalDetectionCount int             `json:"total_detection_count,omitempty"`
}

// Emitter publishes JobStateChanged events. A nil *Emitter is a valid no-op
// publisher, so callers don't need to branch on configuration.
type Emitter struct {
	client  *eventbridge.Client
	busName string
}

// NewEmitter creates an Emitter for the given event bus. An empty busName
// targets the account's default bus.
func NewEmitter(client *eventbridge.Client, busName string) *Emitter {
	return &Emitter{client: client, busName: busName}
}

// EmitJobStateChanged publishes one event. Failures are returned for the
// caller to log; they carry no retry obligation.
func (e *Emitter) EmitJobStateChanged(ctx context.Context, event JobStateChanged) error {
	if e == nil {
		return nil
	}

	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal JobStateChanged: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(eventSource),
		DetailType: aws.String(eventDetailType),
		Detail:     aws.String(string(detail)),
	}
	if e.busName != "" {
		entry.EventBusName = &e.busName
	}

	result, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		failed := result.Entries[0]
		return fmt.Errorf("PutEvents entry failed: %s - %s",
			aws.ToString(failed.ErrorCode), aws.ToString(failed.ErrorMessage))
	}

	log.Debug().
		Str("jobId", event.JobID).
		Str("status", string(event.Status)).
		Msg("JobStateChanged emitted to EventBridge")
	return nil
}
