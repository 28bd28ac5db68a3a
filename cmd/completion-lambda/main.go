// Package main is the Lambda entry point for person-tracking completion
// signals.
//
// Rekognition publishes a notification to the completion SNS topic when an
// analysis job finishes. SNS delivers at least once, so this Lambda is built
// for redelivery: duplicate signals are consumed without re-processing, and
// a non-nil error from the handler makes SNS retry only the failed records.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/completion"
	"github.com/jmorrow/persontrack/internal/lambdaboot"
	"github.com/jmorrow/persontrack/internal/lifecycle"
	"github.com/jmorrow/persontrack/internal/logging"
	"github.com/jmorrow/persontrack/internal/resultstore"
	"github.com/jmorrow/persontrack/internal/store"
)

// Initialized at cold start.
var processor *completion.Processor

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	s3c := lambdaboot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")
	jobStore := lambdaboot.InitDynamo(clients.Config, "JOBS_TABLE_NAME")
	eng, engCfg := lambdaboot.InitRekognition(clients.Config, clients.SSM, s3c.Bucket)
	emitter := lambdaboot.InitEventBridge(clients.Config)

	processor = completion.NewProcessor(
		jobStore,
		lifecycle.NewManager(jobStore, eng),
		eng,
		resultstore.New(s3c.Client, s3c.Bucket),
		emitter,
	)

	startup := lambdaboot.StartupLog("completion-lambda", initStart).
		S3Bucket("media", s3c.Bucket).
		DynamoTable("jobs", os.Getenv("JOBS_TABLE_NAME")).
		SSMParam("rekognitionRole", engCfg.RoleParam).
		SSMParam("completionTopic", engCfg.TopicParam).
		SNSTopic("completion", engCfg.TopicARN).
		Feature("eventEmission", emitter != nil)
	if bus := os.Getenv("EVENT_BUS_NAME"); bus != "" {
		startup.EventBus("jobState", bus)
	}
	startup.Log()
}

// engineNotification is the message Rekognition publishes to the completion
// topic. JobTag carries our job id; JobId is Rekognition's own identifier.
type engineNotification struct {
	JobID  string `json:"JobId"`
	Status string `json:"Status"`
	API    string `json:"API"`
	JobTag string `json:"JobTag"`
}

// outcomeFromStatus maps the notification status onto a terminal job status.
// Rekognition reports SUCCEEDED or FAILED; anything else is treated as a
// failure so the job does not hang in INPROGRESS.
func outcomeFromStatus(status string) store.JobStatus {
	if status == "SUCCEEDED" {
		return store.StatusSucceeded
	}
	return store.StatusFailed
}

func handler(ctx context.Context, event events.SNSEvent) error {
	var errs []error
	for _, record := range event.Records {
		var note engineNotification
		if err := json.Unmarshal([]byte(record.SNS.Message), &note); err != nil {
			// Malformed messages never become parseable; drop, don't retry.
			log.Error().Err(err).Str("messageId", record.SNS.MessageID).Msg("Unparseable completion notification dropped")
			continue
		}
		if note.JobTag == "" {
			log.Error().Str("engineJobId", note.JobID).Str("api", note.API).Msg("Completion notification without job tag dropped")
			continue
		}

		sig := completion.Signal{
			JobID:       note.JobTag,
			EngineJobID: note.JobID,
			Outcome:     outcomeFromStatus(note.Status),
		}
		log.Info().
			Str("jobId", sig.JobID).
			Str("engineJobId", sig.EngineJobID).
			Str("status", note.Status).
			Msg("Completion notification received")

		if err := processor.Process(ctx, sig); err != nil {
			log.Error().Err(err).Str("jobId", sig.JobID).Msg("Completion processing failed, will be redelivered")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func main() {
	lambda.Start(handler)
}
