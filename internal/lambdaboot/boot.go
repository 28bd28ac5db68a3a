// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the project needs some subset of: AWS config, S3, DynamoDB,
// Rekognition, EventBridge, SSM parameter fetch, and startup logging. This
// package extracts the common init patterns so each Lambda's init() is a
// short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/engine"
	"github.com/jmorrow/persontrack/internal/events"
	"github.com/jmorrow/persontrack/internal/logging"
	"github.com/jmorrow/persontrack/internal/store"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client, presigner, and reads the bucket name from the
// given environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitDynamo creates a DynamoDB job store from the given config and table
// name environment variable. Fatals if the env var is empty.
func InitDynamo(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	ddbClient := dynamodb.NewFromConfig(cfg)
	return store.NewDynamoStore(ddbClient, tableName)
}

// EngineConfig records where the Rekognition engine's configuration was
// resolved from, for startup logging.
type EngineConfig struct {
	RoleARN    string
	TopicARN   string
	RoleParam  string
	TopicParam string
}

// InitRekognition creates the person-tracking engine. The service role ARN
// and completion topic ARN come from the environment, falling back to SSM
// Parameter Store. Fatals if either cannot be resolved.
func InitRekognition(cfg aws.Config, ssmClient *ssm.Client, bucket string) (*engine.RekognitionEngine, EngineConfig) {
	ec := EngineConfig{
		RoleParam:  logging.EnvOrDefault("SSM_REKOGNITION_ROLE_PARAM", "/person-tracking/prod/rekognition-role-arn"),
		TopicParam: logging.EnvOrDefault("SSM_COMPLETION_TOPIC_PARAM", "/person-tracking/prod/completion-topic-arn"),
	}
	ec.RoleARN = loadParam(ssmClient, "REKOGNITION_ROLE_ARN", ec.RoleParam)
	ec.TopicARN = loadParam(ssmClient, "COMPLETION_TOPIC_ARN", ec.TopicParam)
	eng := engine.NewRekognitionEngine(rekognition.NewFromConfig(cfg), bucket, ec.RoleARN, ec.TopicARN)
	return eng, ec
}

// InitEventBridge creates the job-state event emitter. Returns a nil emitter
// (a no-op) when EVENT_BUS_NAME is unset.
func InitEventBridge(cfg aws.Config) *events.Emitter {
	busName := os.Getenv("EVENT_BUS_NAME")
	if busName == "" {
		log.Warn().Msg("EVENT_BUS_NAME not set, job state events disabled")
		return nil
	}
	return events.NewEmitter(eventbridge.NewFromConfig(cfg), busName)
}

// loadParam resolves a configuration value from an environment variable,
// falling back to SSM Parameter Store. Fatals if neither yields a value.
func loadParam(ssmClient *ssm.Client, envVar, paramName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read parameter from SSM")
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Parameter loaded from SSM")
	return *result.Parameter.Value
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
