// Package main is the Lambda entry point for the person-tracking API.
//
// It fronts the job lifecycle and query services behind API Gateway.
// Videos never pass through the Lambda: uploads go straight to S3 via
// presigned PUT URLs, and results come back via presigned GET URLs.
//
// Endpoints:
//
//	GET    /api/health                       — health check (no auth required)
//	GET    /api/upload-url                   — presigned S3 PUT URL for browser upload
//	POST   /api/jobs                         — submit an uploaded video for analysis
//	GET    /api/jobs                         — list a user's jobs (cursor-paginated)
//	GET    /api/jobs/{jobId}                 — job record with status and summary
//	DELETE /api/jobs/{jobId}                 — delete job record and S3 folder
//	GET    /api/jobs/{jobId}/video-url       — presigned GET URL for the video
//	GET    /api/jobs/{jobId}/results-url     — presigned GET URL for the results blob
//	GET    /api/jobs/{jobId}/summary         — aggregate over a frame window
//	GET    /api/jobs/{jobId}/frames/{frame}  — detections at a single frame
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/lambdaboot"
	"github.com/jmorrow/persontrack/internal/lifecycle"
	"github.com/jmorrow/persontrack/internal/logging"
	"github.com/jmorrow/persontrack/internal/query"
	"github.com/jmorrow/persontrack/internal/resultstore"
	"github.com/jmorrow/persontrack/internal/store"
)

// Initialized at cold start.
var (
	jobStore           store.JobStore
	manager            *lifecycle.Manager
	querySvc           *query.Service
	originVerifySecret string
)

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	s3c := lambdaboot.InitS3(clients.Config, "MEDIA_BUCKET_NAME")
	dynamo := lambdaboot.InitDynamo(clients.Config, "JOBS_TABLE_NAME")
	eng, engCfg := lambdaboot.InitRekognition(clients.Config, clients.SSM, s3c.Bucket)

	jobStore = dynamo
	manager = lifecycle.NewManager(jobStore, eng)
	querySvc = query.NewService(
		jobStore,
		resultstore.New(s3c.Client, s3c.Bucket),
		query.NewS3Media(s3c.Client, s3c.Presigner, s3c.Bucket),
	)

	originVerifySecret = os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	lambdaboot.StartupLog("api-lambda", initStart).
		S3Bucket("media", s3c.Bucket).
		DynamoTable("jobs", os.Getenv("JOBS_TABLE_NAME")).
		SSMParam("rekognitionRole", engCfg.RoleParam).
		SSMParam("completionTopic", engCfg.TopicParam).
		SNSTopic("completion", engCfg.TopicARN).
		Config("defaultPageSize", strconv.Itoa(int(query.DefaultPageSize))).
		Feature("originVerify", originVerifySecret != "").
		Log()
}

// withOriginVerify rejects requests lacking the correct x-origin-verify
// header. CloudFront injects this header via a custom origin header, so
// direct API Gateway access is blocked.
func withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originVerifySecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != originVerifySecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/upload-url", handleUploadURL).Methods(http.MethodGet)
	api.HandleFunc("/jobs", handleSubmitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}", handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}", handleDeleteJob).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{jobId}/video-url", handleVideoURL).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}/results-url", handleResultsURL).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}/summary", handleRangeSummary).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobId}/frames/{frame}", handleFrameDetections).Methods(http.MethodGet)

	return r
}

func main() {
	router := newRouter()
	router.Use(mux.MiddlewareFunc(withOriginVerify))

	adapter := httpadapter.NewV2(router)
	lambda.Start(adapter.ProxyWithContext)
}
