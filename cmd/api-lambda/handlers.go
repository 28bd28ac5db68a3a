package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jmorrow/persontrack/internal/store"
)

// --- Health ---

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "persontrack",
	})
}

// --- Presigned Upload URL ---

// GET /api/upload-url?filename=...
// Mints a fresh job folder and returns a presigned S3 PUT URL so the browser
// can upload the video directly to S3. The returned folder name goes back
// into POST /api/jobs.
func handleUploadURL(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if err := validateFilename(filename); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := querySvc.UploadURL(r.Context(), filename)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, upload)
}

// --- Job Submission ---

// POST /api/jobs
// Body: {"user_id": "...", "filename": "...", "s3_folder_name": "uuid"}
// The video must already be uploaded to {s3_folder_name}/{filename}.
func handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"user_id"`
		Filename     string `json:"filename"`
		S3FolderName string `json:"s3_folder_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateUserID(req.UserID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateFilename(req.Filename); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !uuidRegex.MatchString(req.S3FolderName) {
		httpError(w, http.StatusBadRequest, "invalid s3_folder_name: must be a folder minted by /api/upload-url")
		return
	}

	jobID, err := manager.Submit(r.Context(), req.UserID, req.Filename, req.S3FolderName)
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
	})
}

// --- Job Queries ---

// GET /api/jobs/{jobId}
func handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := querySvc.GetJob(r.Context(), jobID)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GET /api/jobs?user_id=...&page_size=...&cursor_job_id=...&cursor_timestamp=...
// Pages are ordered by ascending request timestamp. The cursor fields of one
// response feed the next request; an absent next_cursor means the scan is
// done.
func handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if err := validateUserID(userID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	var pageSize int64
	if raw := q.Get("page_size"); raw != "" {
		var err error
		pageSize, err = strconv.ParseInt(raw, 10, 32)
		if err != nil || pageSize < 1 {
			httpError(w, http.StatusBadRequest, "invalid page_size")
			return
		}
	}

	var cursor *store.Cursor
	if cursorJobID := q.Get("cursor_job_id"); cursorJobID != "" {
		ts, err := strconv.ParseInt(q.Get("cursor_timestamp"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "cursor_timestamp is required with cursor_job_id")
			return
		}
		cursor = &store.Cursor{JobID: cursorJobID, UserID: userID, RequestTimestamp: ts}
	}

	jobs, next, err := querySvc.ListJobs(r.Context(), userID, cursor, int32(pageSize))
	if err != nil {
		serviceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"jobs": jobs,
	}
	if next != nil {
		resp["next_cursor"] = next
	}
	respondJSON(w, http.StatusOK, resp)
}

// DELETE /api/jobs/{jobId}
func handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := querySvc.DeleteJob(r.Context(), jobID); err != nil {
		serviceError(w, err)
		return
	}
	log.Info().Str("jobId", jobID).Msg("Job deleted via API")
	respondJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "deleted"})
}

// --- Media URLs ---

// GET /api/jobs/{jobId}/video-url
func handleVideoURL(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := querySvc.VideoURL(r.Context(), jobID)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GET /api/jobs/{jobId}/results-url
// 409 until the job reaches SUCCEEDED.
func handleResultsURL(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := querySvc.ResultsURL(r.Context(), jobID)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// --- Aggregation ---

// GET /api/jobs/{jobId}/summary?start_frame=...&end_frame=...
func handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	startFrame, err := strconv.ParseInt(q.Get("start_frame"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid start_frame")
		return
	}
	endFrame, err := strconv.ParseInt(q.Get("end_frame"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid end_frame")
		return
	}

	summary, err := querySvc.RangeSummary(r.Context(), jobID, startFrame, endFrame)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// GET /api/jobs/{jobId}/frames/{frame}
func handleFrameDetections(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]
	if err := validateJobID(jobID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	frame, err := strconv.ParseInt(vars["frame"], 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid frame")
		return
	}

	persons, err := querySvc.FrameDetections(r.Context(), jobID, frame)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"frame":   frame,
		"persons": persons,
	})
}
