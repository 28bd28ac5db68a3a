// Package main provides trackctl, a command-line client for the
// person-tracking API.
//
// It drives the same HTTP surface the browser uses: minting upload URLs,
// submitting jobs, polling status, listing a user's jobs, aggregating over
// frame windows, and deleting jobs.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jmorrow/persontrack/internal/logging"
	"github.com/jmorrow/persontrack/internal/store"
)

// CLI flags
var (
	apiFlag      string
	userFlag     string
	pageSizeFlag int
	startFlag    int64
	endFlag      int64
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

var rootCmd = &cobra.Command{
	Use:   "trackctl",
	Short: "Client for the person-tracking API",
	Long: `trackctl submits videos for person tracking and inspects the results.

The API endpoint is read from --api, the PERSONTRACK_API_URL environment
variable, or a .env file in the working directory.

Examples:
  trackctl submit --user alice ./walk.mp4
  trackctl status 7c9e6679-7425-40de-944b-e07fc1f90ae7
  trackctl jobs --user alice --page-size 10
  trackctl summary 7c9e6679-7425-40de-944b-e07fc1f90ae7 --start 0 --end 300
  trackctl delete 7c9e6679-7425-40de-944b-e07fc1f90ae7`,
}

func init() {
	godotenv.Load()
	logging.Init()

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", os.Getenv("PERSONTRACK_API_URL"), "API base URL (e.g., https://api.example.com)")

	submitCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User id owning the job")
	submitCmd.MarkFlagRequired("user")

	jobsCmd.Flags().StringVarP(&userFlag, "user", "u", "", "User id to list jobs for")
	jobsCmd.MarkFlagRequired("user")
	jobsCmd.Flags().IntVar(&pageSizeFlag, "page-size", 25, "Jobs per page")

	summaryCmd.Flags().Int64Var(&startFlag, "start", 0, "First frame of the window (inclusive)")
	summaryCmd.Flags().Int64Var(&endFlag, "end", 0, "Last frame of the window (inclusive)")
	summaryCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(submitCmd, statusCmd, jobsCmd, summaryCmd, deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// --- Commands ---

var submitCmd = &cobra.Command{
	Use:   "submit <video-file>",
	Short: "Upload a video and start person tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		filename := filepath.Base(path)

		// Mint an upload slot.
		var upload struct {
			URL      string `json:"upload_url"`
			Folder   string `json:"s3_folder_name"`
			Filename string `json:"filename"`
		}
		if err := getJSON("/api/upload-url?filename="+url.QueryEscape(filename), &upload); err != nil {
			return err
		}

		// Upload the video straight to S3.
		if err := uploadFile(upload.URL, path); err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
		log.Info().Str("folder", upload.Folder).Str("filename", filename).Msg("Video uploaded")

		// Submit the job.
		var job struct {
			JobID string `json:"job_id"`
		}
		body := map[string]string{
			"user_id":        userFlag,
			"filename":       filename,
			"s3_folder_name": upload.Folder,
		}
		if err := postJSON("/api/jobs", body, &job); err != nil {
			return err
		}

		fmt.Printf("Job submitted: %s\n", job.JobID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job store.Job
		if err := getJSON("/api/jobs/"+url.PathEscape(args[0]), &job); err != nil {
			return err
		}

		fmt.Printf("Job:       %s\n", job.JobID)
		fmt.Printf("File:      %s\n", job.Filename)
		fmt.Printf("Status:    %s\n", job.Status)
		fmt.Printf("Submitted: %s\n", time.Unix(job.RequestTimestamp, 0).Format(time.RFC3339))
		if job.TrackingSummary != nil {
			fmt.Printf("Persons:   %d\n", job.TrackingSummary.TotalDetectionCount)
			fmt.Printf("Avg time:  %.2fs\n", job.TrackingSummary.AverageTrackingTime)
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List a user's jobs, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		type page struct {
			Jobs       []store.Job   `json:"jobs"`
			NextCursor *store.Cursor `json:"next_cursor"`
		}

		query := "/api/jobs?user_id=" + url.QueryEscape(userFlag) + "&page_size=" + strconv.Itoa(pageSizeFlag)
		total := 0
		for {
			var p page
			if err := getJSON(query, &p); err != nil {
				return err
			}
			for _, job := range p.Jobs {
				fmt.Printf("%s  %-10s  %s  %s\n",
					job.JobID, job.Status,
					time.Unix(job.RequestTimestamp, 0).Format("2006-01-02 15:04"),
					job.Filename)
				total++
			}
			if p.NextCursor == nil {
				break
			}
			query = fmt.Sprintf("/api/jobs?user_id=%s&page_size=%d&cursor_job_id=%s&cursor_timestamp=%d",
				url.QueryEscape(userFlag), pageSizeFlag,
				url.QueryEscape(p.NextCursor.JobID), p.NextCursor.RequestTimestamp)
		}
		fmt.Printf("%d job(s)\n", total)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <job-id>",
	Short: "Aggregate tracked persons over a frame window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary struct {
			TotalDetectionCount int     `json:"total_detection_count"`
			AverageTrackingTime float64 `json:"average_tracking_time"`
		}
		path := fmt.Sprintf("/api/jobs/%s/summary?start_frame=%d&end_frame=%d",
			url.PathEscape(args[0]), startFlag, endFlag)
		if err := getJSON(path, &summary); err != nil {
			return err
		}

		fmt.Printf("Frames %d..%d: %d person(s), avg tracking time %.2fs\n",
			startFlag, endFlag, summary.TotalDetectionCount, summary.AverageTrackingTime)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its stored video and results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, apiBase()+"/api/jobs/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// --- HTTP helpers ---

func apiBase() string {
	if apiFlag == "" {
		log.Fatal().Msg("API endpoint not configured: pass --api or set PERSONTRACK_API_URL")
	}
	return apiFlag
}

func getJSON(path string, out interface{}) error {
	resp, err := httpClient.Get(apiBase() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(apiBase()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func uploadFile(presignedURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, presignedURL, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	// The URL is signed over the content type, so the PUT must carry the
	// same value the API used when minting it.
	req.Header.Set("Content-Type", uploadContentType(path))

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, data)
	}
	return nil
}

// uploadContentType resolves the content type the API signs into upload
// URLs for the given file.
func uploadContentType(path string) string {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType
}

// apiError turns an error response into a readable error, preferring the
// API's own error message.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}
