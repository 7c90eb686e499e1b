// Package status pushes job stage transitions to external tracking
// endpoints. Reporting is fire-and-forget: an unreachable tracker is logged
// and counted but never fails the job.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/metrics"
)

// Stage is where the job currently is in its lifecycle.
type Stage string

const (
	StageStarting  Stage = "starting"
	StageInfra     Stage = "infra"
	StageWorkers   Stage = "workers"
	StageFrontend  Stage = "frontend"
	StageBenchmark Stage = "benchmark"
	StageCleanup   Stage = "cleanup"
)

// Status qualifies the stage.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobRecord is the payload registered at submission time.
type JobRecord struct {
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Topology  string    `json:"topology"`
	CreatedAt time.Time `json:"created_at"`
}

// Update is the payload pushed on every stage transition.
type Update struct {
	JobID     string    `json:"job_id"`
	Stage     Stage     `json:"stage"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reporter pushes updates to zero or more tracking endpoints. A reporter
// with no endpoints is valid and does nothing.
type Reporter struct {
	endpoints []string
	jobID     string
	client    *retryablehttp.Client
	now       func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTimeFunc injects the clock, for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithRetryWait overrides the retry backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(r *Reporter) {
		r.client.RetryWaitMin = min
		r.client.RetryWaitMax = max
	}
}

// NewReporter creates a reporter for the given tracking endpoints.
func NewReporter(endpoints []string, jobID string, opts ...Option) *Reporter {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.HTTPClient.Timeout = 10 * time.Second

	r := &Reporter{
		endpoints: endpoints,
		jobID:     jobID,
		client:    client,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateJobRecord registers the job with every tracker at submission time.
func (r *Reporter) CreateJobRecord(ctx context.Context, record JobRecord) {
	record.JobID = r.jobID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	for _, endpoint := range r.endpoints {
		r.send(ctx, http.MethodPost, endpoint+"/api/jobs", record)
	}
}

// Report pushes one stage transition to every tracker.
func (r *Reporter) Report(ctx context.Context, stage Stage, status Status, detail string) {
	update := Update{
		JobID:     r.jobID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Timestamp: r.now(),
	}
	for _, endpoint := range r.endpoints {
		r.send(ctx, http.MethodPut, fmt.Sprintf("%s/api/jobs/%s", endpoint, r.jobID), update)
	}
}

func (r *Reporter) send(ctx context.Context, method, url string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Debug(ctx, "status report marshal failed", "error", err.Error())
		return
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		logging.Debug(ctx, "status report request failed", "url", url, "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.RecordStatusReportError()
		logging.Debug(ctx, "status report push failed", "url", url, "error", err.Error())
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordStatusReportError()
		logging.Debug(ctx, "status report rejected",
			"url", url, "status", resp.StatusCode)
	}
}
