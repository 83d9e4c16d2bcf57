package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string   `json:"status"`
	Jobs        int      `json:"jobs"`
	FailingJobs int      `json:"failing_jobs"`
	Clients     int      `json:"clients"`
	Sinks       []string `json:"sinks"`
	Series      int      `json:"series"`
}

// RunResponse is the payload for POST /api/v1/jobs/{name}/run.
type RunResponse struct {
	Job             string  `json:"job"`
	RunID           string  `json:"run_id"`
	Started         string  `json:"started"` // RFC3339
	DurationSeconds float64 `json:"duration_seconds"`
	OK              bool    `json:"ok"`
	Error           string  `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
