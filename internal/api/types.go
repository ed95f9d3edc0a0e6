package api

// RunResponse is returned by POST /run on success.
type RunResponse struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// ErrorResponse is returned on errors. Code is set for task outcomes.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	SandboxRoot     string `json:"sandbox_root"`
	KindsRegistered int    `json:"kinds_registered"`
}
