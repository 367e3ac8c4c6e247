package api

// ReportRequest is the body of POST /api/report-ip
type ReportRequest struct {
	DeviceType string `json:"deviceType"`
	IP         string `json:"ip"`
}

// ReportResponse acknowledges an accepted report
type ReportResponse struct {
	Success bool `json:"success"`
}

// StatusResponse represents GET /api/status
type StatusResponse struct {
	Status    string            `json:"status"`
	Devices   map[string]string `json:"devices"`
	VPNStatus string            `json:"vpn_status"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Version    string `json:"version"`
	MemoryRSS  uint64 `json:"memory_rss_bytes,omitempty"`
	MemTotal   uint64 `json:"memory_total_bytes,omitempty"`
	Goroutines int    `json:"goroutines"`
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status string `json:"status"` // "alive"
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
}

// unknownIP is reported for a device that has not been seen yet
const unknownIP = "unknown"
