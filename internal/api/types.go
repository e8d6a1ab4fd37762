package api

// Timestamps on the wire are Unix nanoseconds, matching the local store.

// CreateSessionRequest registers a session the device has started.
type CreateSessionRequest struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id"`
	StartedAt  int64  `json:"started_at"`
	AppVersion string `json:"app_version,omitempty"`
	OSInfo     string `json:"os_info,omitempty"`
}

// CloseSessionRequest reports a session's end time and final totals.
type CloseSessionRequest struct {
	EndedAt     int64 `json:"ended_at"`
	TotalBlinks int64 `json:"total_blinks"`
}

// BlinkRecord is one interval measurement on the wire.
type BlinkRecord struct {
	RecordID        string   `json:"record_id"`
	DeviceID        string   `json:"device_id"`
	Timestamp       int64    `json:"timestamp"`
	BlinkCount      int64    `json:"blink_count"`
	Confidence      float64  `json:"confidence"`
	StrainScore     *float64 `json:"strain_score,omitempty"`
	IntervalSeconds int64    `json:"interval_seconds"`
}

// BlinkBatchRequest uploads a batch of records for one session.
type BlinkBatchRequest struct {
	Records []BlinkRecord `json:"records"`
}

// BlinkBatchResponse acknowledges an accepted batch. Duplicate record ids
// are counted separately; resubmitting an already accepted record is not
// an error.
type BlinkBatchResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// DeviceCount is one device's contribution to a session as the server
// sees it.
type DeviceCount struct {
	DeviceID    string   `json:"device_id"`
	TotalBlinks int64    `json:"total_blinks"`
	RecordIDs   []string `json:"record_ids,omitempty"`
}

// SessionState is the server's view of a session, returned in the body of
// a 409 response when the server already holds newer or divergent state.
// The resolver merges it with the local session.
type SessionState struct {
	SessionID   string        `json:"session_id"`
	UserID      string        `json:"user_id"`
	EndedAt     *int64        `json:"ended_at,omitempty"`
	UpdatedAt   int64         `json:"updated_at"`
	Devices     []DeviceCount `json:"devices,omitempty"`
	Records     []BlinkRecord `json:"records,omitempty"`
	TotalBlinks int64         `json:"total_blinks"`
}

// Profile is the user's account profile.
type Profile struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Preferences map[string]string `json:"preferences,omitempty"`
	UpdatedAt   int64             `json:"updated_at"`
}

// ExportTicket tracks a server-side GDPR export request.
type ExportTicket struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
}

// HealthStatus is the backend health probe response.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
