package store

import "time"

// NowNano returns the current wall-clock time in Unix nanoseconds, the
// timestamp representation used throughout the database.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// Session is one tracking session on one device. total_blinks is always
// recomputed as the sum of the session's interval records, never mutated
// independently. EndedAt is nil while the session is open and is set
// exactly once on close.
type Session struct {
	ID          string
	UserID      string
	DeviceID    string
	StartedAt   int64
	EndedAt     *int64
	TotalBlinks int64
	AppVersion  string
	OSInfo      string
	Synced      bool
	CreatedAt   int64
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// IntervalRecord is one periodic blink measurement tied to a session.
// Immutable once created except Synced and SyncAttempts. DeviceID normally
// matches the owning session's device; records merged in from another
// device during conflict resolution carry that device's id.
type IntervalRecord struct {
	ID              string
	SessionID       string
	DeviceID        string
	Timestamp       int64
	BlinkCount      int64
	Confidence      float64
	StrainScore     *float64
	IntervalSeconds int64
	Synced          bool
	SyncAttempts    int64
	CreatedAt       int64
}

// Setting is a last-write-wins key/value pair. No history is retained.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt int64
}

// Well-known setting keys.
const (
	SettingLastSuccess = "last_sync_success"
	SettingDeviceID    = "device_id"
)

// ConsentEvent is one append-only consent decision. Rows are never mutated
// or deleted except by the user-wide GDPR erasure.
type ConsentEvent struct {
	ID            string
	UserID        string
	ConsentType   string
	Granted       bool
	Timestamp     int64
	PolicyVersion string
}

// QueueStatus is the lifecycle state of a queue item. The only legal
// transitions are pending→success and pending→failed; a retry leaves the
// item pending with retry_count incremented.
type QueueStatus string

// Queue item statuses.
const (
	StatusPending QueueStatus = "pending"
	StatusSuccess QueueStatus = "success"
	StatusFailed  QueueStatus = "failed"
)

// JobKind tags the typed payload carried by a queue item. Unknown kinds
// decode as KindOpaque and are delivered verbatim, so newer producers can
// enqueue kinds this build does not know about.
type JobKind string

// Known job kinds.
const (
	KindSessionCreate JobKind = "session-create"
	KindSessionClose  JobKind = "session-close"
	KindBlinkBatch    JobKind = "blink-batch"
	KindProfileUpdate JobKind = "profile-update"
	KindGDPRExport    JobKind = "gdpr-export"
	KindGDPRErase     JobKind = "gdpr-erase"
	KindOpaque        JobKind = "opaque"
)

// Per-kind default retry budgets. Fixed at enqueue time so a one-shot
// profile update and a blink-batch upload can carry different budgets.
const (
	defaultRetriesBlinkBatch = 5
	defaultRetriesProfile    = 3
	defaultRetriesGDPR       = 8
	defaultRetriesOther      = 5
)

// DefaultMaxRetries returns the retry budget for a job kind.
func DefaultMaxRetries(kind JobKind) int {
	switch kind {
	case KindBlinkBatch, KindSessionCreate, KindSessionClose:
		return defaultRetriesBlinkBatch
	case KindProfileUpdate:
		return defaultRetriesProfile
	case KindGDPRExport, KindGDPRErase:
		return defaultRetriesGDPR
	default:
		return defaultRetriesOther
	}
}

// ParseJobKind maps a database TEXT value to a JobKind, falling back to
// KindOpaque for forward compatibility with unknown kinds.
func ParseJobKind(s string) JobKind {
	switch k := JobKind(s); k {
	case KindSessionCreate, KindSessionClose, KindBlinkBatch,
		KindProfileUpdate, KindGDPRExport, KindGDPRErase:
		return k
	default:
		return KindOpaque
	}
}

// Job describes a delivery to enqueue. Payload is the serialized request
// body; Headers are extra per-request headers (the bearer token is never
// stored here, it is resolved at submission time).
type Job struct {
	Kind       JobKind
	Endpoint   string
	Method     string
	Payload    []byte
	Headers    map[string]string
	MaxRetries int // 0 means DefaultMaxRetries(Kind)
	UserID     string
}

// QueueItem is one durable delivery job. NextEligibleAt is nil until the
// first failure; a nil value means eligible immediately.
type QueueItem struct {
	ID             int64
	Kind           JobKind
	Endpoint       string
	Method         string
	Payload        []byte
	Headers        map[string]string
	RetryCount     int
	MaxRetries     int
	NextEligibleAt *int64
	Status         QueueStatus
	LastError      string
	UserID         string
	CreatedAt      int64
}

// Status is the aggregate sync state the UI layer polls instead of
// receiving per-item errors.
type Status struct {
	PendingItems    int
	FailedItems     int
	UnsyncedRecords int
	LastSuccess     *int64
}

// Export is the full local dataset for one user, produced for GDPR
// export requests.
type Export struct {
	UserID     string            `json:"user_id"`
	ExportedAt int64             `json:"exported_at"`
	Sessions   []*Session        `json:"sessions"`
	Records    []*IntervalRecord `json:"records"`
	Consents   []*ConsentEvent   `json:"consents"`
}
