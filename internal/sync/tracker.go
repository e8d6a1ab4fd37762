package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/wellnessatwork/blinksync/internal/store"
)

// Trigger requests a queue drain. Satisfied by (*Engine).TriggerSync; a
// nil trigger leaves items for the next timer-driven cycle.
type Trigger func()

// TrackerConfig holds the options for NewTracker.
type TrackerConfig struct {
	Store          *store.Store
	UserID         string
	DeviceID       string
	AppVersion     string
	OSInfo         string
	FlushThreshold int // unflushed records that force a batch, default 100
	MaxRetries     int // retry budget stamped on enqueued jobs; 0 keeps per-kind defaults
	Trigger        Trigger
	Logger         *slog.Logger
}

// Tracker is the producer side of the pipeline: it records sessions and
// interval measurements locally and enqueues delivery jobs. Writes never
// block on the network; the engine moves them upstream later.
type Tracker struct {
	store          *store.Store
	userID         string
	deviceID       string
	appVersion     string
	osInfo         string
	flushThreshold int
	maxRetries     int
	trigger        Trigger
	logger         *slog.Logger

	mu        stdsync.Mutex
	sessionID string   // open session, empty when none
	unflushed []string // record ids written since the last flush
}

// NewTracker creates a Tracker.
func NewTracker(cfg *TrackerConfig) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := cfg.FlushThreshold
	if threshold <= 0 {
		threshold = 100
	}

	return &Tracker{
		store:          cfg.Store,
		userID:         cfg.UserID,
		deviceID:       cfg.DeviceID,
		appVersion:     cfg.AppVersion,
		osInfo:         cfg.OSInfo,
		flushThreshold: threshold,
		maxRetries:     cfg.MaxRetries,
		trigger:        cfg.Trigger,
		logger:         logger,
	}
}

// enqueue stamps the configured retry budget on a job and queues it.
// Jobs keep their per-kind default budget when none is configured.
func (t *Tracker) enqueue(ctx context.Context, job store.Job) error {
	job.MaxRetries = t.maxRetries

	_, err := t.store.Enqueue(ctx, job)

	return err
}

// StartSession opens a new session and enqueues its announcement. Resumes
// an already open session for this device instead of failing, so a crash
// between start and close does not strand the tracker.
func (t *Tracker) StartSession(ctx context.Context) (*store.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, err := t.store.OpenSession(ctx, t.userID, t.deviceID); err != nil {
		return nil, err
	} else if existing != nil {
		t.logger.Info("resuming open session", slog.String("session_id", existing.ID))
		t.sessionID = existing.ID

		return existing, nil
	}

	sess := &store.Session{
		ID:         uuid.NewString(),
		UserID:     t.userID,
		DeviceID:   t.deviceID,
		StartedAt:  store.NowNano(),
		AppVersion: t.appVersion,
		OSInfo:     t.osInfo,
	}

	if err := t.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	job, err := NewSessionCreateJob(sess)
	if err != nil {
		return nil, err
	}

	if err := t.enqueue(ctx, job); err != nil {
		return nil, err
	}

	t.sessionID = sess.ID
	t.kick()

	t.logger.Info("session started", slog.String("session_id", sess.ID))

	return sess, nil
}

// AppendInterval records one measurement for the open session. Crossing
// the flush threshold enqueues the accumulated records as one batch job.
func (t *Tracker) AppendInterval(ctx context.Context, blinkCount int64, confidence float64, strainScore *float64, intervalSeconds int64) (*store.IntervalRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionID == "" {
		return nil, fmt.Errorf("sync: no open session for device %s", t.deviceID)
	}

	rec := &store.IntervalRecord{
		ID:              uuid.NewString(),
		SessionID:       t.sessionID,
		DeviceID:        t.deviceID,
		Timestamp:       store.NowNano(),
		BlinkCount:      blinkCount,
		Confidence:      confidence,
		StrainScore:     strainScore,
		IntervalSeconds: intervalSeconds,
	}

	if err := t.store.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}

	t.unflushed = append(t.unflushed, rec.ID)

	if len(t.unflushed) >= t.flushThreshold {
		if err := t.flushLocked(ctx); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// CloseSession flushes remaining records, closes the session, and
// enqueues the close job.
func (t *Tracker) CloseSession(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sessionID == "" {
		return fmt.Errorf("sync: no open session for device %s", t.deviceID)
	}

	if err := t.flushLocked(ctx); err != nil {
		return err
	}

	sessionID := t.sessionID

	if err := t.store.CloseSession(ctx, sessionID, store.NowNano()); err != nil {
		return err
	}

	sess, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	job, err := NewSessionCloseJob(sess)
	if err != nil {
		return err
	}

	if err := t.enqueue(ctx, job); err != nil {
		return err
	}

	t.sessionID = ""
	t.kick()

	t.logger.Info("session closed",
		slog.String("session_id", sessionID),
		slog.Int64("total_blinks", sess.TotalBlinks),
	)

	return nil
}

// Flush enqueues any accumulated records without waiting for the
// threshold.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.flushLocked(ctx)
}

func (t *Tracker) flushLocked(ctx context.Context) error {
	if len(t.unflushed) == 0 {
		return nil
	}

	records := make([]*store.IntervalRecord, 0, len(t.unflushed))

	all, err := t.store.ListRecordsBySession(ctx, t.sessionID)
	if err != nil {
		return err
	}

	pending := make(map[string]bool, len(t.unflushed))
	for _, id := range t.unflushed {
		pending[id] = true
	}

	for _, rec := range all {
		if pending[rec.ID] {
			records = append(records, rec)
		}
	}

	job, err := NewBlinkBatchJob(t.userID, t.sessionID, records)
	if err != nil {
		return err
	}

	if err := t.enqueue(ctx, job); err != nil {
		return err
	}

	t.logger.Debug("flushed records to queue",
		slog.String("session_id", t.sessionID),
		slog.Int("records", len(records)),
	)

	t.unflushed = t.unflushed[:0]
	t.kick()

	return nil
}

// Recover re-enqueues unsynced records left over from a previous run,
// grouped by session. The server deduplicates by record id, so records
// whose batch was enqueued but never acknowledged are safe to resend.
func (t *Tracker) Recover(ctx context.Context, limit int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.store.ListUnsyncedRecords(ctx, limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	bySession := make(map[string][]*store.IntervalRecord)
	for _, rec := range records {
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	for sessionID, recs := range bySession {
		job, err := NewBlinkBatchJob(t.userID, sessionID, recs)
		if err != nil {
			return err
		}

		if err := t.enqueue(ctx, job); err != nil {
			return err
		}
	}

	t.logger.Info("recovered unsynced records",
		slog.Int("records", len(records)),
		slog.Int("sessions", len(bySession)),
	)

	t.kick()

	return nil
}

func (t *Tracker) kick() {
	if t.trigger != nil {
		t.trigger()
	}
}
