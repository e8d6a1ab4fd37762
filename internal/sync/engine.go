package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wellnessatwork/blinksync/internal/api"
	"github.com/wellnessatwork/blinksync/internal/store"
)

// ErrDrainInProgress is returned by RunOnce when another drain holds the
// lease. The caller's request coalesces into the running cycle.
var ErrDrainInProgress = errors.New("sync: drain already in progress")

// Backend is the slice of the API client the engine uses. Satisfied by
// *api.Client.
type Backend interface {
	CreateSession(ctx context.Context, req *api.CreateSessionRequest) error
	CloseSession(ctx context.Context, sessionID string, req *api.CloseSessionRequest) error
	UploadBlinkBatch(ctx context.Context, sessionID string, req *api.BlinkBatchRequest) (*api.BlinkBatchResponse, error)
	UpdateProfile(ctx context.Context, p *api.Profile) error
	RequestExport(ctx context.Context) (*api.ExportTicket, error)
	EraseUser(ctx context.Context) error
	Health(ctx context.Context) (*api.HealthStatus, error)
	Do(ctx context.Context, method, path string, body io.Reader, extra map[string]string) (*http.Response, error)
}

// TokenRefresher forces a credential refresh after the backend rejects
// the current token. Satisfied by *credentials.Cache.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Store     *store.Store
	Backend   Backend
	Refresher TokenRefresher // optional; nil disables the 401 refresh path
	Resolver  *Resolver      // optional; nil uses the default detector
	Observer  Observer       // optional; nil logs only
	Backoff   *Backoff
	Logger    *slog.Logger

	BatchSize      int           // max queue items per submission
	PollInterval   time.Duration // timer-driven drain period
	HealthInterval time.Duration // backend reachability probe period
}

// Engine drains the durable queue into the backend. One Engine per
// database; the drain lease keeps concurrent triggers from overlapping.
type Engine struct {
	store     *store.Store
	backend   Backend
	refresher TokenRefresher
	resolver  *Resolver
	observer  Observer
	backoff   *Backoff
	logger    *slog.Logger

	batchSize      int
	pollInterval   time.Duration
	healthInterval time.Duration

	lease   DrainLease
	trigger chan struct{}

	// nowFunc returns the current Unix-nanosecond time. Tests override it.
	nowFunc func() int64
}

// NewEngine creates an Engine.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NewLogObserver(logger)
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(nil)
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewBackoff(time.Second, 5*time.Minute)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	return &Engine{
		store:          cfg.Store,
		backend:        cfg.Backend,
		refresher:      cfg.Refresher,
		resolver:       resolver,
		observer:       observer,
		backoff:        backoff,
		logger:         logger,
		batchSize:      batchSize,
		pollInterval:   cfg.PollInterval,
		healthInterval: cfg.HealthInterval,
		trigger:        make(chan struct{}, 1),
		nowFunc:        store.NowNano,
	}
}

// TriggerSync requests a drain. Non-blocking; a request made while a
// drain is pending or running coalesces.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// RunOnce drains the queue until nothing is eligible, submitting one
// endpoint batch at a time. Returns ErrDrainInProgress when another drain
// holds the lease. A network failure stops the drain early; everything
// still queued simply waits for the next cycle.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	if !e.lease.TryAcquire() {
		return nil, ErrDrainInProgress
	}
	defer e.lease.Release()

	start := time.Now()
	report := &Report{}

	for {
		if ctx.Err() != nil {
			break
		}

		batch, err := e.store.NextBatch(ctx, e.nowFunc(), e.batchSize)
		if err != nil {
			e.observer.OnStorageError(err)
			return report, err
		}

		if len(batch) == 0 {
			break
		}

		offline, err := e.submitBatch(ctx, batch, report)
		if err != nil {
			return report, err
		}

		if offline {
			break
		}
	}

	if report.Submitted > 0 && report.Succeeded == report.Submitted {
		if err := e.store.SetLastSyncSuccess(ctx, e.nowFunc()); err != nil {
			e.observer.OnStorageError(err)
		}
	}

	report.Duration = time.Since(start)
	e.observer.OnCycleComplete(*report)

	return report, nil
}

// submitBatch delivers one endpoint batch and records each item's own
// outcome. Returns offline=true when the backend was unreachable, so the
// drain stops instead of grinding through the rest of the queue.
func (e *Engine) submitBatch(ctx context.Context, batch []*store.QueueItem, report *Report) (offline bool, err error) {
	report.Submitted += len(batch)

	// Blink batches collapse into a single request, so one outcome covers
	// every item. Anything else is delivered item by item; a rejection of
	// one item must not taint items the server already accepted.
	if batch[0].Kind == store.KindBlinkBatch {
		submitErr := e.deliver(ctx, func() error { return e.submitBlinkBatch(ctx, batch, report) })

		// A cancellation mid-submit leaves the batch pending for the
		// next run.
		if ctx.Err() != nil {
			report.Submitted -= len(batch)
			return false, nil
		}

		if submitErr == nil {
			for _, item := range batch {
				if err := e.markItemSuccess(ctx, item, report); err != nil {
					return false, err
				}
			}

			return false, nil
		}

		for _, item := range batch {
			if err := e.recordFailure(ctx, item, submitErr, report); err != nil {
				return false, err
			}
		}

		return errors.Is(submitErr, api.ErrNetwork), nil
	}

	for i, item := range batch {
		submitErr := e.deliver(ctx, func() error { return e.submitItem(ctx, item, report) })

		// A cancellation mid-submit leaves this item and the rest of the
		// batch pending for the next run.
		if ctx.Err() != nil {
			report.Submitted -= len(batch) - i
			return false, nil
		}

		if submitErr == nil {
			if err := e.markItemSuccess(ctx, item, report); err != nil {
				return false, err
			}

			continue
		}

		if err := e.recordFailure(ctx, item, submitErr, report); err != nil {
			return false, err
		}

		if errors.Is(submitErr, api.ErrNetwork) {
			// Unattempted items stay pending until connectivity returns.
			report.Submitted -= len(batch) - i - 1
			return true, nil
		}
	}

	return false, nil
}

// deliver runs one submission under the credential rule: a rejected
// token earns one refresh and one replay, and a failed refresh or a
// second rejection is final.
func (e *Engine) deliver(ctx context.Context, send func() error) error {
	err := send()
	if err == nil || !errors.Is(err, api.ErrUnauthorized) {
		return err
	}

	if e.refresher == nil {
		return err
	}

	if _, refreshErr := e.refresher.Refresh(ctx); refreshErr != nil {
		e.logger.Warn("token refresh failed", "error", refreshErr)
		return err
	}

	e.logger.Info("token refreshed, replaying submission")

	return send()
}

func (e *Engine) markItemSuccess(ctx context.Context, item *store.QueueItem, report *Report) error {
	if err := e.store.MarkSuccess(ctx, item.ID); err != nil {
		e.observer.OnStorageError(err)
		return err
	}

	report.Succeeded++

	return nil
}

// recordFailure applies one item's failure: permanent rejections
// dead-letter immediately, everything else reschedules with backoff and
// dead-letters only once the retry budget runs out.
func (e *Engine) recordFailure(ctx context.Context, item *store.QueueItem, submitErr error, report *Report) error {
	e.logger.Warn("submission failed",
		slog.Int64("item_id", item.ID),
		slog.String("endpoint", item.Endpoint),
		slog.String("error", submitErr.Error()),
	)

	if !api.Retryable(submitErr) {
		if err := e.store.MarkFailed(ctx, item.ID, submitErr.Error()); err != nil {
			e.observer.OnStorageError(err)
			return err
		}

		item.Status = store.StatusFailed
		item.LastError = submitErr.Error()
		report.DeadLettered++
		e.observer.OnDeadLetter(item)

		return nil
	}

	next := e.backoff.NextEligible(e.nowFunc(), item.RetryCount, retryAfter(submitErr))

	status, err := e.store.MarkRetry(ctx, item.ID, next, submitErr.Error())
	if err != nil {
		e.observer.OnStorageError(err)
		return err
	}

	if status == store.StatusFailed {
		dead, err := e.store.GetQueueItem(ctx, item.ID)
		if err != nil {
			e.observer.OnStorageError(err)
			return err
		}

		report.DeadLettered++
		e.observer.OnDeadLetter(dead)

		return nil
	}

	report.Retried++

	return nil
}

// submitBlinkBatch merges the records of every item into one upload. The
// server deduplicates by record id, so replaying after a lost
// acknowledgement cannot double-count.
func (e *Engine) submitBlinkBatch(ctx context.Context, batch []*store.QueueItem, report *Report) error {
	var (
		sessionID string
		recordIDs []string
		merged    api.BlinkBatchRequest
	)

	for _, item := range batch {
		var job BatchJob
		if err := json.Unmarshal(item.Payload, &job); err != nil {
			return fmt.Errorf("sync: decoding blink-batch payload for item %d: %w: %w", item.ID, api.ErrValidation, err)
		}

		sessionID = job.SessionID
		merged.Records = append(merged.Records, job.Records...)

		for _, rec := range job.Records {
			recordIDs = append(recordIDs, rec.RecordID)
		}
	}

	if _, err := e.backend.UploadBlinkBatch(ctx, sessionID, &merged); err != nil {
		state, ok := api.ConflictState(err)
		if !ok {
			return err
		}

		report.Conflicts++

		if _, mergeErr := e.mergeServerState(ctx, sessionID, state); mergeErr != nil {
			return mergeErr
		}

		// One resubmission after the merge. Deduplication by record id
		// makes the replay safe; a second conflict means the server's
		// view already covers this upload.
		if _, err := e.backend.UploadBlinkBatch(ctx, sessionID, &merged); err != nil && !errors.Is(err, api.ErrConflict) {
			return err
		}
	}

	if err := e.store.MarkRecordsSynced(ctx, recordIDs); err != nil {
		e.observer.OnStorageError(err)
		return err
	}

	return nil
}

// submitItem delivers one non-batch item according to its kind.
func (e *Engine) submitItem(ctx context.Context, item *store.QueueItem, report *Report) error {
	switch item.Kind {
	case store.KindSessionCreate:
		var req api.CreateSessionRequest
		if err := json.Unmarshal(item.Payload, &req); err != nil {
			return fmt.Errorf("sync: decoding session-create payload for item %d: %w: %w", item.ID, api.ErrValidation, err)
		}

		if err := e.backend.CreateSession(ctx, &req); err != nil {
			state, ok := api.ConflictState(err)
			if !ok {
				return err
			}

			// The server already knows this session in a divergent
			// state. Merge its view locally; local-only records and the
			// final close follow in their own queue items.
			report.Conflicts++

			_, mergeErr := e.mergeServerState(ctx, req.SessionID, state)

			return mergeErr
		}

		return nil

	case store.KindSessionClose:
		var job CloseJob
		if err := json.Unmarshal(item.Payload, &job); err != nil {
			return fmt.Errorf("sync: decoding session-close payload for item %d: %w: %w", item.ID, api.ErrValidation, err)
		}

		return e.closeSession(ctx, &job, report)

	case store.KindProfileUpdate:
		var profile api.Profile
		if err := json.Unmarshal(item.Payload, &profile); err != nil {
			return fmt.Errorf("sync: decoding profile payload for item %d: %w: %w", item.ID, api.ErrValidation, err)
		}

		return e.backend.UpdateProfile(ctx, &profile)

	case store.KindGDPRExport:
		ticket, err := e.backend.RequestExport(ctx)
		if err != nil {
			return err
		}

		e.logger.Info("server export requested",
			slog.String("request_id", ticket.RequestID),
			slog.String("status", ticket.Status),
		)

		return nil

	case store.KindGDPRErase:
		return e.backend.EraseUser(ctx)

	default:
		resp, err := e.backend.Do(ctx, item.Method, item.Endpoint, bytes.NewReader(item.Payload), item.Headers)
		if err != nil {
			return err
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		return nil
	}
}

// closeSession reports a close, merging with the server's view when it
// answers 409. After a merge that found local state the server lacks, one
// corrective close carries the merged totals upstream; if that conflicts
// again a newer close from another device won in the meantime, which is a
// success from this device's point of view.
func (e *Engine) closeSession(ctx context.Context, job *CloseJob, report *Report) error {
	err := e.backend.CloseSession(ctx, job.SessionID, &api.CloseSessionRequest{
		EndedAt:     job.EndedAt,
		TotalBlinks: job.TotalBlinks,
	})
	if err == nil {
		return e.store.MarkSessionSynced(ctx, job.SessionID)
	}

	state, ok := api.ConflictState(err)
	if !ok {
		return err
	}

	report.Conflicts++

	resolution, mergeErr := e.mergeServerState(ctx, job.SessionID, state)
	if mergeErr != nil {
		return mergeErr
	}

	if resolution == nil {
		// Session erased locally while the close was queued. The server's
		// state stands.
		return nil
	}

	if !resolution.ServerStale {
		return e.store.MarkSessionSynced(ctx, job.SessionID)
	}

	corrective := &api.CloseSessionRequest{
		TotalBlinks: resolution.Session.TotalBlinks,
	}
	if resolution.Session.EndedAt != nil {
		corrective.EndedAt = *resolution.Session.EndedAt
	}

	if err := e.backend.CloseSession(ctx, job.SessionID, corrective); err != nil {
		if errors.Is(err, api.ErrConflict) {
			return e.store.MarkSessionSynced(ctx, job.SessionID)
		}

		return err
	}

	return e.store.MarkSessionSynced(ctx, job.SessionID)
}

// mergeServerState reconciles the server's view of a session into the
// local store. Returns a nil resolution when the session no longer
// exists locally, in which case the server's state stands as is.
func (e *Engine) mergeServerState(ctx context.Context, sessionID string, state *api.SessionState) (*Resolution, error) {
	local, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		e.observer.OnStorageError(err)
		return nil, err
	}

	if local == nil {
		return nil, nil
	}

	records, err := e.store.ListRecordsBySession(ctx, sessionID)
	if err != nil {
		e.observer.OnStorageError(err)
		return nil, err
	}

	resolution := e.resolver.Merge(local, records, state)

	if err := e.store.ApplyMergedSession(ctx, resolution.Session, resolution.ForeignRecords); err != nil {
		e.observer.OnStorageError(err)
		return nil, err
	}

	e.logger.Info("merged divergent session state",
		slog.String("session_id", sessionID),
		slog.Int("foreign_records", len(resolution.ForeignRecords)),
		slog.Bool("server_stale", resolution.ServerStale),
	)

	return resolution, nil
}

// retryAfter extracts a server-supplied Retry-After from an API error.
func retryAfter(err error) time.Duration {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}

	return 0
}
