package sync

import (
	"log/slog"
	"time"

	"github.com/wellnessatwork/blinksync/internal/store"
)

// Report summarizes one drain cycle.
type Report struct {
	Submitted    int
	Succeeded    int
	Retried      int
	DeadLettered int
	Conflicts    int
	Duration     time.Duration
}

// Observer receives engine lifecycle notifications. The UI layer uses it
// to surface dead letters and storage trouble without polling; all other
// failures stay internal to the retry schedule.
type Observer interface {
	// OnCycleComplete fires after every drain cycle, successful or not.
	OnCycleComplete(report Report)
	// OnDeadLetter fires when an item exhausts its retry budget or is
	// permanently rejected.
	OnDeadLetter(item *store.QueueItem)
	// OnStorageError fires when the local database fails during a cycle.
	OnStorageError(err error)
}

// LogObserver is the default Observer. It logs notifications and nothing
// else.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnCycleComplete(report Report) {
	o.logger.Debug("sync cycle complete",
		slog.Int("submitted", report.Submitted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("retried", report.Retried),
		slog.Int("dead_lettered", report.DeadLettered),
		slog.Duration("duration", report.Duration),
	)
}

func (o *LogObserver) OnDeadLetter(item *store.QueueItem) {
	o.logger.Warn("queue item dead-lettered",
		slog.Int64("item_id", item.ID),
		slog.String("kind", string(item.Kind)),
		slog.String("endpoint", item.Endpoint),
		slog.Int("retries", item.RetryCount),
		slog.String("last_error", item.LastError),
	)
}

func (o *LogObserver) OnStorageError(err error) {
	o.logger.Error("storage error during sync", "error", err)
}
