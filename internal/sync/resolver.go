package sync

import (
	"github.com/wellnessatwork/blinksync/internal/api"
	"github.com/wellnessatwork/blinksync/internal/store"
)

// ConflictDetector decides whether the server's view of a session has
// diverged from the local one. The default compares end times and record
// sets; deployments with richer server metadata can plug in their own.
type ConflictDetector interface {
	Divergent(local *store.Session, remote *api.SessionState) bool
}

// Resolution is the outcome of merging local and remote session state.
type Resolution struct {
	// Session is the merged session row to persist locally.
	Session *store.Session
	// ForeignRecords are remote records this device has not seen, to be
	// inserted alongside the merged session.
	ForeignRecords []*store.IntervalRecord
	// ServerStale is true when the local side holds state the server
	// lacks, meaning a corrective upload must follow the local merge.
	ServerStale bool
}

// Resolver merges divergent session state. The merge is pure: it touches
// no storage and no network, so applying the same inputs always yields
// the same resolution, and merging A into B equals merging B into A for
// the additive fields.
type Resolver struct {
	detector ConflictDetector
}

// NewResolver creates a Resolver. A nil detector uses the default
// end-time and record-set comparison.
func NewResolver(detector ConflictDetector) *Resolver {
	if detector == nil {
		detector = defaultDetector{}
	}

	return &Resolver{detector: detector}
}

// Merge combines the local session and its records with the server's
// view. Rules:
//
//   - End time: the later close wins. A session closed on any device is
//     closed everywhere.
//   - Records: union by record id. Records are immutable, so a record id
//     present on both sides is the same measurement; no data is lost.
//   - Totals: recomputed additively from the record union. Two devices
//     both report their own blinks; neither overwrites the other.
//
// localRecords must be the session's full local record set.
func (r *Resolver) Merge(local *store.Session, localRecords []*store.IntervalRecord, remote *api.SessionState) *Resolution {
	merged := *local

	// Later end time wins. nil means still open, and closed beats open.
	if remote.EndedAt != nil {
		if merged.EndedAt == nil || *remote.EndedAt > *merged.EndedAt {
			end := *remote.EndedAt
			merged.EndedAt = &end
		}
	}

	seen := make(map[string]bool, len(localRecords))
	for _, rec := range localRecords {
		seen[rec.ID] = true
	}

	remoteIDs := make(map[string]bool, len(remote.Records))

	var foreign []*store.IntervalRecord

	var foreignBlinks int64

	for i := range remote.Records {
		rr := &remote.Records[i]
		remoteIDs[rr.RecordID] = true

		if seen[rr.RecordID] {
			continue
		}

		foreign = append(foreign, &store.IntervalRecord{
			ID:              rr.RecordID,
			SessionID:       local.ID,
			DeviceID:        rr.DeviceID,
			Timestamp:       rr.Timestamp,
			BlinkCount:      rr.BlinkCount,
			Confidence:      rr.Confidence,
			StrainScore:     rr.StrainScore,
			IntervalSeconds: rr.IntervalSeconds,
			Synced:          true,
		})

		foreignBlinks += rr.BlinkCount
	}

	var localBlinks int64
	for _, rec := range localRecords {
		localBlinks += rec.BlinkCount
	}

	merged.TotalBlinks = localBlinks + foreignBlinks

	// The server is stale when we hold records it does not list, or our
	// close is later than what it knows.
	stale := false

	for _, rec := range localRecords {
		if !remoteIDs[rec.ID] {
			stale = true
			break
		}
	}

	if !stale && local.EndedAt != nil {
		if remote.EndedAt == nil || *local.EndedAt > *remote.EndedAt {
			stale = true
		}
	}

	return &Resolution{
		Session:        &merged,
		ForeignRecords: foreign,
		ServerStale:    stale,
	}
}

// Divergent reports whether the remote state differs from local in a way
// that requires a merge at all.
func (r *Resolver) Divergent(local *store.Session, remote *api.SessionState) bool {
	return r.detector.Divergent(local, remote)
}

// defaultDetector compares end times and record counts.
type defaultDetector struct{}

func (defaultDetector) Divergent(local *store.Session, remote *api.SessionState) bool {
	switch {
	case local.EndedAt == nil && remote.EndedAt != nil,
		local.EndedAt != nil && remote.EndedAt == nil:
		return true
	case local.EndedAt != nil && remote.EndedAt != nil && *local.EndedAt != *remote.EndedAt:
		return true
	default:
		return len(remote.Records) > 0 || remote.TotalBlinks != local.TotalBlinks
	}
}
