package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wellnessatwork/blinksync/internal/api"
	"github.com/wellnessatwork/blinksync/internal/store"
)

// Queue payload shapes. Each typed job kind serializes one of these into
// the item payload; the engine decodes them back when submitting. Opaque
// items skip this and are delivered verbatim.

// CloseJob closes a session on the server.
type CloseJob struct {
	SessionID   string `json:"session_id"`
	EndedAt     int64  `json:"ended_at"`
	TotalBlinks int64  `json:"total_blinks"`
}

// BatchJob uploads interval records for one session.
type BatchJob struct {
	SessionID string            `json:"session_id"`
	Records   []api.BlinkRecord `json:"records"`
}

// NewSessionCreateJob builds the queue job announcing a new session.
func NewSessionCreateJob(sess *store.Session) (store.Job, error) {
	payload, err := json.Marshal(&api.CreateSessionRequest{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		DeviceID:   sess.DeviceID,
		StartedAt:  sess.StartedAt,
		AppVersion: sess.AppVersion,
		OSInfo:     sess.OSInfo,
	})
	if err != nil {
		return store.Job{}, fmt.Errorf("sync: encoding session-create job: %w", err)
	}

	return store.Job{
		Kind:     store.KindSessionCreate,
		Endpoint: "/sessions",
		Method:   http.MethodPost,
		Payload:  payload,
		UserID:   sess.UserID,
	}, nil
}

// NewSessionCloseJob builds the queue job reporting a session close.
func NewSessionCloseJob(sess *store.Session) (store.Job, error) {
	if sess.EndedAt == nil {
		return store.Job{}, fmt.Errorf("sync: session %s is still open", sess.ID)
	}

	payload, err := json.Marshal(&CloseJob{
		SessionID:   sess.ID,
		EndedAt:     *sess.EndedAt,
		TotalBlinks: sess.TotalBlinks,
	})
	if err != nil {
		return store.Job{}, fmt.Errorf("sync: encoding session-close job: %w", err)
	}

	return store.Job{
		Kind:     store.KindSessionClose,
		Endpoint: "/sessions/" + url.PathEscape(sess.ID),
		Method:   http.MethodPut,
		Payload:  payload,
		UserID:   sess.UserID,
	}, nil
}

// NewBlinkBatchJob builds the queue job uploading a set of records for
// one session.
func NewBlinkBatchJob(userID, sessionID string, records []*store.IntervalRecord) (store.Job, error) {
	wire := make([]api.BlinkRecord, 0, len(records))
	for _, rec := range records {
		wire = append(wire, api.BlinkRecord{
			RecordID:        rec.ID,
			DeviceID:        rec.DeviceID,
			Timestamp:       rec.Timestamp,
			BlinkCount:      rec.BlinkCount,
			Confidence:      rec.Confidence,
			StrainScore:     rec.StrainScore,
			IntervalSeconds: rec.IntervalSeconds,
		})
	}

	payload, err := json.Marshal(&BatchJob{SessionID: sessionID, Records: wire})
	if err != nil {
		return store.Job{}, fmt.Errorf("sync: encoding blink-batch job: %w", err)
	}

	return store.Job{
		Kind:     store.KindBlinkBatch,
		Endpoint: "/sessions/" + url.PathEscape(sessionID) + "/blinks/batch",
		Method:   http.MethodPost,
		Payload:  payload,
		UserID:   userID,
	}, nil
}

// NewProfileUpdateJob builds the queue job replacing the user's profile.
func NewProfileUpdateJob(profile *api.Profile) (store.Job, error) {
	payload, err := json.Marshal(profile)
	if err != nil {
		return store.Job{}, fmt.Errorf("sync: encoding profile-update job: %w", err)
	}

	return store.Job{
		Kind:     store.KindProfileUpdate,
		Endpoint: "/user/profile",
		Method:   http.MethodPut,
		Payload:  payload,
		UserID:   profile.UserID,
	}, nil
}

// NewGDPRExportJob builds the queue job requesting a server-side export.
func NewGDPRExportJob(userID string) store.Job {
	return store.Job{
		Kind:     store.KindGDPRExport,
		Endpoint: "/gdpr/export",
		Method:   http.MethodPost,
		Payload:  []byte("{}"),
		UserID:   userID,
	}
}

// NewGDPREraseJob builds the queue job propagating erasure to the server.
// The local erase happens immediately; this job carries it upstream and
// keeps retrying until the server confirms.
func NewGDPREraseJob(userID string) store.Job {
	return store.Job{
		Kind:     store.KindGDPRErase,
		Endpoint: "/user/data",
		Method:   http.MethodDelete,
		Payload:  []byte("{}"),
		UserID:   userID,
	}
}
