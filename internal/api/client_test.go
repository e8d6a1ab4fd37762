package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a TokenSource returning a fixed token.
type staticToken string

func (s staticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newTestClient starts an httptest server with the given handler and
// returns a client pointed at it. High rate limit so tests never wait.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, staticToken("tok-abc"), Options{
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		RateBurst: 1000,
	}, testLogger(t))
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("sets auth and agent headers", func(t *testing.T) {
		var gotAuth, gotAgent string

		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotAgent = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		})

		resp, err := c.Do(ctx, http.MethodGet, "/health", nil, nil)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "Bearer tok-abc", gotAuth)
		assert.Equal(t, userAgent, gotAgent)
	})

	t.Run("extra headers are passed through", func(t *testing.T) {
		var got string

		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("If-Match")
			w.WriteHeader(http.StatusOK)
		})

		resp, err := c.Do(ctx, http.MethodGet, "/x", nil, map[string]string{"If-Match": "v7"})
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "v7", got)
	})

	t.Run("makes exactly one attempt on server error", func(t *testing.T) {
		var calls int

		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := c.Do(ctx, http.MethodGet, "/x", nil, nil)
		assert.ErrorIs(t, err, ErrServer)
		assert.Equal(t, 1, calls)
	})

	t.Run("classifies status codes", func(t *testing.T) {
		cases := []struct {
			status int
			want   error
		}{
			{http.StatusBadRequest, ErrValidation},
			{http.StatusUnprocessableEntity, ErrValidation},
			{http.StatusUnauthorized, ErrUnauthorized},
			{http.StatusForbidden, ErrForbidden},
			{http.StatusNotFound, ErrNotFound},
			{http.StatusConflict, ErrConflict},
			{http.StatusTooManyRequests, ErrThrottled},
			{http.StatusBadGateway, ErrServer},
		}

		for _, tc := range cases {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})

			_, err := c.Do(ctx, http.MethodGet, "/x", nil, nil)
			assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		}
	})

	t.Run("carries retry-after on throttle", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "17")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := c.Do(ctx, http.MethodGet, "/x", nil, nil)
		require.ErrorIs(t, err, ErrThrottled)

		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 17*time.Second, apiErr.RetryAfter)
	})

	t.Run("unreachable server is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		c := NewClient(srv.URL, staticToken("tok"), Options{Timeout: time.Second}, testLogger(t))

		_, err := c.Do(ctx, http.MethodGet, "/x", nil, nil)
		assert.ErrorIs(t, err, ErrNetwork)
	})
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(&Error{StatusCode: 422, Err: ErrValidation}))
	assert.False(t, Retryable(&Error{StatusCode: 401, Err: ErrUnauthorized}))
	assert.False(t, Retryable(&Error{StatusCode: 409, Err: ErrConflict}))
	assert.True(t, Retryable(&Error{StatusCode: 500, Err: ErrServer}))
	assert.True(t, Retryable(&Error{StatusCode: 429, Err: ErrThrottled}))
	assert.True(t, Retryable(ErrNetwork))
}

func TestEndpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("upload blink batch decodes response", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/sessions/s1/blinks/batch", r.URL.Path)

			var req BlinkBatchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Records, 2)

			json.NewEncoder(w).Encode(BlinkBatchResponse{Accepted: 2})
		})

		resp, err := c.UploadBlinkBatch(ctx, "s1", &BlinkBatchRequest{
			Records: []BlinkRecord{
				{RecordID: "r1", DeviceID: "d1", BlinkCount: 3},
				{RecordID: "r2", DeviceID: "d1", BlinkCount: 5},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Accepted)
	})

	t.Run("close session sends PUT", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/sessions/s1", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		err := c.CloseSession(ctx, "s1", &CloseSessionRequest{EndedAt: 100, TotalBlinks: 50})
		require.NoError(t, err)
	})

	t.Run("health round-trip", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Version: "2.1.0"})
		})

		status, err := c.Health(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", status.Status)
	})

	t.Run("erase user sends DELETE", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/user/data", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, c.EraseUser(ctx))
	})
}

func TestConflictState(t *testing.T) {
	t.Run("parses server state from conflict body", func(t *testing.T) {
		end := int64(900)
		body, _ := json.Marshal(SessionState{
			SessionID: "s1",
			UserID:    "u1",
			EndedAt:   &end,
			Devices: []DeviceCount{
				{DeviceID: "device_b", TotalBlinks: 40},
			},
		})

		err := &Error{StatusCode: 409, Message: string(body), Err: ErrConflict}

		state, ok := ConflictState(err)
		require.True(t, ok)
		assert.Equal(t, "s1", state.SessionID)
		require.NotNil(t, state.EndedAt)
		assert.Equal(t, end, *state.EndedAt)
	})

	t.Run("non-conflict errors yield nothing", func(t *testing.T) {
		_, ok := ConflictState(&Error{StatusCode: 500, Err: ErrServer})
		assert.False(t, ok)

		_, ok = ConflictState(ErrNetwork)
		assert.False(t, ok)
	})

	t.Run("unparseable body yields nothing", func(t *testing.T) {
		_, ok := ConflictState(&Error{StatusCode: 409, Message: "not json", Err: ErrConflict})
		assert.False(t, ok)
	})
}
