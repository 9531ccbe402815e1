package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmmonitor/internal/shared"
)

func newTestAgent(apiURL string) *Agent {
	return NewFromConfig("/tmp/unused.json", &shared.AgentConfig{
		InstanceID:      uuid.New(),
		InstanceName:    "test-box",
		APIURL:          apiURL,
		APIKey:          "test-secret",
		CloudProvider:   "AWS",
		IntervalSeconds: 60,
		BatchSize:       10,
	})
}

// verifySigned checks the three auth headers against the raw bytes the server
// actually received, the same way the real gate does.
func verifySigned(t *testing.T, a *Agent, r *http.Request) []byte {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	assert.Equal(t, a.Cfg.InstanceID.String(), r.Header.Get(shared.HeaderInstanceID))
	tsStr := r.Header.Get(shared.HeaderTimestamp)
	require.NotEmpty(t, tsStr)
	sig := r.Header.Get(shared.HeaderSignature)
	require.NotEmpty(t, sig)

	assert.True(t, shared.Verify(a.Cfg.APIKey, tsStr, sig, r.Method, r.URL.Path, body),
		"signature must verify against the raw received body")
	return body
}

func TestSendMetricsBatchIsSigned(t *testing.T) {
	var a *Agent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/agent/metrics", r.URL.Path)
		body := verifySigned(t, a, r)

		var batch shared.MetricsBatch
		require.NoError(t, json.Unmarshal(body, &batch))
		require.Len(t, batch.Metrics, 1)
		assert.Equal(t, a.Cfg.InstanceID, batch.Metrics[0].InstanceID)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	a = newTestAgent(srv.URL)

	err := a.SendMetricsBatch(context.Background(), []shared.SystemMetrics{{
		Timestamp:  time.Now().UTC(),
		InstanceID: a.Cfg.InstanceID,
	}})
	require.NoError(t, err)
}

func TestSendHeartbeatIsSigned(t *testing.T) {
	var a *Agent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/agent/heartbeat", r.URL.Path)
		body := verifySigned(t, a, r)

		var hb shared.HeartbeatRequest
		require.NoError(t, json.Unmarshal(body, &hb))
		assert.Equal(t, a.Cfg.InstanceID, hb.InstanceID)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	a = newTestAgent(srv.URL)

	require.NoError(t, a.SendHeartbeat(context.Background()))
}

func TestRegisterGoesOutUnsigned(t *testing.T) {
	var a *Agent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/agent/register", r.URL.Path)
		assert.Empty(t, r.Header.Get(shared.HeaderSignature))

		var req shared.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, a.Cfg.InstanceID, req.InstanceID)
		assert.Equal(t, "test-secret", req.AgentAPIKey)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(shared.RegisterResponse{
			Message:    "Agent registered successfully",
			InstanceID: req.InstanceID,
		})
	}))
	defer srv.Close()
	a = newTestAgent(srv.URL)

	resp, err := a.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Cfg.InstanceID, resp.InstanceID)
}

func TestRegisterSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"missing registration fields"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	a := newTestAgent(srv.URL)

	_, err := a.Register(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register failed")
}

func TestSendMetricsBatchSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"authentication failed"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	a := newTestAgent(srv.URL)

	err := a.SendMetricsBatch(context.Background(), []shared.SystemMetrics{{InstanceID: a.Cfg.InstanceID}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		assert.Empty(t, r.Header.Get(shared.HeaderSignature))
		_ = json.NewEncoder(w).Encode(shared.HealthResponse{
			Status:    "ok",
			Message:   "API is healthy and running",
			Timestamp: time.Now().UTC(),
		})
	}))
	defer srv.Close()
	a := newTestAgent(srv.URL)

	hr, err := a.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", hr.Status)
}

func TestAPIURLTrailingSlashHandled(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(shared.HealthResponse{Status: "ok"})
	}))
	defer srv.Close()
	a := newTestAgent(srv.URL + "/")

	_, err := a.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/v1/health", gotPath)
}
