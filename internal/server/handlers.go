package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vmmonitor/internal/shared"
)

type API struct {
	Store *Store
	Gate  *Gate
	Log   *slog.Logger
}

// Routes assembles the full API surface. Callers wrap the result in CORS.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", a.Health)
	mux.HandleFunc("/v1/agent/register", a.Register)
	// signed endpoints
	mux.HandleFunc("/v1/agent/metrics", a.RequireAgentAuth(a.Metrics))
	mux.HandleFunc("/v1/agent/heartbeat", a.RequireAgentAuth(a.Heartbeat))
	// admin reads
	mux.HandleFunc("/admin/agents", a.AdminListAgents)
	mux.HandleFunc("/admin/metrics/", a.AdminAgentMetrics)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 2<<20))
}

func keyPrefix(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, shared.HealthResponse{
		Status:    "ok",
		Message:   "API is healthy and running",
		Timestamp: time.Now().UTC(),
	})
}

// Register is deliberately outside the signature gate: the agent has no key
// the server knows yet, it is delivering one.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}

	var req shared.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad json"})
		return
	}
	if req.InstanceID == uuid.Nil || req.InstanceName == "" || req.AgentAPIKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing registration fields"})
		return
	}

	if _, exists := a.Store.GetAgent(req.InstanceID.String()); exists {
		a.Log.Info("agent re-registering", "instance_id", req.InstanceID)
	}

	a.Store.RegisterAgent(&AgentRecord{
		InstanceID:    req.InstanceID,
		InstanceName:  req.InstanceName,
		CloudProvider: req.CloudProvider,
		APIKey:        req.AgentAPIKey,
		RegisteredAt:  time.Now().UTC(),
	})
	a.Log.Info("agent registered",
		"instance_id", req.InstanceID,
		"instance_name", req.InstanceName,
		"key_prefix", keyPrefix(req.AgentAPIKey))

	writeJSON(w, http.StatusCreated, shared.RegisterResponse{
		Message:    "Agent registered successfully",
		InstanceID: req.InstanceID,
	})
}

func (a *API) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	authedID, ok := InstanceIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "not authenticated"})
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}
	var batch shared.MetricsBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad json"})
		return
	}
	if len(batch.Metrics) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty metrics batch"})
		return
	}

	// The gate proves possession of the key; this check catches an agent
	// shipping metrics labeled with somebody else's identity.
	for _, m := range batch.Metrics {
		if m.InstanceID.String() != authedID {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "instance_id mismatch in metrics payload"})
			return
		}
	}

	instanceID := uuid.MustParse(authedID)
	a.Store.AddBatch(authedID, StoredBatch{
		ReceivedAt: time.Now().UTC(),
		InstanceID: instanceID,
		Metrics:    batch.Metrics,
	})
	a.Log.Info("metrics batch accepted", "instance_id", authedID, "count", len(batch.Metrics))

	writeJSON(w, http.StatusAccepted, shared.MessageResponse{
		Message: "Metrics batch for " + authedID + " accepted.",
	})
}

func (a *API) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	authedID, ok := InstanceIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "not authenticated"})
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}
	var hb shared.HeartbeatRequest
	if err := json.Unmarshal(body, &hb); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad json"})
		return
	}
	if hb.InstanceID.String() != authedID {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "instance_id mismatch in heartbeat payload"})
		return
	}

	if !a.Store.TouchHeartbeat(authedID, time.Now().UTC()) {
		// Auth passed so the agent existed moments ago; treat a miss here
		// as not-found rather than a server fault.
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "agent not found"})
		return
	}
	a.Log.Info("heartbeat", "instance_id", authedID)

	writeJSON(w, http.StatusOK, shared.MessageResponse{Message: "Heartbeat acknowledged"})
}

func (a *API) AdminListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, a.Store.ListAgents())
}

// AdminAgentMetrics serves /admin/metrics/{instance_id}.
func (a *API) AdminAgentMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/admin/metrics/")
	instanceID, err := uuid.Parse(idStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid instance_id format"})
		return
	}

	batches, ok := a.Store.BatchesFor(instanceID.String())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no metrics found for this instance id"})
		return
	}
	writeJSON(w, http.StatusOK, batches)
}
