package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"vmmonitor/internal/shared"
)

type AgentRecord struct {
	InstanceID      uuid.UUID
	InstanceName    string
	CloudProvider   string
	APIKey          string
	RegisteredAt    time.Time
	LastHeartbeatAt time.Time // zero until the first heartbeat
}

// AgentView is the admin-facing shape of an agent record. The API key never
// leaves the store.
type AgentView struct {
	InstanceID      uuid.UUID  `json:"instance_id"`
	InstanceName    string     `json:"instance_name"`
	CloudProvider   string     `json:"cloud_provider"`
	RegisteredAt    time.Time  `json:"registered_at"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
}

type StoredBatch struct {
	ReceivedAt time.Time              `json:"received_at"`
	InstanceID uuid.UUID              `json:"instance_id"`
	Metrics    []shared.SystemMetrics `json:"metrics"`
}

// Store keeps agents and their metric batches in memory. It doubles as the
// agent directory: the gate reads secrets through LookupSecret while the
// registration handler writes through RegisterAgent.
type Store struct {
	mu      sync.RWMutex
	agents  map[string]*AgentRecord
	batches map[string][]StoredBatch
}

func NewStore() *Store {
	return &Store{
		agents:  map[string]*AgentRecord{},
		batches: map[string][]StoredBatch{},
	}
}

// RegisterAgent inserts or replaces an agent record. Re-registration
// overwrites the stored key, which is how an agent rotates its secret.
func (s *Store) RegisterAgent(rec *AgentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.InstanceID.String()
	s.agents[id] = rec
	if _, ok := s.batches[id]; !ok {
		s.batches[id] = []StoredBatch{}
	}
}

func (s *Store) LookupSecret(instanceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[instanceID]
	if !ok {
		return "", false
	}
	return rec.APIKey, true
}

func (s *Store) GetAgent(instanceID string) (*AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[instanceID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func (s *Store) ListAgents() []AgentView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentView, 0, len(s.agents))
	for _, rec := range s.agents {
		out = append(out, viewOf(rec))
	}
	return out
}

func viewOf(rec *AgentRecord) AgentView {
	v := AgentView{
		InstanceID:    rec.InstanceID,
		InstanceName:  rec.InstanceName,
		CloudProvider: rec.CloudProvider,
		RegisteredAt:  rec.RegisteredAt,
	}
	if !rec.LastHeartbeatAt.IsZero() {
		hb := rec.LastHeartbeatAt
		v.LastHeartbeatAt = &hb
	}
	return v
}

// TouchHeartbeat stamps the agent's last heartbeat time. Returns false if the
// agent is unknown.
func (s *Store) TouchHeartbeat(instanceID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[instanceID]
	if !ok {
		return false
	}
	rec.LastHeartbeatAt = at
	return true
}

func (s *Store) AddBatch(instanceID string, batch StoredBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[instanceID] = append(s.batches[instanceID], batch)
}

// BatchesFor returns all stored batches for an agent, or false if none were
// ever initialized for that id.
func (s *Store) BatchesFor(instanceID string) ([]StoredBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batches, ok := s.batches[instanceID]
	if !ok {
		return nil, false
	}
	out := make([]StoredBatch, len(batches))
	copy(out, batches)
	return out, true
}
