package server

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestStoreRegisterAndLookup(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{
		InstanceID:   id,
		InstanceName: "db-1",
		APIKey:       "key-1",
		RegisteredAt: time.Now().UTC(),
	})

	secret, ok := s.LookupSecret(id.String())
	require.True(t, ok)
	assert.Equal(t, "key-1", secret)

	_, ok = s.LookupSecret(uuid.NewString())
	assert.False(t, ok)

	// registering initializes an empty batch list
	batches, ok := s.BatchesFor(id.String())
	require.True(t, ok)
	assert.Empty(t, batches)
}

func TestStoreReRegisterRotatesSecret(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "old"})
	s.AddBatch(id.String(), StoredBatch{ReceivedAt: time.Now(), InstanceID: id})

	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "new"})

	secret, ok := s.LookupSecret(id.String())
	require.True(t, ok)
	assert.Equal(t, "new", secret)

	// rotation keeps previously stored batches
	batches, ok := s.BatchesFor(id.String())
	require.True(t, ok)
	assert.Len(t, batches, 1)
}

func TestStoreTouchHeartbeat(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "k"})

	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.True(t, s.TouchHeartbeat(id.String(), at))

	rec, ok := s.GetAgent(id.String())
	require.True(t, ok)
	assert.Equal(t, at, rec.LastHeartbeatAt)

	assert.False(t, s.TouchHeartbeat(uuid.NewString(), at))
}

func TestStoreListAgentsView(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "k"})

	views := s.ListAgents()
	require.Len(t, views, 1)
	assert.Nil(t, views[0].LastHeartbeatAt)

	at := time.Now().UTC()
	s.TouchHeartbeat(id.String(), at)
	views = s.ListAgents()
	require.NotNil(t, views[0].LastHeartbeatAt)
	assert.Equal(t, at, *views[0].LastHeartbeatAt)
}

func TestStoreGetAgentReturnsCopy(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "k"})

	rec, _ := s.GetAgent(id.String())
	rec.APIKey = "mutated"

	secret, _ := s.LookupSecret(id.String())
	assert.Equal(t, "k", secret)
}

func TestStoreBatchesForReturnsCopy(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "k"})
	s.AddBatch(id.String(), StoredBatch{InstanceID: id})

	batches, _ := s.BatchesFor(id.String())
	batches[0].InstanceID = uuid.Nil

	again, _ := s.BatchesFor(id.String())
	assert.Equal(t, id, again[0].InstanceID)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.RegisterAgent(&AgentRecord{InstanceID: id, InstanceName: "db-1", APIKey: "k"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.AddBatch(id.String(), StoredBatch{InstanceID: id})
			s.TouchHeartbeat(id.String(), time.Now())
		}()
		go func() {
			defer wg.Done()
			s.LookupSecret(id.String())
			s.ListAgents()
			s.BatchesFor(id.String())
		}()
	}
	wg.Wait()

	batches, _ := s.BatchesFor(id.String())
	assert.Len(t, batches, 16)
}
