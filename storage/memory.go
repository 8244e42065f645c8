package storage

import (
	"context"
	"sync"

	"siege-coordinator/models"
)

// MemoryStore keeps deep copies in process memory. Nothing survives a
// restart; it backs tests and throwaway runs.
type MemoryStore struct {
	mu      sync.Mutex
	live    map[string]models.LiveEvent
	archive map[string]models.ArchiveRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		live:    map[string]models.LiveEvent{},
		archive: map[string]models.ArchiveRecord{},
	}
}

func (m *MemoryStore) LoadLive(context.Context) (map[string]models.LiveEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyLive(m.live), nil
}

func (m *MemoryStore) SaveLive(_ context.Context, events map[string]models.LiveEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = copyLive(events)
	return nil
}

func (m *MemoryStore) LoadArchive(context.Context) (map[string]models.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyArchive(m.archive), nil
}

func (m *MemoryStore) SaveArchive(_ context.Context, records map[string]models.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = copyArchive(records)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func copyLive(in map[string]models.LiveEvent) map[string]models.LiveEvent {
	out := make(map[string]models.LiveEvent, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

func copyArchive(in map[string]models.ArchiveRecord) map[string]models.ArchiveRecord {
	out := make(map[string]models.ArchiveRecord, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
