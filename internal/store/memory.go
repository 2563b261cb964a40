package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryRecord struct {
	published map[string]time.Time
	rejected  map[string]time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

var _ VersionStore = (*memoryStore)(nil)

// NewMemoryStore creates a VersionStore that keeps records in memory.
func NewMemoryStore() VersionStore {
	return &memoryStore{records: make(map[string]*memoryRecord)}
}

func (m *memoryStore) record(repository string) *memoryRecord {
	rec, ok := m.records[repository]
	if !ok {
		rec = &memoryRecord{published: map[string]time.Time{}, rejected: map[string]time.Time{}}
		m.records[repository] = rec
	}
	return rec
}

func (m *memoryStore) GetPublished(_ context.Context, repository string) (VersionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := VersionSet{}
	if rec, ok := m.records[repository]; ok {
		for v := range rec.published {
			set.Add(v)
		}
	}
	return set, nil
}

func (m *memoryStore) GetRejected(_ context.Context, repository string) (VersionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := VersionSet{}
	if rec, ok := m.records[repository]; ok {
		for v := range rec.rejected {
			set.Add(v)
		}
	}
	return set, nil
}

func (m *memoryStore) PutPublished(_ context.Context, repository, version string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(repository)
	if _, ok := rec.rejected[version]; ok {
		return ErrVersionRejected
	}
	if _, ok := rec.published[version]; !ok {
		rec.published[version] = at
	}
	return nil
}

func (m *memoryStore) PutRejected(_ context.Context, repository, version string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(repository)
	if _, ok := rec.published[version]; ok {
		// a published version is never demoted
		return nil
	}
	if _, ok := rec.rejected[version]; !ok {
		rec.rejected[version] = at
	}
	return nil
}

func (m *memoryStore) LastActivity(_ context.Context, repository string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[repository]
	if !ok {
		return nil, nil
	}
	return latest(rec), nil
}

func (m *memoryStore) ListRepositories(_ context.Context) ([]RepositorySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]RepositorySummary, 0, len(m.records))
	for repository, rec := range m.records {
		if len(rec.published) == 0 && len(rec.rejected) == 0 {
			continue
		}
		summaries = append(summaries, RepositorySummary{
			Repository:   repository,
			Published:    sortedKeys(rec.published),
			Rejected:     sortedKeys(rec.rejected),
			LastActivity: latest(rec),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Repository < summaries[j].Repository
	})
	return summaries, nil
}

func (*memoryStore) Close() error {
	return nil
}

func latest(rec *memoryRecord) *time.Time {
	var newest *time.Time
	for _, set := range []map[string]time.Time{rec.published, rec.rejected} {
		for _, at := range set {
			if newest == nil || at.After(*newest) {
				t := at
				newest = &t
			}
		}
	}
	return newest
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
