package managed

import (
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps serialized objects per object type. Stored values are
// immutable byte slices so callers can hand them out without copying.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(objectType, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectType][id]
	return obj, ok
}

// List returns the objects of a type ordered by id.
func (s *MemoryStore) List(objectType string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.objects[objectType]
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func (s *MemoryStore) Put(objectType, id string, obj json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.objects[objectType]
	if !ok {
		byID = make(map[string]json.RawMessage)
		s.objects[objectType] = byID
	}
	byID[id] = obj
}

func (s *MemoryStore) Delete(objectType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[objectType], id)
}
