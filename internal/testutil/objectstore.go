package testutil

import (
	"context"
	"strings"
	"sync"

	"media-broker/internal/broker"
)

// FakeObjectStore is an in-memory broker.ObjectStore. Keys are stored
// without a leading slash. Safe for concurrent use.
type FakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]bool
	err     error
	heads   []string
}

func NewFakeObjectStore(keys ...string) *FakeObjectStore {
	s := &FakeObjectStore{objects: make(map[string]bool)}
	for _, k := range keys {
		s.Put(k)
	}
	return s
}

// Put marks key as present.
func (s *FakeObjectStore) Put(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[strings.TrimLeft(key, "/")] = true
}

// Remove marks key as absent, as after an external bucket cleanup.
func (s *FakeObjectStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, strings.TrimLeft(key, "/"))
}

// FailWith makes every HeadObject return err. Pass nil to recover.
func (s *FakeObjectStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Heads returns the keys HeadObject was called with, in order.
func (s *FakeObjectStore) Heads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.heads...)
}

func (s *FakeObjectStore) HeadObject(_ context.Context, objectKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads = append(s.heads, objectKey)
	if s.err != nil {
		return false, s.err
	}
	return s.objects[strings.TrimLeft(objectKey, "/")], nil
}

var _ broker.ObjectStore = (*FakeObjectStore)(nil)
