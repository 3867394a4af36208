package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// memoryStore is an in-process backend used by the hub's own test suite
// (scheduler/executor tests need a fast, hermetic blob store, the same
// way they use SQLite instead of Postgres for the metadata store).
type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{data: map[string][]byte{}}
}

func memKey(category Category, key string) string {
	return string(category) + "/" + key
}

func (s *memoryStore) Put(_ context.Context, category Category, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[memKey(category, key)] = b
	return nil
}

func (s *memoryStore) Get(_ context.Context, category Category, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[memKey(category, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memoryStore) Attrs(_ context.Context, category Category, key string) (*Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[memKey(category, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return &Attrs{Size: int64(len(b))}, nil
}

func (s *memoryStore) Delete(_ context.Context, category Category, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, memKey(category, key))
	return nil
}

func (s *memoryStore) Exists(_ context.Context, category Category, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[memKey(category, key)]
	return ok, nil
}

func (s *memoryStore) ListKeys(_ context.Context, category Category) ([]string, error) {
	prefix := string(category) + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out = append(out, rest)
		}
	}
	return out, nil
}
