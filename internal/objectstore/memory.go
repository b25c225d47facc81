package objectstore

import (
	"context"
	"sort"
	"sync"
)

// Fault lets tests fail selected operations. It returns nil to let the
// operation proceed.
type Fault func(op, bucket, key string) error

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in a map. Used for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]map[string]memObject
	fault   Fault
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]map[string]memObject)}
}

// SetFault installs f; nil removes it.
func (m *MemoryStore) SetFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

func (m *MemoryStore) check(op, bucket, key string) error {
	m.mu.Lock()
	f := m.fault
	m.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(op, bucket, key)
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return opError("put", bucket, key, err)
	}
	if err := checkKey(key); err != nil {
		return opError("put", bucket, key, err)
	}
	if err := m.check("put", bucket, key); err != nil {
		return opError("put", bucket, key, err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket]
	if !ok {
		b = make(map[string]memObject)
		m.objects[bucket] = b
	}
	b[key] = memObject{data: buf, contentType: contentType}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("get", bucket, key, err)
	}
	if err := m.check("get", bucket, key); err != nil {
		return nil, opError("get", bucket, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, opError("get", bucket, key, ErrNotFound)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return opError("delete", bucket, key, err)
	}
	if err := m.check("delete", bucket, key); err != nil {
		return opError("delete", bucket, key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects[bucket], key)
	return nil
}

// Keys lists the keys present in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects[bucket]))
	for k := range m.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (m *MemoryStore) ContentType(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[bucket][key].contentType
}
