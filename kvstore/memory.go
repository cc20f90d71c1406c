package kvstore

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

type MemoryBackend struct {
	c *cache.Cache

	mutex    *sync.Mutex
	index    uint64
	indexMap map[string]uint64
}

func NewMemoryBackend() (*MemoryBackend, error) {
	c := cache.New(cache.NoExpiration, cache.NoExpiration)
	return &MemoryBackend{
		c: c,

		mutex:    &sync.Mutex{},
		index:    1,
		indexMap: map[string]uint64{},
	}, nil
}

func (m *MemoryBackend) Create(key string, obj interface{}) (uint64, error) {
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.c.Add(key, string(value), cache.DefaultExpiration); err != nil {
		return 0, errors.Wrapf(ErrKeyExists, "%v", key)
	}
	m.index++
	m.indexMap[key] = m.index
	return m.index, nil
}

func (m *MemoryBackend) Update(key string, obj interface{}, index uint64) (uint64, error) {
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	prevIndex, exists := m.indexMap[key]
	if !exists {
		return 0, errors.Wrapf(ErrKeyNotFound, "%v", key)
	}
	if index != prevIndex {
		return 0, errors.Wrapf(ErrIndexMismatch, "%v: %v vs %v", key, prevIndex, index)
	}
	m.index++
	m.indexMap[key] = m.index

	m.c.SetDefault(key, string(value))
	return m.index, nil
}

func (m *MemoryBackend) Get(key string, obj interface{}) (uint64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	value, exists := m.c.Get(key)
	if !exists {
		return 0, ErrKeyNotFound
	}
	if err := json.Unmarshal([]byte(value.(string)), obj); err != nil {
		return 0, errors.Wrap(err, "fail to unmarshal json")
	}

	return m.indexMap[key], nil
}

// Delete removes the key and everything below it.
func (m *MemoryBackend) Delete(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	dir := strings.TrimSuffix(key, Separator) + Separator
	for k := range m.c.Items() {
		if k == key || strings.HasPrefix(k, dir) {
			m.c.Delete(k)
			delete(m.indexMap, k)
		}
	}
	return nil
}

func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	keys := []string{}
	for key := range m.c.Items() {
		keys = append(keys, key)
	}
	return childKeys(prefix, keys), nil
}

func (m *MemoryBackend) IsNotFoundError(err error) bool {
	return errors.Cause(err) == ErrKeyNotFound
}
