package kvstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

const (
	boltFileMode    = 0600
	boltOpenTimeout = time.Second
	boltIndexLength = 8
)

// BoltBackend stores everything in a single bbolt file. Values are prefixed by their
// index, taken from the bucket sequence.
type BoltBackend struct {
	Path string

	db *bolt.DB
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, boltFileMode, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %v", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{
		Path: path,
		db:   db,
	}, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func encodeBoltValue(index uint64, value []byte) []byte {
	out := make([]byte, boltIndexLength+len(value))
	binary.BigEndian.PutUint64(out, index)
	copy(out[boltIndexLength:], value)
	return out
}

func decodeBoltValue(data []byte) (uint64, []byte, error) {
	if len(data) < boltIndexLength {
		return 0, nil, errors.Errorf("corrupted value of length %v", len(data))
	}
	return binary.BigEndian.Uint64(data), data[boltIndexLength:], nil
}

func (b *BoltBackend) put(key string, obj interface{}, check func(existing []byte) error) (uint64, error) {
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}
	var index uint64
	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if err := check(bucket.Get([]byte(key))); err != nil {
			return err
		}
		index, err = bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), encodeBoltValue(index, value))
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

func (b *BoltBackend) Create(key string, obj interface{}) (uint64, error) {
	return b.put(key, obj, func(existing []byte) error {
		if existing != nil {
			return errors.Wrapf(ErrKeyExists, "%v", key)
		}
		return nil
	})
}

func (b *BoltBackend) Update(key string, obj interface{}, index uint64) (uint64, error) {
	return b.put(key, obj, func(existing []byte) error {
		if existing == nil {
			return errors.Wrapf(ErrKeyNotFound, "%v", key)
		}
		current, _, err := decodeBoltValue(existing)
		if err != nil {
			return err
		}
		if current != index {
			return errors.Wrapf(ErrIndexMismatch, "%v: %v vs %v", key, current, index)
		}
		return nil
	})
}

func (b *BoltBackend) Get(key string, obj interface{}) (uint64, error) {
	var index uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(boltBucket).Get([]byte(key))
		if data == nil {
			return ErrKeyNotFound
		}
		i, value, err := decodeBoltValue(data)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(value, obj); err != nil {
			return errors.Wrap(err, "fail to unmarshal json")
		}
		index = i
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

func (b *BoltBackend) Delete(key string) error {
	dir := []byte(strings.TrimSuffix(key, Separator) + Separator)
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if err := bucket.Delete([]byte(key)); err != nil {
			return err
		}
		keys := [][]byte{}
		c := bucket.Cursor()
		for k, _ := c.Seek(dir); k != nil && bytes.HasPrefix(k, dir); k, _ = c.Next() {
			keys = append(keys, append([]byte{}, k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Keys(prefix string) ([]string, error) {
	dir := []byte(strings.TrimSuffix(prefix, Separator) + Separator)
	keys := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, _ := c.Seek(dir); k != nil && bytes.HasPrefix(k, dir); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return childKeys(prefix, keys), nil
}

func (b *BoltBackend) IsNotFoundError(err error) bool {
	return errors.Cause(err) == ErrKeyNotFound
}
