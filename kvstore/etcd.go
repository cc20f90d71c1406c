package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	etcdDialTimeout    = 5 * time.Second
	etcdRequestTimeout = 5 * time.Second
)

// ETCDBackend keeps the index of a key in its etcd mod revision.
type ETCDBackend struct {
	Servers []string

	client *clientv3.Client
}

func NewETCDBackend(servers []string) (*ETCDBackend, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   servers,
		DialTimeout: etcdDialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &ETCDBackend{
		Servers: servers,

		client: client,
	}, nil
}

func (s *ETCDBackend) Close() error {
	return s.client.Close()
}

func (s *ETCDBackend) Create(key string, obj interface{}) (uint64, error) {
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), etcdRequestTimeout)
	defer cancel()

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return 0, err
	}
	if !resp.Succeeded {
		return 0, errors.Wrapf(ErrKeyExists, "%v", key)
	}
	return uint64(resp.Header.Revision), nil
}

func (s *ETCDBackend) Update(key string, obj interface{}, index uint64) (uint64, error) {
	if index == 0 {
		return 0, fmt.Errorf("kvstore index cannot be 0")
	}
	value, err := json.Marshal(obj)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), etcdRequestTimeout)
	defer cancel()

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", int64(index))).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		return 0, err
	}
	if !resp.Succeeded {
		return 0, errors.Wrapf(ErrIndexMismatch, "%v at %v", key, index)
	}
	return uint64(resp.Header.Revision), nil
}

func (s *ETCDBackend) IsNotFoundError(err error) bool {
	return errors.Cause(err) == ErrKeyNotFound
}

func (s *ETCDBackend) Get(key string, obj interface{}) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), etcdRequestTimeout)
	defer cancel()

	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		return 0, ErrKeyNotFound
	}
	kv := resp.Kvs[0]
	if err := json.Unmarshal(kv.Value, obj); err != nil {
		return 0, errors.Wrap(err, "fail to unmarshal json")
	}
	return uint64(kv.ModRevision), nil
}

func (s *ETCDBackend) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), etcdRequestTimeout)
	defer cancel()

	dir := strings.TrimSuffix(prefix, Separator) + Separator
	resp, err := s.client.Get(ctx, dir, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return childKeys(prefix, keys), nil
}

func (s *ETCDBackend) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), etcdRequestTimeout)
	defer cancel()

	dir := strings.TrimSuffix(key, Separator) + Separator
	_, err := s.client.Txn(ctx).
		Then(clientv3.OpDelete(key), clientv3.OpDelete(dir, clientv3.WithPrefix())).
		Commit()
	return err
}
