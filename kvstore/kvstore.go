package kvstore

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrKeyExists     = errors.New("key already exists")
	ErrIndexMismatch = errors.New("index mismatch")

	Separator = "/"
)

// Backend stores JSON values under slash separated keys. Every write returns the new
// index of the key, and Update only succeeds against the current index.
type Backend interface {
	Create(key string, obj interface{}) (uint64, error)
	Update(key string, obj interface{}, index uint64) (uint64, error)
	Get(key string, obj interface{}) (uint64, error)
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	IsNotFoundError(err error) bool
}

func IsIndexMismatch(err error) bool {
	return errors.Cause(err) == ErrIndexMismatch
}

type KVStore struct {
	Prefix string

	b Backend
}

const (
	keyNodes    = "nodes"
	keySettings = "settings"
	keyRuns     = "runs"
)

func NewKVStore(prefix string, backend Backend) (*KVStore, error) {
	if backend == nil {
		return nil, errors.Errorf("invalid empty backend")
	}
	return &KVStore{
		Prefix: prefix,
		b:      backend,
	}, nil
}

func (s *KVStore) key(key string) string {
	// It's not file path, but we use it to deal with '/'
	return filepath.Join(s.Prefix, key)
}

func (s *KVStore) nodeKey(name string) string {
	return filepath.Join(s.key(keyNodes), name)
}

func (s *KVStore) settingKey(name types.SettingName) string {
	return filepath.Join(s.key(keySettings), string(name))
}

func (s *KVStore) runKey(id string) string {
	return filepath.Join(s.key(keyRuns), id)
}

func (s *KVStore) checkNode(node *resource.Node) error {
	if node.Name == "" {
		return fmt.Errorf("BUG: missing required field %+v", node)
	}
	return nil
}

func (s *KVStore) CreateNode(node *resource.Node) error {
	if err := s.checkNode(node); err != nil {
		return err
	}
	index, err := s.b.Create(s.nodeKey(node.Name), node)
	if err != nil {
		return errors.Wrapf(err, "unable to create node %v", node.Name)
	}
	node.KVIndex = index
	logrus.Infof("Add node %v address %v", node.Name, node.Address)
	return nil
}

// UpdateNode must be called with the node guarded against concurrent changes, see
// resource.Node.Save.
func (s *KVStore) UpdateNode(node *resource.Node) error {
	if err := s.checkNode(node); err != nil {
		return err
	}
	index, err := s.b.Update(s.nodeKey(node.Name), node, node.KVIndex)
	if err != nil {
		return errors.Wrapf(err, "unable to update node %v", node.Name)
	}
	node.KVIndex = index
	return nil
}

func (s *KVStore) DeleteNode(name string) error {
	if err := s.b.Delete(s.nodeKey(name)); err != nil {
		return errors.Wrapf(err, "unable to delete node %v", name)
	}
	return nil
}

// GetNode returns nil if the node doesn't exist.
func (s *KVStore) GetNode(name string) (*resource.Node, error) {
	node, err := s.getNodeByKey(s.nodeKey(name))
	if err != nil {
		return nil, errors.Wrap(err, "unable to get node")
	}
	return node, nil
}

func (s *KVStore) getNodeByKey(key string) (*resource.Node, error) {
	node := &resource.Node{}
	index, err := s.b.Get(key, node)
	if err != nil {
		if s.b.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	node.KVIndex = index
	return node, nil
}

func (s *KVStore) ListNodes() (map[string]*resource.Node, error) {
	nodeKeys, err := s.b.Keys(s.key(keyNodes))
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*resource.Node)
	for _, key := range nodeKeys {
		node, err := s.getNodeByKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid key %v", key)
		}
		if node != nil {
			nodes[node.Name] = node
		}
	}
	return nodes, nil
}

func (s *KVStore) CreateSetting(setting *types.Setting) error {
	index, err := s.b.Create(s.settingKey(setting.Name), setting)
	if err != nil {
		return errors.Wrapf(err, "unable to create setting %v", setting.Name)
	}
	setting.KVIndex = index
	return nil
}

func (s *KVStore) UpdateSetting(setting *types.Setting) error {
	index, err := s.b.Update(s.settingKey(setting.Name), setting, setting.KVIndex)
	if err != nil {
		return errors.Wrapf(err, "unable to update setting %v", setting.Name)
	}
	setting.KVIndex = index
	return nil
}

// GetSetting returns nil if the setting was never stored.
func (s *KVStore) GetSetting(name types.SettingName) (*types.Setting, error) {
	setting := &types.Setting{}
	index, err := s.b.Get(s.settingKey(name), setting)
	if err != nil {
		if s.b.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to get setting %v", name)
	}
	setting.KVIndex = index
	return setting, nil
}

func (s *KVStore) CreateRun(run *workload.Run) error {
	if run.ID == "" {
		return fmt.Errorf("BUG: missing run id %+v", run)
	}
	index, err := s.b.Create(s.runKey(run.ID), run)
	if err != nil {
		return errors.Wrapf(err, "unable to create run %v", run.ID)
	}
	run.KVIndex = index
	return nil
}

func (s *KVStore) UpdateRun(run *workload.Run) error {
	index, err := s.b.Update(s.runKey(run.ID), run, run.KVIndex)
	if err != nil {
		return errors.Wrapf(err, "unable to update run %v", run.ID)
	}
	run.KVIndex = index
	return nil
}

// GetRun returns nil if the run doesn't exist.
func (s *KVStore) GetRun(id string) (*workload.Run, error) {
	run, err := s.getRunByKey(s.runKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "unable to get run")
	}
	return run, nil
}

func (s *KVStore) getRunByKey(key string) (*workload.Run, error) {
	run := &workload.Run{}
	index, err := s.b.Get(key, run)
	if err != nil {
		if s.b.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	run.KVIndex = index
	return run, nil
}

func (s *KVStore) ListRuns() (map[string]*workload.Run, error) {
	runKeys, err := s.b.Keys(s.key(keyRuns))
	if err != nil {
		return nil, err
	}

	runs := make(map[string]*workload.Run)
	for _, key := range runKeys {
		run, err := s.getRunByKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid key %v", key)
		}
		if run != nil {
			runs[run.ID] = run
		}
	}
	return runs, nil
}

func (s *KVStore) DeleteRun(id string) error {
	if err := s.b.Delete(s.runKey(id)); err != nil {
		return errors.Wrapf(err, "unable to delete run %v", id)
	}
	return nil
}

// Nuclear is test only function, which will wipe all entries
func (s *KVStore) Nuclear(nuclearCode string) error {
	if nuclearCode != "nuke key value store" {
		return errors.Errorf("invalid nuclear code!")
	}
	return s.b.Delete(s.key(""))
}

// childKeys returns the keys of the direct children of prefix, derived from a list of
// keys below it.
func childKeys(prefix string, keys []string) []string {
	prefix = strings.TrimSuffix(prefix, Separator) + Separator
	seen := map[string]struct{}{}
	children := []string{}
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" {
			continue
		}
		child := prefix + strings.SplitN(rest, Separator, 2)[0]
		if _, ok := seen[child]; ok {
			continue
		}
		seen[child] = struct{}{}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil
	}
	sort.Strings(children)
	return children
}
