package datastore

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/kvstore"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
	"github.com/longhorn/resource-dispatcher/workload"
)

// DataStore is the inventory and configuration layer. It keeps the live node objects in
// memory, so resource state changes are seen by every caller, and writes them through to
// the kvstore.
type DataStore struct {
	kv *kvstore.KVStore

	mutex sync.RWMutex
	nodes map[string]*resource.Node

	listenerMutex sync.RWMutex
	listeners     []SettingListener
}

func NewDataStore(kv *kvstore.KVStore) (*DataStore, error) {
	nodes, err := kv.ListNodes()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load nodes")
	}
	s := &DataStore{
		kv:    kv,
		nodes: map[string]*resource.Node{},
	}
	for name, node := range nodes {
		node.SetPersister(s.persistNode)
		s.nodes[name] = node
	}
	logrus.Infof("Loaded %v nodes", len(nodes))
	return s, nil
}

// persistNode runs under the node's own lock. The in-memory node is authoritative, so an
// index conflict is resolved by taking over the current index.
func (s *DataStore) persistNode(node *resource.Node) error {
	err := s.kv.UpdateNode(node)
	if err == nil || !kvstore.IsIndexMismatch(err) {
		return err
	}
	stored, getErr := s.kv.GetNode(node.Name)
	if getErr != nil {
		return errors.Wrapf(getErr, "unable to refresh node %v after %v", node.Name, err)
	}
	if stored == nil {
		return s.kv.CreateNode(node)
	}
	logrus.Debugf("Node %v was changed in the store, overwriting", node.Name)
	node.KVIndex = stored.KVIndex
	return s.kv.UpdateNode(node)
}

// GetNode returns a *types.NotFoundError for unknown nodes.
func (s *DataStore) GetNode(name string) (*resource.Node, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	node, ok := s.nodes[name]
	if !ok {
		return nil, &types.NotFoundError{Name: "node " + name}
	}
	return node, nil
}

// ListNodes returns the nodes sorted by name.
func (s *DataStore) ListNodes() []*resource.Node {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	nodes := make([]*resource.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

// CreateOrUpdateNode adds the node, or redefines the existing node with the same name.
// Resources present in both definitions keep their reservation, lock and enabled state.
func (s *DataStore) CreateOrUpdateNode(def *resource.Node) (*resource.Node, error) {
	if err := validateNode(def); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	existing, ok := s.nodes[def.Name]
	if !ok {
		defer s.mutex.Unlock()
		if err := s.kv.CreateNode(def); err != nil {
			return nil, err
		}
		def.SetPersister(s.persistNode)
		s.nodes[def.Name] = def
		return def, nil
	}
	s.mutex.Unlock()

	existing.Redefine(def)
	if err := existing.Save(); err != nil {
		return existing, &types.SaveError{Err: err}
	}
	logrus.Infof("Updated node %v", existing.Name)
	return existing, nil
}

func validateNode(node *resource.Node) error {
	if node == nil {
		return errors.New("missing node")
	}
	if !util.ValidateName(node.Name) {
		return errors.Errorf("invalid node name %q", node.Name)
	}
	ids := map[string]struct{}{}
	var check func(values []*resource.Value) error
	check = func(values []*resource.Value) error {
		for _, v := range values {
			if v == nil {
				continue
			}
			if v.Kind == resource.ValueKindResource && v.Resource != nil {
				id := v.Resource.GetID()
				if id == "" {
					return errors.Errorf("resource %v on node %v is missing the id", v.Name(), node.Name)
				}
				if _, dup := ids[id]; dup {
					return errors.Errorf("duplicate resource id %v on node %v", id, node.Name)
				}
				ids[id] = struct{}{}
			}
			if err := check(v.Children()); err != nil {
				return err
			}
		}
		return nil
	}
	return check(node.Values())
}

func (s *DataStore) DeleteNode(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.nodes[name]; !ok {
		return &types.NotFoundError{Name: "node " + name}
	}
	if err := s.kv.DeleteNode(name); err != nil {
		return err
	}
	delete(s.nodes, name)
	logrus.Infof("Deleted node %v", name)
	return nil
}

func (s *DataStore) CreateRun(run *workload.Run) error {
	return s.kv.CreateRun(run)
}

func (s *DataStore) UpdateRun(run *workload.Run) error {
	return s.kv.UpdateRun(run)
}

// GetRun returns a *types.NotFoundError for unknown runs.
func (s *DataStore) GetRun(id string) (*workload.Run, error) {
	run, err := s.kv.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, &types.NotFoundError{Name: "run " + id}
	}
	return run, nil
}

func (s *DataStore) ListRuns() ([]*workload.Run, error) {
	runs, err := s.kv.ListRuns()
	if err != nil {
		return nil, err
	}
	out := make([]*workload.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

func (s *DataStore) DeleteRun(id string) error {
	return s.kv.DeleteRun(id)
}
