package resource

import (
	"sync"
)

// Node is a build agent and the metadata tree describing the resources attached to it.
// A nil Metadata means the node carries no resource metadata at all.
type Node struct {
	mutex sync.Mutex

	Name        string   `json:"name" yaml:"name"`
	Address     string   `json:"address" yaml:"address"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    []*Value `json:"metadata" yaml:"metadata"`

	KVIndex uint64 `json:"-" yaml:"-"`

	persist func(*Node) error
}

func NewNode(name, address string, metadata ...*Value) *Node {
	return &Node{
		Name:     name,
		Address:  address,
		Metadata: metadata,
	}
}

// SetPersister attaches the function saving this node and makes every resource in the
// tree save through it.
func (n *Node) SetPersister(persist func(*Node) error) {
	n.mutex.Lock()
	n.persist = persist
	metadata := n.Metadata
	n.mutex.Unlock()

	attachSaver(metadata, n)
}

func attachSaver(values []*Value, saver Saver) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Kind == ValueKindResource && v.Resource != nil {
			v.Resource.setSaver(saver)
		}
		attachSaver(v.Children(), saver)
	}
}

// Values returns the top level metadata values.
func (n *Node) Values() []*Value {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.Metadata
}

// Save persists the node. Concurrent saves are serialized.
func (n *Node) Save() error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.persist == nil {
		return nil
	}
	return n.persist(n)
}

// Redefine takes the address, description and metadata of def. Runtime state of the
// resources is kept as in ReplaceMetadata.
func (n *Node) Redefine(def *Node) {
	n.mutex.Lock()
	n.Address = def.Address
	n.Description = def.Description
	n.mutex.Unlock()

	n.ReplaceMetadata(def.Metadata)
}

// GetAddress is safe to call while the node gets redefined.
func (n *Node) GetAddress() string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.Address
}

// Definition returns a detached copy of the node without persister.
func (n *Node) Definition() *Node {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return &Node{
		Name:        n.Name,
		Address:     n.Address,
		Description: n.Description,
		Metadata:    DeepCopyValues(n.Metadata),
	}
}

// ReplaceMetadata swaps in a new definition of the tree. Resources found in both the old
// and the new tree keep their runtime state unless the new definition sets it.
func (n *Node) ReplaceMetadata(metadata []*Value) {
	n.mutex.Lock()
	old := collectResources(n.Metadata, nil)
	index := make(map[string]*ExternalResource, len(old))
	for _, r := range old {
		index[r.GetID()] = r
	}
	for _, r := range collectResources(metadata, nil) {
		if previous, ok := index[r.GetID()]; ok {
			r.ReplacementOf(previous)
		}
	}
	n.Metadata = metadata
	n.mutex.Unlock()

	attachSaver(metadata, n)
}

func collectResources(values []*Value, out []*ExternalResource) []*ExternalResource {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Kind == ValueKindResource && v.Resource != nil {
			out = append(out, v.Resource)
		}
		out = collectResources(v.Children(), out)
	}
	return out
}
