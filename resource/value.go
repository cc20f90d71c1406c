package resource

import (
	"strings"
)

type ValueKind string

const (
	ValueKindLeaf     = ValueKind("leaf")
	ValueKindTree     = ValueKind("tree")
	ValueKindResource = ValueKind("resource")

	PathSeparator = '.'
	pathEscape    = '\\'
)

// Value is one entry of a metadata tree. Exactly one of Leaf, Tree and Resource is set,
// matching Kind.
type Value struct {
	Kind     ValueKind         `json:"kind" yaml:"kind"`
	Leaf     *Leaf             `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	Tree     *Tree             `json:"tree,omitempty" yaml:"tree,omitempty"`
	Resource *ExternalResource `json:"resource,omitempty" yaml:"resource,omitempty"`
}

type Leaf struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Value       string `json:"value" yaml:"value"`
	Exposed     bool   `json:"exposed,omitempty" yaml:"exposed,omitempty"`
}

type Tree struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Children    []*Value `json:"children,omitempty" yaml:"children,omitempty"`
	Exposed     bool     `json:"exposed,omitempty" yaml:"exposed,omitempty"`
}

func NewLeafValue(name, value string) *Value {
	return &Value{
		Kind: ValueKindLeaf,
		Leaf: &Leaf{Name: name, Value: value},
	}
}

func NewTreeValue(name string, children ...*Value) *Value {
	return &Value{
		Kind: ValueKindTree,
		Tree: &Tree{Name: name, Children: children},
	}
}

func NewResourceValue(r *ExternalResource) *Value {
	return &Value{
		Kind:     ValueKindResource,
		Resource: r,
	}
}

func (v *Value) Name() string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case ValueKindLeaf:
		if v.Leaf != nil {
			return v.Leaf.Name
		}
	case ValueKindTree:
		if v.Tree != nil {
			return v.Tree.Name
		}
	case ValueKindResource:
		if v.Resource != nil {
			return v.Resource.Name
		}
	}
	return ""
}

// Children returns the sub values of a tree or a resource, nil for leaves.
func (v *Value) Children() []*Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ValueKindTree:
		if v.Tree != nil {
			return v.Tree.Children
		}
	case ValueKindResource:
		if v.Resource != nil {
			return v.Resource.children()
		}
	}
	return nil
}

// String is the form compared by selections. Only leaves have one.
func (v *Value) String() string {
	if v == nil || v.Kind != ValueKindLeaf || v.Leaf == nil {
		return ""
	}
	return v.Leaf.Value
}

func (v *Value) DeepCopy() *Value {
	if v == nil {
		return nil
	}
	out := &Value{Kind: v.Kind}
	if v.Leaf != nil {
		leaf := *v.Leaf
		out.Leaf = &leaf
	}
	if v.Tree != nil {
		out.Tree = &Tree{
			Name:        v.Tree.Name,
			Description: v.Tree.Description,
			Children:    DeepCopyValues(v.Tree.Children),
			Exposed:     v.Tree.Exposed,
		}
	}
	if v.Resource != nil {
		out.Resource = v.Resource.Clone()
	}
	return out
}

func DeepCopyValues(values []*Value) []*Value {
	if values == nil {
		return nil
	}
	out := make([]*Value, 0, len(values))
	for _, v := range values {
		out = append(out, v.DeepCopy())
	}
	return out
}

// SplitPath splits a dotted path. A backslash escapes a literal dot inside a segment.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	segments := []string{}
	current := strings.Builder{}
	runes := []rune(path)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == pathEscape && i+1 < len(runes) && runes[i+1] == PathSeparator {
			current.WriteRune(PathSeparator)
			i++
			continue
		}
		if ch == PathSeparator {
			segments = append(segments, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	segments = append(segments, current.String())
	return segments
}

// GetChild returns the direct child with the given name.
func GetChild(values []*Value, name string) *Value {
	for _, v := range values {
		if v.Name() == name {
			return v
		}
	}
	return nil
}

// Lookup follows the path segments down from the given values.
func Lookup(values []*Value, path []string) *Value {
	if len(path) == 0 {
		return nil
	}
	current := GetChild(values, path[0])
	for _, segment := range path[1:] {
		if current == nil {
			return nil
		}
		current = GetChild(current.Children(), segment)
	}
	return current
}

// SetPath places value at the path, creating intermediate trees as needed and
// replacing whatever existed at the final segment. The name of the value is set to
// the final segment.
func SetPath(values []*Value, path []string, value *Value) []*Value {
	if len(path) == 0 || value == nil {
		return values
	}
	if len(path) == 1 {
		setName(value, path[0])
		for i, v := range values {
			if v.Name() == path[0] {
				values[i] = value
				return values
			}
		}
		return append(values, value)
	}

	parent := GetChild(values, path[0])
	if parent == nil || parent.Kind != ValueKindTree || parent.Tree == nil {
		tree := NewTreeValue(path[0])
		if parent == nil {
			values = append(values, tree)
		} else {
			for i, v := range values {
				if v == parent {
					values[i] = tree
				}
			}
		}
		parent = tree
	}
	parent.Tree.Children = SetPath(parent.Tree.Children, path[1:], value)
	return values
}

func setName(value *Value, name string) {
	switch value.Kind {
	case ValueKindLeaf:
		value.Leaf.Name = name
	case ValueKindTree:
		value.Tree.Name = name
	case ValueKindResource:
		value.Resource.mutex.Lock()
		value.Resource.Name = name
		value.Resource.mutex.Unlock()
	}
}
