package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
)

func newDevice(id, model string) *resource.ExternalResource {
	return resource.NewExternalResource(id, id,
		resource.NewLeafValue("model", model),
		resource.NewTreeValue("os",
			resource.NewLeafValue("version", "14"),
			resource.NewLeafValue("build.id", "UP1A"),
		),
	)
}

func TestListResourcesIsRecursive(t *testing.T) {
	assert := require.New(t)

	pixel := newDevice("dev-1", "pixel")
	galaxy := newDevice("dev-2", "galaxy")
	node := resource.NewNode("node-1", "10.0.0.1",
		resource.NewLeafValue("rack", "r1"),
		resource.NewTreeValue("devices",
			resource.NewResourceValue(pixel),
			resource.NewTreeValue("lab", resource.NewResourceValue(galaxy)),
		),
	)

	f := NewAvailabilityFilter()
	resources := f.ListResources(node)
	assert.Len(resources, 2)
	assert.Equal("dev-1", resources[0].GetID())
	assert.Equal("dev-2", resources[1].GetID())

	assert.Equal(galaxy, f.FindByID(node, "dev-2"))
	assert.Nil(f.FindByID(node, "dev-3"))
	assert.Nil(f.FindByID(nil, "dev-1"))

	assert.Nil(f.ListResources(nil))
	assert.Nil(f.ListResources(resource.NewNode("empty", "")))
	assert.Empty(f.ListResources(resource.NewNode("leaves", "", resource.NewLeafValue("rack", "r1"))))
}

func TestFilterAvailable(t *testing.T) {
	assert := require.New(t)

	disabled := false
	free := newDevice("free", "pixel")
	off := newDevice("off", "pixel")
	off.Enabled = &disabled
	reserved := newDevice("reserved", "pixel")
	reserved.Reserved = types.NewStashInfo(types.StashTypeExternal, "alice", nil, "k")
	locked := newDevice("locked", "pixel")
	locked.Locked = types.NewStashInfo(types.StashTypeExternal, "bob", nil, "k")

	available := NewAvailabilityFilter().FilterAvailable([]*resource.ExternalResource{free, off, reserved, locked})
	assert.Len(available, 1)
	assert.Equal("free", available[0].GetID())
}

func TestSelectionCriteria(t *testing.T) {
	pixel := newDevice("dev-1", "pixel")
	galaxy := newDevice("dev-2", "galaxy")
	resources := []*resource.ExternalResource{pixel, galaxy}

	testCases := map[string]struct {
		criteria *SelectionCriteria
		active   bool
		expected []string
	}{
		"nil criteria": {
			criteria: nil,
			active:   false,
			expected: []string{"dev-1", "dev-2"},
		},
		"disabled": {
			criteria: &SelectionCriteria{Selections: []*StringResourceSelection{{Name: "model", Value: "pixel"}}},
			active:   false,
			expected: []string{"dev-1"},
		},
		"no selections": {
			criteria: &SelectionCriteria{Enabled: true},
			active:   false,
			expected: []string{"dev-1", "dev-2"},
		},
		"top level attribute": {
			criteria: &SelectionCriteria{Enabled: true, Selections: []*StringResourceSelection{{Name: "model", Value: "galaxy"}}},
			active:   true,
			expected: []string{"dev-2"},
		},
		"nested attribute": {
			criteria: &SelectionCriteria{Enabled: true, Selections: []*StringResourceSelection{{Name: "os.version", Value: "14"}}},
			active:   true,
			expected: []string{"dev-1", "dev-2"},
		},
		"escaped dot": {
			criteria: &SelectionCriteria{Enabled: true, Selections: []*StringResourceSelection{{Name: `os.build\.id`, Value: "UP1A"}}},
			active:   true,
			expected: []string{"dev-1", "dev-2"},
		},
		"all selections must match": {
			criteria: &SelectionCriteria{Enabled: true, Selections: []*StringResourceSelection{
				{Name: "model", Value: "pixel"},
				{Name: "os.version", Value: "13"},
			}},
			active:   true,
			expected: []string{},
		},
		"tree is not a value": {
			criteria: &SelectionCriteria{Enabled: true, Selections: []*StringResourceSelection{{Name: "os", Value: ""}}},
			active:   true,
			expected: []string{},
		},
	}
	for name, tc := range testCases {
		assert.Equal(t, tc.active, tc.criteria.IsActive(), name)
		ids := []string{}
		for _, r := range tc.criteria.Match(resources) {
			ids = append(ids, r.GetID())
		}
		assert.Equal(t, tc.expected, ids, name)
	}
}
