package api

import (
	"testing"

	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longhorn/resource-dispatcher/dispatcher"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"
)

func TestNestedFieldsAreWritten(t *testing.T) {
	schemas := NewSchema()

	r := resource.NewExternalResource("dev-1", "dev-1")
	r.Reserved = types.NewStashInfo(types.StashTypeExternal, "lab-bot", types.NewLeaseAfter(60), "k1")
	r.Locked = types.NewStashInfo(types.StashTypeExternal, "lab-bot", nil, "k2")
	data, err := api.ResourceToMap(toExternalResource(TestNode, r, nil), schemas)
	require.NoError(t, err)
	require.Contains(t, data, "reserved")
	require.Contains(t, data, "locked")
	reserved := data["reserved"].(map[string]interface{})
	assert.Equal(t, "lab-bot", reserved["holder"])
	assert.Equal(t, "k1", reserved["key"])
	assert.Contains(t, reserved, "lease")

	run := &workload.Run{
		ID:         "run-1",
		NodeName:   TestNode,
		Definition: &workload.Definition{Name: "android-tests", URL: TestJobURL},
	}
	run.SetLockedResource(r.Clone())
	data, err = api.ResourceToMap(toRunResource(run, nil), schemas)
	require.NoError(t, err)
	assert.Equal(t, TestJobURL, data["definition"].(map[string]interface{})["url"])
	assert.Equal(t, "dev-1", data["lockedResource"].(map[string]interface{})["id"])

	entry := &dispatcher.CarrierEntry{
		NodeName:   TestNode,
		ResourceID: "dev-1",
		Stash:      types.NewStashInfo(types.StashTypeInternal, TestJobURL, nil, "k3"),
	}
	data, err = api.ResourceToMap(toCarrierResource("pending-1", entry), schemas)
	require.NoError(t, err)
	assert.Equal(t, "k3", data["stash"].(map[string]interface{})["key"])
}

func TestSchemaRegistersNestedTypes(t *testing.T) {
	schemas := NewSchema()
	for _, name := range []string{"stashInfo", "lease", "definition"} {
		_, ok := schemas.CheckSchema(name)
		assert.True(t, ok, name)
	}
	r, ok := schemas.CheckSchema("externalResource")
	require.True(t, ok)
	assert.Equal(t, client.Field{Type: "stashInfo", Nullable: true}, r.ResourceFields["locked"])
}
