package datastore

import (
	"sync"
	"testing"

	"github.com/longhorn/resource-dispatcher/kvstore"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"

	. "gopkg.in/check.v1"
)

const (
	TestPrefix = "/resource-dispatcher-test"
	TestNode   = "agent-1"
)

func Test(t *testing.T) { TestingT(t) }

type TestSuite struct {
	kv *kvstore.KVStore
	ds *DataStore
}

var _ = Suite(&TestSuite{})

func (s *TestSuite) SetUpTest(c *C) {
	backend, err := kvstore.NewMemoryBackend()
	c.Assert(err, IsNil)
	s.kv, err = kvstore.NewKVStore(TestPrefix, backend)
	c.Assert(err, IsNil)
	s.ds, err = NewDataStore(s.kv)
	c.Assert(err, IsNil)
}

func newTestNode(ids ...string) *resource.Node {
	values := []*resource.Value{}
	for _, id := range ids {
		values = append(values, resource.NewResourceValue(
			resource.NewExternalResource("phone", id, resource.NewLeafValue("model", "pixel"))))
	}
	return resource.NewNode(TestNode, "10.0.0.1", resource.NewTreeValue("devices", values...))
}

func find(node *resource.Node, id string) *resource.ExternalResource {
	return scheduler.NewAvailabilityFilter().FindByID(node, id)
}

func (s *TestSuite) TestNodeLifecycle(c *C) {
	_, err := s.ds.GetNode(TestNode)
	c.Assert(types.IsNotFoundError(err), Equals, true)

	node, err := s.ds.CreateOrUpdateNode(newTestNode("dev-1", "dev-2"))
	c.Assert(err, IsNil)

	got, err := s.ds.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(got, Equals, node)
	c.Assert(s.ds.ListNodes(), HasLen, 1)

	_, err = s.ds.CreateOrUpdateNode(resource.NewNode("bad name", ""))
	c.Assert(err, NotNil)
	_, err = s.ds.CreateOrUpdateNode(newTestNode("dup", "dup"))
	c.Assert(err, NotNil)

	c.Assert(s.ds.DeleteNode(TestNode), IsNil)
	c.Assert(types.IsNotFoundError(s.ds.DeleteNode(TestNode)), Equals, true)
	stored, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(stored, IsNil)
}

func (s *TestSuite) TestResourceChangesArePersisted(c *C) {
	node, err := s.ds.CreateOrUpdateNode(newTestNode("dev-1"))
	c.Assert(err, IsNil)

	ok, err := find(node, "dev-1").TryReserve(types.NewStashInfo(types.StashTypeInternal, "job/a/", nil, "key-1"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	stored, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	reserved := find(stored, "dev-1").GetReserved()
	c.Assert(reserved, NotNil)
	c.Assert(reserved.Key, Equals, "key-1")

	// a fresh datastore sees the state
	ds, err := NewDataStore(s.kv)
	c.Assert(err, IsNil)
	reloaded, err := ds.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(find(reloaded, "dev-1").GetReserved().Key, Equals, "key-1")

	// and keeps persisting through it
	c.Assert(find(reloaded, "dev-1").ClearLock(), IsNil)
	stored, err = s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(find(stored, "dev-1").IsAvailable(), Equals, true)
}

func (s *TestSuite) TestPersistTakesOverStaleIndex(c *C) {
	node, err := s.ds.CreateOrUpdateNode(newTestNode("dev-1"))
	c.Assert(err, IsNil)

	other, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	other.Description = "changed elsewhere"
	c.Assert(s.kv.UpdateNode(other), IsNil)

	ok, err := find(node, "dev-1").TryReserve(types.NewStashInfo(types.StashTypeInternal, "job/a/", nil, "key-1"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	stored, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(find(stored, "dev-1").GetReserved(), NotNil)
}

func (s *TestSuite) TestRedefineKeepsRuntimeState(c *C) {
	node, err := s.ds.CreateOrUpdateNode(newTestNode("dev-1", "dev-2"))
	c.Assert(err, IsNil)
	ok, err := find(node, "dev-1").TryReserve(types.NewStashInfo(types.StashTypeInternal, "job/a/", nil, "key-1"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	def := newTestNode("dev-1", "dev-3")
	def.Address = "10.0.0.2"
	updated, err := s.ds.CreateOrUpdateNode(def)
	c.Assert(err, IsNil)
	c.Assert(updated, Equals, node)
	c.Assert(node.GetAddress(), Equals, "10.0.0.2")

	c.Assert(find(node, "dev-1").GetReserved().Key, Equals, "key-1")
	c.Assert(find(node, "dev-2"), IsNil)
	c.Assert(find(node, "dev-3").IsAvailable(), Equals, true)

	// resources of the new definition persist through the node
	c.Assert(find(node, "dev-3").ClearLock(), IsNil)
	stored, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	c.Assert(find(stored, "dev-3"), NotNil)
	c.Assert(find(stored, "dev-1").GetReserved().Key, Equals, "key-1")
}

func (s *TestSuite) TestConcurrentSaves(c *C) {
	ids := []string{"dev-1", "dev-2", "dev-3", "dev-4"}
	node, err := s.ds.CreateOrUpdateNode(newTestNode(ids...))
	c.Assert(err, IsNil)

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := find(node, id).TryReserve(types.NewStashInfo(types.StashTypeInternal, "job/a/", nil, id))
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Assert(err, IsNil)
	}

	stored, err := s.kv.GetNode(TestNode)
	c.Assert(err, IsNil)
	for _, id := range ids {
		c.Assert(find(stored, id).GetReserved().Key, Equals, id)
	}
}

func (s *TestSuite) TestSettings(c *C) {
	value, err := s.ds.GetSettingAsInt(types.SettingNameReserveTime)
	c.Assert(err, IsNil)
	c.Assert(value, Equals, types.DefaultReserveTime)

	changed := []*types.Setting{}
	s.ds.OnSettingChange(func(setting *types.Setting) {
		changed = append(changed, setting)
	})

	_, err = s.ds.UpdateSetting(types.SettingNameReserveTime, "0")
	c.Assert(err, NotNil)
	_, err = s.ds.UpdateSetting(types.SettingName("unknown"), "x")
	c.Assert(err, NotNil)

	_, err = s.ds.UpdateSetting(types.SettingNameReserveTime, "15")
	c.Assert(err, IsNil)
	_, err = s.ds.UpdateSetting(types.SettingNameReserveTime, "15")
	c.Assert(err, IsNil)
	_, err = s.ds.UpdateSetting(types.SettingNameReserveTime, "20")
	c.Assert(err, IsNil)

	value, err = s.ds.GetSettingAsInt(types.SettingNameReserveTime)
	c.Assert(err, IsNil)
	c.Assert(value, Equals, 20)
	c.Assert(changed, HasLen, 2)

	_, err = s.ds.GetSettingAsInt(types.SettingNameResourceManager)
	c.Assert(err, NotNil)

	settings, err := s.ds.ListSettings()
	c.Assert(err, IsNil)
	c.Assert(settings, HasLen, len(types.SettingNameList))
	c.Assert(settings[types.SettingNameResourceManager].Value, Equals, types.ResourceManagerNoop)
}

func (s *TestSuite) TestRuns(c *C) {
	_, err := s.ds.GetRun("run-1")
	c.Assert(types.IsNotFoundError(err), Equals, true)

	run := &workload.Run{ID: "run-1", PendingID: "p-1", NodeName: TestNode, Created: "2026-01-01T00:00:00Z"}
	c.Assert(s.ds.CreateRun(run), IsNil)
	run2 := &workload.Run{ID: "run-0", PendingID: "p-2", NodeName: TestNode, Created: "2026-01-02T00:00:00Z"}
	c.Assert(s.ds.CreateRun(run2), IsNil)

	run.State = workload.RunStateCompleted
	c.Assert(s.ds.UpdateRun(run), IsNil)

	got, err := s.ds.GetRun("run-1")
	c.Assert(err, IsNil)
	c.Assert(got.State, Equals, workload.RunStateCompleted)

	runs, err := s.ds.ListRuns()
	c.Assert(err, IsNil)
	c.Assert(runs, HasLen, 2)
	c.Assert(runs[0].ID, Equals, "run-1")

	c.Assert(s.ds.DeleteRun("run-1"), IsNil)
	_, err = s.ds.GetRun("run-1")
	c.Assert(types.IsNotFoundError(err), Equals, true)
}

const testConfig = `
settings:
  reserve-time: "7"
  resource-manager: none
permissions:
  ci-admin: [reserve-lock, enable-disable]
  "*": [reserve-lock]
nodes:
- name: agent-1
  address: 10.0.0.1
  metadata:
  - kind: tree
    tree:
      name: devices
      children:
      - kind: resource
        resource:
          name: phone
          id: dev-1
          children:
          - kind: leaf
            leaf:
              name: model
              value: pixel
`

func (s *TestSuite) TestConfig(c *C) {
	config, err := ParseConfig([]byte(testConfig))
	c.Assert(err, IsNil)
	c.Assert(config.Nodes, HasLen, 1)

	c.Assert(s.ds.ApplyConfig(config), IsNil)

	value, err := s.ds.GetSettingAsInt(types.SettingNameReserveTime)
	c.Assert(err, IsNil)
	c.Assert(value, Equals, 7)

	node, err := s.ds.GetNode(TestNode)
	c.Assert(err, IsNil)
	r := find(node, "dev-1")
	c.Assert(r, NotNil)
	model, ok := r.Attribute([]string{"model"})
	c.Assert(ok, Equals, true)
	c.Assert(model, Equals, "pixel")

	authorizer := config.Authorizer()
	c.Assert(authorizer.HasPermission("ci-admin", resource.PermissionEnableDisable), Equals, true)
	c.Assert(authorizer.HasPermission("someone", resource.PermissionReserveLock), Equals, true)
	c.Assert(authorizer.HasPermission("someone", resource.PermissionEnableDisable), Equals, false)

	_, err = ParseConfig([]byte("unknown: true\n"))
	c.Assert(err, NotNil)

	bad := &Config{Settings: map[types.SettingName]string{types.SettingNameReserveTime: "zero"}}
	c.Assert(s.ds.ApplyConfig(bad), NotNil)
}
