package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/longhorn/resource-dispatcher/datastore"
	"github.com/longhorn/resource-dispatcher/dispatcher"
	"github.com/longhorn/resource-dispatcher/kvstore"
	"github.com/longhorn/resource-dispatcher/manager"
	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
	"github.com/longhorn/resource-dispatcher/workload"
)

const (
	TestNode    = "agent-1"
	TestJobURL  = "job/android-tests/"
	TestRootURL = "http://ci.example.com/"
)

type lockingManager struct{}

func (m *lockingManager) Name() string { return "locking" }

func (m *lockingManager) Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult {
	return types.NewOKResult("reserved", util.UUID(), types.NewLeaseAfter(seconds))
}

func (m *lockingManager) Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return types.NewOKResult("locked", key, nil)
}

func (m *lockingManager) Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	return types.NewOKResult("released", key, nil)
}

func (m *lockingManager) IsExternalLockingOk() bool { return true }

type testEnv struct {
	t        *testing.T
	ds       *datastore.DataStore
	managers *manager.Switch
	notifier *notify.FileNotifier
	server   *httptest.Server
}

func newTestEnv(t *testing.T, authorizer resource.Authorizer) *testEnv {
	backend, err := kvstore.NewMemoryBackend()
	require.NoError(t, err)
	kv, err := kvstore.NewKVStore("/api-test", backend)
	require.NoError(t, err)
	ds, err := datastore.NewDataStore(kv)
	require.NoError(t, err)

	managers := manager.NewSwitch(&lockingManager{})
	notifier := notify.NewFileNotifier("")
	d := dispatcher.NewDispatcher(managers, ds, ds, notifier, nil)

	env := &testEnv{
		t:        t,
		ds:       ds,
		managers: managers,
		notifier: notifier,
		server:   httptest.NewServer(NewRouter(NewServer(ds, d, managers, notifier, authorizer))),
	}
	t.Cleanup(env.server.Close)
	return env
}

func testNodeInput() *Node {
	devices := resource.NewTreeValue("devices",
		resource.NewResourceValue(resource.NewExternalResource("phone", "dev-1", resource.NewLeafValue("model", "pixel"))),
		resource.NewResourceValue(resource.NewExternalResource("phone", "dev-2", resource.NewLeafValue("model", "galaxy"))))
	return &Node{
		Address:     "10.0.0.1",
		Description: "rack 4",
		Metadata:    []*resource.Value{devices},
	}
}

func (e *testEnv) do(method, path, principal string, body interface{}, out interface{}) (int, string) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(types.HeaderPrincipal, principal)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(e.t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode, string(data)
}

func (e *testEnv) addNode() {
	node := &Node{}
	code, body := e.do("PUT", "/v1/nodes/"+TestNode, "", testNodeInput(), node)
	require.Equal(e.t, http.StatusOK, code, body)
	require.Len(e.t, node.Resources, 2)
}

func resourcePath(id, action string) string {
	path := "/v1/nodes/" + TestNode + "/resources/" + id
	if action != "" {
		path += "?action=" + action
	}
	return path
}

func TestNodeLifecycle(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	nodes := struct {
		Data []Node `json:"data"`
	}{}
	code, _ := env.do("GET", "/v1/nodes", "", nil, &nodes)
	assert.Equal(http.StatusOK, code)
	assert.Len(nodes.Data, 1)
	assert.Equal(TestNode, nodes.Data[0].Name)
	assert.Equal("10.0.0.1", nodes.Data[0].Address)
	assert.Equal("rack 4", nodes.Data[0].Description)

	r := &ExternalResource{}
	code, _ = env.do("GET", resourcePath("dev-2", ""), "", nil, r)
	assert.Equal(http.StatusOK, code)
	assert.Equal("dev-2", r.Id)
	assert.Equal(TestNode, r.NodeName)
	assert.True(r.Enabled)
	assert.True(r.Available)

	code, body := env.do("GET", "/v1/nodes/agent-9", "", nil, nil)
	assert.Equal(http.StatusNotFound, code)
	assert.Contains(body, "No node with name agent-9 exists")

	code, body = env.do("GET", resourcePath("dev-9", ""), "", nil, nil)
	assert.Equal(http.StatusNotFound, code)
	assert.Contains(body, "No resource with id dev-9 exists on this node")

	code, _ = env.do("DELETE", "/v1/nodes/"+TestNode, "", nil, nil)
	assert.Equal(http.StatusOK, code)
	code, _ = env.do("GET", "/v1/nodes/"+TestNode, "", nil, nil)
	assert.Equal(http.StatusNotFound, code)
}

func TestRedefineNodeKeepsState(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	code, _ := env.do("POST", resourcePath("dev-1", "disable"), "", nil, &ExternalResource{})
	assert.Equal(http.StatusOK, code)

	input := testNodeInput()
	input.Address = "10.0.0.2"
	node := &Node{}
	code, _ = env.do("PUT", "/v1/nodes/"+TestNode, "", input, node)
	assert.Equal(http.StatusOK, code)
	assert.Equal("10.0.0.2", node.Address)
	assert.False(node.Resources[0].Enabled)
	assert.True(node.Resources[1].Enabled)
}

func TestFrontDoorTransitions(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	r := &ExternalResource{}
	code, body := env.do("POST", resourcePath("dev-1", "reserve"), "", &ReserveInput{ReservedBy: "lab-bot", Key: "k1", Seconds: 60}, r)
	assert.Equal(http.StatusOK, code, body)
	assert.False(r.Available)
	assert.Equal("lab-bot", r.Reserved.Holder)
	assert.Equal(types.StashTypeExternal, r.Reserved.Type)
	assert.NotNil(r.Reserved.Lease)

	code, _ = env.do("POST", resourcePath("dev-1", "lock"), "", &LockInput{LockedBy: "lab-bot", Key: "wrong"}, nil)
	assert.Equal(http.StatusForbidden, code)

	r = &ExternalResource{}
	code, _ = env.do("POST", resourcePath("dev-1", "lock"), "", &LockInput{LockedBy: "lab-bot", Key: "k1"}, r)
	assert.Equal(http.StatusOK, code)
	assert.Nil(r.Reserved)
	assert.Equal("lab-bot", r.Locked.Holder)

	code, _ = env.do("POST", resourcePath("dev-1", "release"), "", &ReleaseInput{Key: "master"}, nil)
	assert.Equal(http.StatusForbidden, code)

	_, err := env.ds.UpdateSetting(types.SettingNameReleaseKey, "master")
	assert.NoError(err)
	r = &ExternalResource{}
	code, _ = env.do("POST", resourcePath("dev-1", "release"), "", &ReleaseInput{Key: "master"}, r)
	assert.Equal(http.StatusOK, code)
	assert.True(r.Available)

	code, _ = env.do("POST", resourcePath("dev-1", "reserve"), "", &ReserveInput{}, nil)
	assert.NotEqual(http.StatusOK, code)
}

func TestExpireKeepsLock(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	code, _ := env.do("POST", resourcePath("dev-1", "reserve"), "", &ReserveInput{ReservedBy: "lab-bot"}, nil)
	assert.Equal(http.StatusOK, code)
	r := &ExternalResource{}
	code, _ = env.do("POST", resourcePath("dev-1", "expire"), "", nil, r)
	assert.Equal(http.StatusOK, code)
	assert.True(r.Available)

	code, _ = env.do("POST", resourcePath("dev-2", "lock"), "", &LockInput{LockedBy: "lab-bot"}, nil)
	assert.Equal(http.StatusOK, code)
	r = &ExternalResource{}
	code, _ = env.do("POST", resourcePath("dev-2", "expire"), "", nil, r)
	assert.Equal(http.StatusOK, code)
	assert.NotNil(r.Locked)
}

func TestFrontDoorWithoutLockingCapability(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()
	env.managers.Set(manager.NewNoneManager())

	code, body := env.do("POST", resourcePath("dev-1", "reserve"), "", &ReserveInput{ReservedBy: "lab-bot"}, nil)
	assert.Equal(http.StatusConflict, code)
	assert.Contains(body, "external locking is not supported")

	// enabling does not need the capability
	code, _ = env.do("POST", resourcePath("dev-1", "disable"), "", nil, nil)
	assert.Equal(http.StatusOK, code)
}

func TestPermissions(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, resource.StaticAuthorizer{
		"alice": {resource.PermissionReserveLock, resource.PermissionEnableDisable},
		"bob":   {resource.PermissionEnableDisable},
	})
	env.addNode()

	code, _ := env.do("POST", resourcePath("dev-1", "reserve"), "bob", &ReserveInput{ReservedBy: "bob"}, nil)
	assert.Equal(http.StatusForbidden, code)
	code, _ = env.do("POST", resourcePath("dev-1", "expire"), "bob", nil, nil)
	assert.Equal(http.StatusForbidden, code)
	code, _ = env.do("POST", resourcePath("dev-1", "disable"), "carol", nil, nil)
	assert.Equal(http.StatusForbidden, code)

	code, _ = env.do("POST", resourcePath("dev-1", "disable"), "bob", nil, nil)
	assert.Equal(http.StatusOK, code)
	code, _ = env.do("POST", resourcePath("dev-1", "reserve"), "alice", &ReserveInput{ReservedBy: "alice"}, nil)
	assert.Equal(http.StatusOK, code)
}

func TestCircularRequestIsSkipped(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()
	_, err := env.ds.UpdateSetting(types.SettingNameRootURL, TestRootURL)
	assert.NoError(err)

	result := &ActionResult{}
	code, _ := env.do("POST", resourcePath("dev-1", "reserve"), "", &ReserveInput{
		ReservedBy: "monitor",
		ClientInfo: `{"id":"` + TestRootURL + `","url":"job/a/"}`,
	}, result)
	assert.Equal(http.StatusOK, code)
	assert.Equal(ActionStatusSkipped, result.Status)

	r := &ExternalResource{}
	env.do("GET", resourcePath("dev-1", ""), "", nil, r)
	assert.True(r.Available)

	// skipped before the lookup
	code, _ = env.do("POST", "/v1/nodes/agent-9/resources/dev-1?action=release", "", &ReleaseInput{
		ClientInfo: `{"id":"` + TestRootURL + `"}`,
	}, nil)
	assert.Equal(http.StatusOK, code)

	for _, info := range []string{"not json", `{"id":"http://other.example.com/"}`, `{"url":"x"}`, `["a"]`, `{"id":5}`} {
		r = &ExternalResource{}
		code, body := env.do("POST", resourcePath("dev-2", "reserve"), "", &ReserveInput{ReservedBy: "monitor", ClientInfo: info}, r)
		assert.Equal(http.StatusOK, code, body)
		assert.False(r.Available, info)
		code, _ = env.do("POST", resourcePath("dev-2", "release"), "", &ReleaseInput{}, nil)
		assert.Equal(http.StatusOK, code)
	}
}

func TestIsRequestCircular(t *testing.T) {
	assert := require.New(t)

	assert.True(isRequestCircular(`{"id":"http://ci/"}`, "http://ci/"))
	assert.False(isRequestCircular(`{"id":"http://ci/"}`, ""))
	assert.False(isRequestCircular("", "http://ci/"))
	assert.False(isRequestCircular(`{"id":""}`, "http://ci/"))
	assert.False(isRequestCircular(`{`, "http://ci/"))
}

func testPending(id string) *workload.Pending {
	return &workload.Pending{
		ID: id,
		Definition: &workload.Definition{
			Name: "android-tests",
			URL:  TestJobURL,
			Criteria: &scheduler.SelectionCriteria{
				Enabled:    true,
				Selections: []*scheduler.StringResourceSelection{{Name: "model", Value: "galaxy"}},
			},
		},
	}
}

func TestDispatchAndRunLifecycle(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	pending := testPending("pending-1")
	result := &DispatchResult{}
	code, body := env.do("POST", "/v1/dispatch?action=canTake", "", &DispatchInput{NodeName: TestNode, Pending: pending}, result)
	assert.Equal(http.StatusOK, code, body)
	assert.True(result.Admitted)

	result = &DispatchResult{}
	env.do("POST", "/v1/dispatch?action=canTake", "", &DispatchInput{NodeName: TestNode, Pending: pending}, result)
	assert.False(result.Admitted)
	assert.Equal(string(dispatcher.VetoReasonAlreadyReserved), result.Reason)

	carrier := &Carrier{}
	code, _ = env.do("GET", "/v1/carriers/pending-1", "", nil, carrier)
	assert.Equal(http.StatusOK, code)
	assert.Equal("dev-2", carrier.ResourceID)

	run := &Run{}
	code, body = env.do("POST", "/v1/runs/run-1?action=prepare", "", &RunInput{
		PendingID:  pending.ID,
		NodeName:   TestNode,
		Definition: pending.Definition,
	}, run)
	assert.Equal(http.StatusOK, code, body)
	assert.Equal(workload.RunStateRunning, run.State)
	assert.NotNil(run.LockedResource)
	assert.Equal("dev-2", run.LockedResource.Id)
	assert.Equal(TestJobURL, run.LockedResource.Locked.Holder)

	r := &ExternalResource{}
	env.do("GET", resourcePath("dev-2", ""), "", nil, r)
	assert.NotNil(r.Locked)

	code, _ = env.do("GET", "/v1/carriers/pending-1", "", nil, nil)
	assert.Equal(http.StatusNotFound, code)

	run = &Run{}
	code, _ = env.do("POST", "/v1/runs/run-1?action=complete", "", nil, run)
	assert.Equal(http.StatusOK, code)
	assert.Equal(workload.RunStateCompleted, run.State)

	r = &ExternalResource{}
	env.do("GET", resourcePath("dev-2", ""), "", nil, r)
	assert.True(r.Available)

	run = &Run{}
	code, _ = env.do("GET", "/v1/runs/run-1", "", nil, run)
	assert.Equal(http.StatusOK, code)
	assert.Equal(workload.RunStateCompleted, run.State)
	assert.Nil(run.LockedResource.Locked)

	code, _ = env.do("POST", "/v1/runs/run-1?action=prepare", "", &RunInput{}, nil)
	assert.NotEqual(http.StatusOK, code)
}

func TestPrepareWithoutReservationAborts(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)
	env.addNode()

	pending := testPending("pending-2")
	run := &Run{}
	code, body := env.do("POST", "/v1/runs/run-2?action=prepare", "", &RunInput{
		PendingID:  pending.ID,
		NodeName:   TestNode,
		Definition: pending.Definition,
	}, run)
	assert.Equal(http.StatusOK, code, body)
	assert.Equal(workload.RunStateAborted, run.State)
	assert.NotEmpty(run.Messages)

	notifications := struct {
		Data []Notification `json:"data"`
	}{}
	code, _ = env.do("GET", "/v1/notifications", "", nil, &notifications)
	assert.Equal(http.StatusOK, code)
	assert.Len(notifications.Data, 1)
	assert.Equal(notify.MessageTypeError, notifications.Data[0].MessageType)

	code, _ = env.do("GET", "/v1/runs/run-9", "", nil, nil)
	assert.Equal(http.StatusNotFound, code)
}

func TestDispatchUnknownNode(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)

	code, body := env.do("POST", "/v1/dispatch?action=canTake", "", &DispatchInput{NodeName: "agent-9", Pending: testPending("p")}, nil)
	assert.Equal(http.StatusNotFound, code)
	assert.Contains(body, "No node with name agent-9 exists")
}

func TestSettings(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)

	setting := &Setting{}
	code, _ := env.do("GET", "/v1/settings/reserve-time", "", nil, setting)
	assert.Equal(http.StatusOK, code)
	assert.Equal("3", setting.Value)

	code, _ = env.do("PUT", "/v1/settings/reserve-time", "", &Setting{Value: "abc"}, nil)
	assert.NotEqual(http.StatusOK, code)

	setting = &Setting{}
	code, _ = env.do("PUT", "/v1/settings/reserve-time", "", &Setting{Value: " 10 "}, setting)
	assert.Equal(http.StatusOK, code)
	assert.Equal("10", setting.Value)

	settings := struct {
		Data []Setting `json:"data"`
	}{}
	code, _ = env.do("GET", "/v1/settings", "", nil, &settings)
	assert.Equal(http.StatusOK, code)
	assert.Len(settings.Data, len(types.SettingNameList))

	code, _ = env.do("GET", "/v1/settings/unknown", "", nil, nil)
	assert.NotEqual(http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	assert := require.New(t)
	env := newTestEnv(t, nil)

	code, body := env.do("GET", "/metrics", "", nil, nil)
	assert.Equal(http.StatusOK, code)
	assert.False(strings.Contains(body, "go_goroutines"))
}
