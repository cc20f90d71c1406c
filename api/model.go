package api

import (
	"sort"
	"strconv"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/dispatcher"
	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/workload"
)

type Node struct {
	client.Resource

	Name        string            `json:"name"`
	Address     string            `json:"address"`
	Description string            `json:"description"`
	Metadata    []*resource.Value `json:"metadata"`

	Resources []ExternalResource `json:"resources" copier:"-"`
	Warning   string             `json:"warning,omitempty" copier:"-"`
}

type ExternalResource struct {
	client.Resource

	NodeName    string            `json:"nodeName" copier:"-"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Enabled     bool              `json:"enabled" copier:"-"`
	Available   bool              `json:"available" copier:"-"`
	Reserved    *types.StashInfo  `json:"reserved"`
	Locked      *types.StashInfo  `json:"locked"`
	Children    []*resource.Value `json:"children"`

	Warning string `json:"warning,omitempty" copier:"-"`
}

type Setting struct {
	client.Resource
	Name       string                  `json:"name"`
	Value      string                  `json:"value"`
	Definition types.SettingDefinition `json:"definition"`
}

type Notification struct {
	client.Resource

	Time        string               `json:"time"`
	MessageType notify.MessageType   `json:"messageType"`
	ResourceID  string               `json:"resourceId"`
	Operation   notify.OperationType `json:"operation"`
	NodeName    string               `json:"nodeName"`
	Message     string               `json:"message"`
}

type Run struct {
	client.Resource

	PendingID  string               `json:"pendingID"`
	Definition *workload.Definition `json:"definition"`
	NodeName   string               `json:"nodeName"`
	State      workload.RunState    `json:"state"`
	Created    string               `json:"created"`
	Messages   []string             `json:"messages"`

	LockedResource *ExternalResource `json:"lockedResource" copier:"-"`
}

type Carrier struct {
	client.Resource
	dispatcher.CarrierEntry
}

type DispatchResult struct {
	client.Resource

	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ActionResult is returned by front door actions that were acknowledged but not applied.
type ActionResult struct {
	client.Resource
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ReserveInput struct {
	ReservedBy string `json:"reservedBy"`
	Key        string `json:"key"`
	Seconds    int    `json:"seconds"`
	ClientInfo string `json:"clientInfo"`
}

type LockInput struct {
	LockedBy   string `json:"lockedBy"`
	Key        string `json:"key"`
	ClientInfo string `json:"clientInfo"`
}

type ReleaseInput struct {
	Key        string `json:"key"`
	ClientInfo string `json:"clientInfo"`
}

type DispatchInput struct {
	NodeName string            `json:"nodeName"`
	Pending  *workload.Pending `json:"pending"`
}

type RunInput struct {
	PendingID  string               `json:"pendingID"`
	NodeName   string               `json:"nodeName"`
	Definition *workload.Definition `json:"definition"`
}

func NewSchema() *client.Schemas {
	schemas := &client.Schemas{}

	schemas.AddType("apiVersion", client.Resource{})
	schemas.AddType("schema", client.Schema{})
	schemas.AddType("error", client.ServerApiError{})
	schemas.AddType("reserveInput", ReserveInput{})
	schemas.AddType("lockInput", LockInput{})
	schemas.AddType("releaseInput", ReleaseInput{})
	schemas.AddType("dispatchInput", DispatchInput{})
	schemas.AddType("dispatchResult", DispatchResult{})
	schemas.AddType("runInput", RunInput{})
	schemas.AddType("actionResult", ActionResult{})
	schemas.AddType("notification", Notification{})
	schemas.AddType("lease", types.Lease{})
	schemas.AddType("stashInfo", types.StashInfo{})
	schemas.AddType("definition", workload.Definition{})
	carrierSchema(schemas.AddType("carrier", Carrier{}))

	nodeSchema(schemas.AddType("node", Node{}))
	externalResourceSchema(schemas.AddType("externalResource", ExternalResource{}))
	settingSchema(schemas.AddType("setting", Setting{}))
	runSchema(schemas.AddType("run", Run{}))

	return schemas
}

func nodeSchema(node *client.Schema) {
	node.CollectionMethods = []string{"GET"}
	node.ResourceMethods = []string{"GET", "PUT", "DELETE"}

	address := node.ResourceFields["address"]
	address.Required = true
	address.Update = true
	node.ResourceFields["address"] = address

	metadata := node.ResourceFields["metadata"]
	metadata.Update = true
	node.ResourceFields["metadata"] = metadata
}

// pointer fields are left out of the generated schema, and the writer drops fields the
// schema does not know
func nullable(schema *client.Schema, name, fieldType string) {
	schema.ResourceFields[name] = client.Field{
		Type:     fieldType,
		Nullable: true,
	}
}

func carrierSchema(carrier *client.Schema) {
	nullable(carrier, "stash", "stashInfo")
}

func externalResourceSchema(r *client.Schema) {
	r.CollectionMethods = []string{"GET"}
	r.ResourceMethods = []string{"GET"}
	nullable(r, "reserved", "stashInfo")
	nullable(r, "locked", "stashInfo")
	r.ResourceActions = map[string]client.Action{
		"enable":  {Output: "externalResource"},
		"disable": {Output: "externalResource"},
		"reserve": {
			Input:  "reserveInput",
			Output: "externalResource",
		},
		"lock": {
			Input:  "lockInput",
			Output: "externalResource",
		},
		"release": {
			Input:  "releaseInput",
			Output: "externalResource",
		},
		"expire": {Output: "externalResource"},
	}
}

func settingSchema(setting *client.Schema) {
	setting.CollectionMethods = []string{"GET"}
	setting.ResourceMethods = []string{"GET", "PUT"}

	settingName := setting.ResourceFields["name"]
	settingName.Required = true
	settingName.Unique = true
	setting.ResourceFields["name"] = settingName

	settingValue := setting.ResourceFields["value"]
	settingValue.Required = true
	settingValue.Update = true
	setting.ResourceFields["value"] = settingValue
}

func runSchema(run *client.Schema) {
	run.CollectionMethods = []string{"GET"}
	run.ResourceMethods = []string{"GET"}
	nullable(run, "definition", "definition")
	nullable(run, "lockedResource", "externalResource")
	run.ResourceActions = map[string]client.Action{
		"prepare": {
			Input:  "runInput",
			Output: "run",
		},
		"complete": {Output: "run"},
	}
}

var resourceActions = []string{"enable", "disable", "reserve", "lock", "release", "expire"}

func toExternalResource(nodeName string, r *resource.ExternalResource, apiContext *api.ApiContext) *ExternalResource {
	snapshot := r.Clone()
	out := &ExternalResource{
		Resource: client.Resource{
			Id:      snapshot.ID,
			Type:    "externalResource",
			Actions: map[string]string{},
		},
		NodeName:  nodeName,
		Enabled:   snapshot.IsEnabled(),
		Available: snapshot.IsAvailable(),
	}
	if err := copier.Copy(out, snapshot); err != nil {
		logrus.WithError(err).Warnf("Failed to copy external resource %v", snapshot.ID)
	}
	if apiContext != nil {
		self := apiContext.UrlBuilder.Collection("node") + "/" + nodeName + "/resources/" + out.Id
		out.Links = map[string]string{"self": self}
		for _, action := range resourceActions {
			out.Actions[action] = self + "?action=" + action
		}
	}
	return out
}

func toExternalResourceCollection(nodeName string, resources []*resource.ExternalResource, apiContext *api.ApiContext) *client.GenericCollection {
	data := []interface{}{}
	for _, r := range resources {
		data = append(data, toExternalResource(nodeName, r, apiContext))
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "externalResource"}}
}

func toNodeResource(node *resource.Node, resources []*resource.ExternalResource, apiContext *api.ApiContext) *Node {
	out := &Node{
		Resource: client.Resource{
			Id:   node.Name,
			Type: "node",
		},
		Resources: []ExternalResource{},
	}
	if err := copier.Copy(out, node.Definition()); err != nil {
		logrus.WithError(err).Warnf("Failed to copy node %v", node.Name)
	}
	for _, r := range resources {
		out.Resources = append(out.Resources, *toExternalResource(node.Name, r, apiContext))
	}
	return out
}

func toNodeCollection(nodes []*resource.Node, resourcesOf func(*resource.Node) []*resource.ExternalResource, apiContext *api.ApiContext) *client.GenericCollection {
	data := []interface{}{}
	for _, node := range nodes {
		data = append(data, toNodeResource(node, resourcesOf(node), apiContext))
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "node"}}
}

func toSettingResource(setting *types.Setting) *Setting {
	return &Setting{
		Resource: client.Resource{
			Id:   string(setting.Name),
			Type: "setting",
		},
		Name:       string(setting.Name),
		Value:      setting.Value,
		Definition: types.SettingDefinitions[setting.Name],
	}
}

func toSettingCollection(settings map[types.SettingName]*types.Setting) *client.GenericCollection {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, string(name))
	}
	sort.Strings(names)

	data := []interface{}{}
	for _, name := range names {
		data = append(data, toSettingResource(settings[types.SettingName(name)]))
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "setting"}}
}

func toRunResource(run *workload.Run, apiContext *api.ApiContext) *Run {
	out := &Run{
		Resource: client.Resource{
			Id:      run.ID,
			Type:    "run",
			Actions: map[string]string{},
		},
		Messages: []string{},
	}
	if err := copier.Copy(out, run); err != nil {
		logrus.WithError(err).Warnf("Failed to copy run %v", run.ID)
	}
	if out.Messages == nil {
		out.Messages = []string{}
	}
	if locked := run.LockedResource(); locked != nil {
		out.LockedResource = toExternalResource(run.NodeName, locked, nil)
	}
	if apiContext != nil {
		out.Actions["prepare"] = apiContext.UrlBuilder.ActionLink(out.Resource, "prepare")
		out.Actions["complete"] = apiContext.UrlBuilder.ActionLink(out.Resource, "complete")
	}
	return out
}

func toRunCollection(runs []*workload.Run, apiContext *api.ApiContext) *client.GenericCollection {
	data := []interface{}{}
	for _, run := range runs {
		data = append(data, toRunResource(run, apiContext))
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "run"}}
}

func toNotificationCollection(notifications []notify.Notification) *client.GenericCollection {
	data := []interface{}{}
	for i, n := range notifications {
		data = append(data, &Notification{
			Resource: client.Resource{
				Id:   strconv.Itoa(i),
				Type: "notification",
			},
			Time:        n.Time.Format(time.RFC3339),
			MessageType: n.Type,
			ResourceID:  n.ResourceID,
			Operation:   n.Operation,
			NodeName:    n.NodeName,
			Message:     n.Message,
		})
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "notification"}}
}

func toCarrierResource(pendingID string, entry *dispatcher.CarrierEntry) *Carrier {
	return &Carrier{
		Resource: client.Resource{
			Id:   pendingID,
			Type: "carrier",
		},
		CarrierEntry: *entry,
	}
}

func toCarrierCollection(entries map[string]*dispatcher.CarrierEntry) *client.GenericCollection {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := []interface{}{}
	for _, id := range ids {
		data = append(data, toCarrierResource(id, entries[id]))
	}
	return &client.GenericCollection{Data: data, Collection: client.Collection{ResourceType: "carrier"}}
}

func toDispatchResult(nodeName string, veto *dispatcher.Veto) *DispatchResult {
	out := &DispatchResult{
		Resource: client.Resource{
			Id:   nodeName,
			Type: "dispatchResult",
		},
		Admitted: veto == nil,
	}
	if veto != nil {
		out.Reason = string(veto.Reason)
		out.Message = veto.Message
	}
	return out
}
