package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
)

const (
	MethodReserve = "ResourceMonitor.Resources.Reserve"
	MethodLock    = "ResourceMonitor.Resources.Lock"
	MethodRelease = "ResourceMonitor.Resources.Release"

	jsonRPCVersion = "2.0"

	callAttempts = 3
	callDelay    = 200 * time.Millisecond

	nodeCallRate  = rate.Limit(10)
	nodeCallBurst = 5
)

type ClientInfo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type rpcParams struct {
	Resource   string     `json:"resource"`
	Timeout    *int       `json:"timeout,omitempty"`
	Key        *string    `json:"key,omitempty"`
	ClientInfo ClientInfo `json:"clientInfo"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// RPCResult is the result object returned by the resource monitor.
type RPCResult struct {
	Status   types.StashStatus `json:"status"`
	Message  string            `json:"message"`
	Code     int               `json:"code"`
	Key      *string           `json:"key"`
	Timezone int               `json:"timezone"`
	Time     int64             `json:"time"`
	ISOTime  string            `json:"isotime"`
}

// ResourceMonitorManager talks JSON-RPC over HTTP to the resource monitor running on
// each node.
type ResourceMonitorManager struct {
	config Config
	client *resty.Client

	requestID uint64

	mutex    sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewResourceMonitorManager(config Config) *ResourceMonitorManager {
	if config.ResourceMonitorPort == 0 {
		config.ResourceMonitorPort = types.DefaultResourceMonitorPort
	}
	if config.ResourceMonitorTimeout == 0 {
		config.ResourceMonitorTimeout = types.DefaultResourceMonitorTimeout
	}
	client := resty.New()
	client.SetTimeout(time.Duration(config.ResourceMonitorTimeout) * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &ResourceMonitorManager{
		config:   config,
		client:   client,
		limiters: map[string]*rate.Limiter{},
	}
}

func (m *ResourceMonitorManager) Name() string {
	return types.ResourceManagerResourceMonitor
}

func (m *ResourceMonitorManager) IsExternalLockingOk() bool {
	return true
}

func (m *ResourceMonitorManager) Reserve(ctx context.Context, node *resource.Node, r *resource.ExternalResource, seconds int, holder string) *types.StashResult {
	params := m.params(r, holder)
	params.Timeout = &seconds
	result, err := m.call(ctx, node, MethodReserve, params)
	if err != nil {
		return m.failed(node, r, OperationReserve, err)
	}
	return convert(result)
}

func (m *ResourceMonitorManager) Lock(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	params := m.params(r, holder)
	params.Key = &key
	result, err := m.call(ctx, node, MethodLock, params)
	if err != nil {
		return m.failed(node, r, OperationLock, err)
	}
	// the monitor does not always echo the key on lock
	if result.Key == nil {
		result.Key = &key
	}
	return convert(result)
}

func (m *ResourceMonitorManager) Release(ctx context.Context, node *resource.Node, r *resource.ExternalResource, key, holder string) *types.StashResult {
	params := m.params(r, holder)
	params.Key = &key
	result, err := m.call(ctx, node, MethodRelease, params)
	if err != nil {
		return m.failed(node, r, OperationRelease, err)
	}
	return convert(result)
}

func (m *ResourceMonitorManager) params(r *resource.ExternalResource, holder string) *rpcParams {
	return &rpcParams{
		Resource: r.GetID(),
		ClientInfo: ClientInfo{
			ID:  m.config.RootURL,
			URL: holder,
		},
	}
}

func (m *ResourceMonitorManager) failed(node *resource.Node, r *resource.ExternalResource, operation string, err error) *types.StashResult {
	kind := types.ErrorKindProtocol
	if callErr, ok := errors.Cause(err).(*callError); ok {
		kind = callErr.kind
	}
	logrus.WithFields(logrus.Fields{
		"node":      node.Name,
		"resource":  r.GetID(),
		"operation": operation,
		"kind":      kind,
	}).WithError(err).Warnf("Cannot %v the resource", operation)
	return types.NewErrorResult(kind, err)
}

type callError struct {
	kind types.ErrorKind
	err  error
}

func (e *callError) Error() string {
	return e.err.Error()
}

func newCallError(kind types.ErrorKind, err error) error {
	return &callError{kind: kind, err: err}
}

func (m *ResourceMonitorManager) url(node *resource.Node) string {
	return fmt.Sprintf("http://%s:%d/", node.GetAddress(), m.config.ResourceMonitorPort)
}

func (m *ResourceMonitorManager) limiter(node *resource.Node) *rate.Limiter {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	l, ok := m.limiters[node.Name]
	if !ok {
		l = rate.NewLimiter(nodeCallRate, nodeCallBurst)
		m.limiters[node.Name] = l
	}
	return l
}

func (m *ResourceMonitorManager) call(ctx context.Context, node *resource.Node, method string, params *rpcParams) (*RPCResult, error) {
	if node == nil || node.GetAddress() == "" {
		return nil, newCallError(types.ErrorKindNetwork, errors.New("node has no address"))
	}
	if err := m.limiter(node).Wait(ctx); err != nil {
		return nil, newCallError(types.ErrorKindNetwork, errors.Wrap(err, "rate limit wait interrupted"))
	}

	request := &rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      atomic.AddUint64(&m.requestID, 1),
		Method:  method,
		Params:  []interface{}{params},
	}
	logrus.Debugf("Calling %v on %v: %+v", method, node.Name, params)

	var resp *resty.Response
	err := retry.Do(func() (err error) {
		resp, err = m.client.R().
			SetContext(ctx).
			SetBody(request).
			Post(m.url(node))
		return err
	},
		retry.Context(ctx),
		retry.RetryIf(retryable(method)),
		retry.Attempts(callAttempts),
		retry.Delay(callDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, newCallError(types.ErrorKindNetwork, errors.Wrapf(err, "failed to call %v", method))
	}
	if resp.IsError() {
		return nil, newCallError(types.ErrorKindProtocol,
			errors.Errorf("%v returned HTTP %v: %v", method, resp.StatusCode(), resp.String()))
	}

	response := &rpcResponse{}
	if err := json.Unmarshal(resp.Body(), response); err != nil {
		return nil, newCallError(types.ErrorKindSerialization, errors.Wrapf(err, "invalid response to %v", method))
	}
	if response.Error != nil {
		return nil, newCallError(types.ErrorKindRejected,
			errors.Errorf("%v failed with code %v: %v", method, response.Error.Code, response.Error.Message))
	}
	if len(response.Result) == 0 || string(response.Result) == "null" {
		return nil, newCallError(types.ErrorKindProtocol, errors.Errorf("%v returned no result", method))
	}
	result := &RPCResult{}
	if err := json.Unmarshal(response.Result, result); err != nil {
		return nil, newCallError(types.ErrorKindSerialization, errors.Wrapf(err, "invalid result of %v", method))
	}
	return result, nil
}

// retryable reports whether a failed call may be sent again. Reserve and Lock are not
// idempotent, they are repeated only when the request never reached the monitor.
func retryable(method string) retry.RetryIfFunc {
	return func(err error) bool {
		if method == MethodRelease {
			return true
		}
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial"
	}
}

func convert(result *RPCResult) *types.StashResult {
	var lease *types.Lease
	if result.Time != 0 || result.ISOTime != "" {
		lease = types.NewLease(result.Time, result.Timezone, result.ISOTime)
	}
	key := ""
	if result.Key != nil {
		key = *result.Key
	}
	converted := &types.StashResult{
		Status:    result.Status,
		ErrorCode: result.Code,
		Message:   result.Message,
		Key:       key,
		Lease:     lease,
	}
	if !converted.IsOK() {
		converted.Kind = types.ErrorKindRejected
	}
	return converted
}
