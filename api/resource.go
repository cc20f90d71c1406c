package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rancher/go-rancher/api"
	"github.com/rancher/go-rancher/client"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
)

const (
	ActionStatusSkipped = "skipped"
)

func (s *Server) ResourceList(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	node, ok := s.getNode(rw, req)
	if !ok {
		return nil
	}
	apiContext.Write(toExternalResourceCollection(node.Name, s.filter.ListResources(node), apiContext))
	return nil
}

func (s *Server) ResourceGet(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}
	apiContext.Write(toExternalResource(node.Name, r, apiContext))
	return nil
}

func (s *Server) ResourceEnable(rw http.ResponseWriter, req *http.Request) error {
	return s.setEnabled(rw, req, true)
}

func (s *Server) ResourceDisable(rw http.ResponseWriter, req *http.Request) error {
	return s.setEnabled(rw, req, false)
}

func (s *Server) setEnabled(rw http.ResponseWriter, req *http.Request, enabled bool) error {
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}
	return s.respondTransition(rw, req, node, r, r.SetEnabled(s.operator(req), enabled))
}

// ResourceReserve reserves on behalf of a third party. The resource manager is not
// involved.
func (s *Server) ResourceReserve(rw http.ResponseWriter, req *http.Request) error {
	var input ReserveInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}
	if input.ReservedBy == "" {
		return errors.New("reservedBy is required")
	}
	if s.skipCircular(rw, req, input.ClientInfo) {
		return nil
	}
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}

	var lease *types.Lease
	if input.Seconds > 0 {
		lease = types.NewLeaseAfter(input.Seconds)
	}
	info := types.NewStashInfo(types.StashTypeExternal, input.ReservedBy, lease, input.Key)
	return s.respondTransition(rw, req, node, r, r.Reserve(s.operator(req), info))
}

func (s *Server) ResourceLock(rw http.ResponseWriter, req *http.Request) error {
	var input LockInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}
	if input.LockedBy == "" {
		return errors.New("lockedBy is required")
	}
	if s.skipCircular(rw, req, input.ClientInfo) {
		return nil
	}
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}
	if err := s.authorizeKey(r, input.Key); err != nil {
		return s.respondTransition(rw, req, node, r, err)
	}

	info := types.NewStashInfo(types.StashTypeExternal, input.LockedBy, nil, input.Key)
	return s.respondTransition(rw, req, node, r, r.Lock(s.operator(req), info))
}

func (s *Server) ResourceRelease(rw http.ResponseWriter, req *http.Request) error {
	var input ReleaseInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}
	if s.skipCircular(rw, req, input.ClientInfo) {
		return nil
	}
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}
	if err := s.authorizeKey(r, input.Key); err != nil {
		return s.respondTransition(rw, req, node, r, err)
	}
	return s.respondTransition(rw, req, node, r, r.Release(s.operator(req)))
}

// ResourceExpire drops the reservation the way the lease timer does. A lock is kept.
func (s *Server) ResourceExpire(rw http.ResponseWriter, req *http.Request) error {
	node, r, ok := s.getResource(rw, req)
	if !ok {
		return nil
	}
	principal := s.principal(req)
	if !s.authorizer.HasPermission(principal, resource.PermissionReserveLock) {
		err := errors.Wrapf(types.ErrPermissionDenied, "%v lacks %v", principal, resource.PermissionReserveLock)
		return s.respondTransition(rw, req, node, r, err)
	}
	return s.respondTransition(rw, req, node, r, r.ExpireReservation())
}

func (s *Server) authorizeKey(r *resource.ExternalResource, key string) error {
	releaseKey, err := s.ds.GetSettingValue(types.SettingNameReleaseKey)
	if err != nil {
		return err
	}
	return r.AuthorizeKey(key, releaseKey)
}

func (s *Server) skipCircular(rw http.ResponseWriter, req *http.Request, info string) bool {
	rootURL, err := s.ds.GetSettingValue(types.SettingNameRootURL)
	if err != nil {
		logrus.WithError(err).Warnf("Failed to get setting %v", types.SettingNameRootURL)
		return false
	}
	if !isRequestCircular(info, rootURL) {
		return false
	}
	logrus.Debugf("Skipping %v, the request originates from this dispatcher", req.URL)
	api.GetApiContext(req).Write(&ActionResult{
		Resource: client.Resource{Type: "actionResult"},
		Status:   ActionStatusSkipped,
		Message:  "request originates from this dispatcher",
	})
	return true
}

// respondTransition maps the outcome of a state transition to the response. A change
// that was applied but not saved is still a success.
func (s *Server) respondTransition(rw http.ResponseWriter, req *http.Request, node *resource.Node, r *resource.ExternalResource, err error) error {
	apiContext := api.GetApiContext(req)
	warning := ""
	if err != nil {
		cause := errors.Cause(err)
		switch {
		case types.IsSaveError(err):
			logrus.WithError(err).Warnf("Probably failed to save node %v", node.Name)
			warning = "Failed to save the changes, but the resource state has changed"
		case cause == types.ErrPermissionDenied || cause == types.ErrKeyMismatch:
			util.ResponseError(rw, http.StatusForbidden, err)
			return nil
		case cause == types.ErrIllegalState:
			util.ResponseError(rw, http.StatusConflict, err)
			return nil
		default:
			return err
		}
	}
	out := toExternalResource(node.Name, r, apiContext)
	out.Warning = warning
	apiContext.Write(out)
	return nil
}

// getResource writes the not found response itself.
func (s *Server) getResource(rw http.ResponseWriter, req *http.Request) (*resource.Node, *resource.ExternalResource, bool) {
	node, ok := s.getNode(rw, req)
	if !ok {
		return nil, nil, false
	}
	id := mux.Vars(req)["id"]
	r := s.filter.FindByID(node, id)
	if r == nil {
		util.ResponseErrorMsg(rw, http.StatusNotFound, noResourceMessage(id))
		return nil, nil, false
	}
	return node, r, true
}
