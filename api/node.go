package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rancher/go-rancher/api"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
)

func (s *Server) NodeList(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	apiContext.Write(toNodeCollection(s.ds.ListNodes(), s.filter.ListResources, apiContext))
	return nil
}

func (s *Server) NodeGet(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	node, ok := s.getNode(rw, req)
	if !ok {
		return nil
	}
	apiContext.Write(toNodeResource(node, s.filter.ListResources(node), apiContext))
	return nil
}

// NodeUpdate creates the node or replaces its definition. Resources kept by the new
// definition keep their state.
func (s *Server) NodeUpdate(rw http.ResponseWriter, req *http.Request) error {
	var input Node
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}

	def := resource.NewNode(mux.Vars(req)["name"], input.Address, input.Metadata...)
	def.Description = input.Description

	node, err := s.ds.CreateOrUpdateNode(def)
	warning := ""
	if err != nil {
		if !types.IsSaveError(err) {
			return errors.Wrapf(err, "failed to update node %v", def.Name)
		}
		logrus.WithError(err).Warnf("Node %v was updated but not saved", def.Name)
		warning = err.Error()
	}

	out := toNodeResource(node, s.filter.ListResources(node), apiContext)
	out.Warning = warning
	apiContext.Write(out)
	return nil
}

func (s *Server) NodeDelete(rw http.ResponseWriter, req *http.Request) error {
	name := mux.Vars(req)["name"]
	if err := s.ds.DeleteNode(name); err != nil {
		if types.IsNotFoundError(err) {
			util.ResponseErrorMsg(rw, http.StatusNotFound, noNodeMessage(name))
			return nil
		}
		return errors.Wrapf(err, "failed to delete node %v", name)
	}
	util.ResponseOK(rw)
	return nil
}

// getNode writes the not found response itself.
func (s *Server) getNode(rw http.ResponseWriter, req *http.Request) (*resource.Node, bool) {
	name := mux.Vars(req)["name"]
	node, err := s.ds.GetNode(name)
	if err != nil {
		util.ResponseErrorMsg(rw, http.StatusNotFound, noNodeMessage(name))
		return nil, false
	}
	return node, true
}

func noNodeMessage(name string) string {
	return fmt.Sprintf("No node with name %v exists", name)
}

func noResourceMessage(id string) string {
	return fmt.Sprintf("No resource with id %v exists on this node", id)
}
