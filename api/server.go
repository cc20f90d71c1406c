package api

import (
	"net/http"

	"github.com/longhorn/resource-dispatcher/datastore"
	"github.com/longhorn/resource-dispatcher/dispatcher"
	"github.com/longhorn/resource-dispatcher/manager"
	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/scheduler"
	"github.com/longhorn/resource-dispatcher/types"
)

type Server struct {
	ds         *datastore.DataStore
	dispatcher *dispatcher.Dispatcher
	managers   *manager.Switch
	notifier   notify.Notifier
	authorizer resource.Authorizer
	filter     *scheduler.AvailabilityFilter
}

func NewServer(ds *datastore.DataStore, d *dispatcher.Dispatcher, managers *manager.Switch,
	notifier notify.Notifier, authorizer resource.Authorizer) *Server {
	if authorizer == nil {
		authorizer = resource.AllowAll
	}
	return &Server{
		ds:         ds,
		dispatcher: d,
		managers:   managers,
		notifier:   notifier,
		authorizer: authorizer,
		filter:     scheduler.NewAvailabilityFilter(),
	}
}

func (s *Server) principal(req *http.Request) string {
	return req.Header.Get(types.HeaderPrincipal)
}

// operator is the caller of a front door transition.
func (s *Server) operator(req *http.Request) *resource.Operator {
	return &resource.Operator{
		Principal:  s.principal(req),
		Authorizer: s.authorizer,
		Capability: s.managers,
	}
}
