package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rancher/go-rancher/api"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
	"github.com/longhorn/resource-dispatcher/workload"
)

// DispatchCanTake is the admission hook called by the scheduler for every candidate
// node of a pending workload.
func (s *Server) DispatchCanTake(rw http.ResponseWriter, req *http.Request) error {
	var input DispatchInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}
	if input.Pending == nil || input.Pending.ID == "" {
		return errors.New("pending workload with id is required")
	}

	node, err := s.ds.GetNode(input.NodeName)
	if err != nil {
		util.ResponseErrorMsg(rw, http.StatusNotFound, noNodeMessage(input.NodeName))
		return nil
	}
	veto := s.dispatcher.CanTake(req.Context(), node, input.Pending)
	apiContext.Write(toDispatchResult(node.Name, veto))
	return nil
}

func (s *Server) RunList(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	runs, err := s.ds.ListRuns()
	if err != nil {
		return errors.Wrap(err, "failed to list runs")
	}
	apiContext.Write(toRunCollection(runs, apiContext))
	return nil
}

func (s *Server) RunGet(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	id := mux.Vars(req)["id"]
	run, err := s.ds.GetRun(id)
	if err != nil {
		if types.IsNotFoundError(err) {
			util.ResponseErrorMsg(rw, http.StatusNotFound, err.Error())
			return nil
		}
		return errors.Wrapf(err, "failed to get run %v", id)
	}
	apiContext.Write(toRunResource(run, apiContext))
	return nil
}

// RunPrepare records the run and converts the reservation made for its pending workload
// into a lock. The run is aborted when that fails.
func (s *Server) RunPrepare(rw http.ResponseWriter, req *http.Request) error {
	var input RunInput
	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}
	id := mux.Vars(req)["id"]
	if !util.ValidateName(id) {
		return errors.Errorf("invalid run id %q", id)
	}

	run, err := s.ds.GetRun(id)
	if err != nil {
		if !types.IsNotFoundError(err) {
			return errors.Wrapf(err, "failed to get run %v", id)
		}
		run = &workload.Run{
			ID:         id,
			PendingID:  input.PendingID,
			Definition: input.Definition,
			NodeName:   input.NodeName,
			State:      workload.RunStatePreparing,
			Created:    util.Now(),
		}
		if err := s.ds.CreateRun(run); err != nil {
			return errors.Wrapf(err, "failed to create run %v", id)
		}
	}
	if run.State != workload.RunStatePreparing {
		return errors.Errorf("run %v is %v and cannot be prepared", id, run.State)
	}

	if s.dispatcher.OnPrepare(req.Context(), run) {
		run.State = workload.RunStateRunning
	} else {
		run.State = workload.RunStateAborted
	}
	s.saveRun(run)
	apiContext.Write(toRunResource(run, apiContext))
	return nil
}

// RunComplete releases the resource locked for the run. It never fails the run.
func (s *Server) RunComplete(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	id := mux.Vars(req)["id"]
	run, err := s.ds.GetRun(id)
	if err != nil {
		if types.IsNotFoundError(err) {
			util.ResponseErrorMsg(rw, http.StatusNotFound, err.Error())
			return nil
		}
		return errors.Wrapf(err, "failed to get run %v", id)
	}
	if run.State == workload.RunStateCompleted {
		apiContext.Write(toRunResource(run, apiContext))
		return nil
	}

	s.dispatcher.OnComplete(req.Context(), run)
	run.State = workload.RunStateCompleted
	s.saveRun(run)
	apiContext.Write(toRunResource(run, apiContext))
	return nil
}

func (s *Server) saveRun(run *workload.Run) {
	if err := s.ds.UpdateRun(run); err != nil {
		logrus.WithError(err).Warnf("Failed to save run %v", run.ID)
	}
}

func (s *Server) CarrierList(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	apiContext.Write(toCarrierCollection(s.dispatcher.Carriers().Snapshot()))
	return nil
}

func (s *Server) CarrierGet(rw http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	id := mux.Vars(req)["id"]
	entry := s.dispatcher.Carriers().Peek(id)
	if entry == nil {
		util.ResponseErrorMsg(rw, http.StatusNotFound, "Nothing is reserved for pending workload "+id)
		return nil
	}
	apiContext.Write(toCarrierResource(id, entry))
	return nil
}
