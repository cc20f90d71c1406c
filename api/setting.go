package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rancher/go-rancher/api"

	"github.com/longhorn/resource-dispatcher/types"
)

func (s *Server) SettingList(w http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)

	settings, err := s.ds.ListSettings()
	if err != nil {
		return errors.Wrap(err, "failed to list settings")
	}
	apiContext.Write(toSettingCollection(settings))
	return nil
}

func (s *Server) SettingGet(w http.ResponseWriter, req *http.Request) error {
	name := mux.Vars(req)["name"]

	apiContext := api.GetApiContext(req)
	setting, err := s.ds.GetSetting(types.SettingName(name))
	if err != nil {
		return errors.Wrapf(err, "failed to get setting %v", name)
	}
	apiContext.Write(toSettingResource(setting))
	return nil
}

func (s *Server) SettingSet(w http.ResponseWriter, req *http.Request) error {
	var input Setting

	apiContext := api.GetApiContext(req)
	if err := apiContext.Read(&input); err != nil {
		return err
	}

	name := mux.Vars(req)["name"]
	setting, err := s.ds.UpdateSetting(types.SettingName(name), strings.TrimSpace(input.Value))
	if err != nil {
		return err
	}
	apiContext.Write(toSettingResource(setting))
	return nil
}

func (s *Server) NotificationList(w http.ResponseWriter, req *http.Request) error {
	apiContext := api.GetApiContext(req)
	apiContext.Write(toNotificationCollection(s.notifier.Recent()))
	return nil
}
