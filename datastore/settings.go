package datastore

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/types"
)

// SettingListener is called after a setting changed.
type SettingListener func(setting *types.Setting)

func (s *DataStore) OnSettingChange(listener SettingListener) {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *DataStore) notifySettingChange(setting *types.Setting) {
	s.listenerMutex.RLock()
	listeners := append([]SettingListener{}, s.listeners...)
	s.listenerMutex.RUnlock()

	for _, l := range listeners {
		l(setting)
	}
}

// GetSetting will automatically fill the non-existing setting if it's a valid
// setting name.
// The function will not return nil for *types.Setting when error is nil
func (s *DataStore) GetSetting(name types.SettingName) (*types.Setting, error) {
	definition, ok := types.SettingDefinitions[name]
	if !ok {
		return nil, fmt.Errorf("setting %v is not supported", name)
	}
	setting, err := s.kv.GetSetting(name)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		setting = &types.Setting{
			Name:  name,
			Value: definition.Default,
		}
	}
	return setting, nil
}

func (s *DataStore) GetSettingValue(name types.SettingName) (string, error) {
	setting, err := s.GetSetting(name)
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *DataStore) GetSettingAsInt(name types.SettingName) (int, error) {
	definition, ok := types.SettingDefinitions[name]
	if !ok {
		return -1, fmt.Errorf("setting %v is not supported", name)
	}
	setting, err := s.GetSetting(name)
	if err != nil {
		return -1, err
	}
	if definition.Type != types.SettingTypeInt {
		return -1, fmt.Errorf("the %v setting value couldn't change to integer, value is %v", name, setting.Value)
	}
	result, err := strconv.Atoi(setting.Value)
	if err != nil {
		return -1, err
	}
	return result, nil
}

func (s *DataStore) ListSettings() (map[types.SettingName]*types.Setting, error) {
	settings := make(map[types.SettingName]*types.Setting, len(types.SettingNameList))
	for _, name := range types.SettingNameList {
		setting, err := s.GetSetting(name)
		if err != nil {
			return nil, err
		}
		settings[name] = setting
	}
	return settings, nil
}

// UpdateSetting validates and stores the value, then tells the listeners.
func (s *DataStore) UpdateSetting(name types.SettingName, value string) (setting *types.Setting, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrapf(err, "fail to set setting %v", name)
		}
	}()

	if err := types.ValidateSetting(name, value); err != nil {
		return nil, err
	}
	if types.SettingDefinitions[name].ReadOnly {
		return nil, errors.Errorf("setting %v is read only", name)
	}

	setting, err = s.kv.GetSetting(name)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		setting = &types.Setting{Name: name, Value: value}
		if err := s.kv.CreateSetting(setting); err != nil {
			return nil, err
		}
	} else {
		if setting.Value == value {
			return setting, nil
		}
		setting.Value = value
		if err := s.kv.UpdateSetting(setting); err != nil {
			return nil, err
		}
	}
	logrus.Infof("Setting %v changed to %q", name, value)
	s.notifySettingChange(setting)
	return setting, nil
}
