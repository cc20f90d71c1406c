package datastore

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/longhorn/resource-dispatcher/resource"
	"github.com/longhorn/resource-dispatcher/types"
)

// Config is the optional startup file. Settings it names override the stored values,
// and the nodes it lists are created or redefined.
type Config struct {
	Settings    map[types.SettingName]string     `yaml:"settings"`
	Permissions map[string][]resource.Permission `yaml:"permissions"`
	Nodes       []*resource.Node                 `yaml:"nodes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %v", path)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	for _, node := range config.Nodes {
		if err := validateNode(node); err != nil {
			return nil, errors.Wrap(err, "invalid config")
		}
	}
	return config, nil
}

// Authorizer returns the permissions of the config. Without any permission configured,
// every caller may do everything.
func (c *Config) Authorizer() resource.Authorizer {
	if c == nil || len(c.Permissions) == 0 {
		return resource.AllowAll
	}
	return resource.StaticAuthorizer(c.Permissions)
}

// ApplyConfig stores the settings and nodes of the config. It goes on after a failure
// and returns all of them.
func (s *DataStore) ApplyConfig(config *Config) error {
	if config == nil {
		return nil
	}
	var result error
	for name, value := range config.Settings {
		if _, err := s.UpdateSetting(name, value); err != nil {
			result = multierr.Append(result, err)
		}
	}
	for _, node := range config.Nodes {
		if _, err := s.CreateOrUpdateNode(node); err != nil && !types.IsSaveError(err) {
			result = multierr.Append(result, errors.Wrapf(err, "unable to apply node %v", node.Name))
		}
	}
	logrus.Infof("Applied config with %v settings and %v nodes", len(config.Settings), len(config.Nodes))
	return result
}
