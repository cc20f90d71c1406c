package types

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
)

type Setting struct {
	Name    SettingName `json:"name"`
	Value   string      `json:"value"`
	KVIndex uint64      `json:"-"`
}

type SettingType string

const (
	SettingTypeString = SettingType("string")
	SettingTypeInt    = SettingType("int")
	SettingTypeBool   = SettingType("bool")
)

type SettingName string

const (
	SettingNameReserveTime            = SettingName("reserve-time")
	SettingNameResourceManager        = SettingName("resource-manager")
	SettingNameAdminNotifierFile      = SettingName("admin-notifier-file")
	SettingNameReleaseKey             = SettingName("release-key")
	SettingNameRootURL                = SettingName("root-url")
	SettingNameResourceMonitorPort    = SettingName("resource-monitor-port")
	SettingNameResourceMonitorTimeout = SettingName("resource-monitor-timeout")
	SettingNameCarrierSweepSchedule   = SettingName("carrier-sweep-schedule")
)

var (
	SettingNameList = []SettingName{
		SettingNameReserveTime,
		SettingNameResourceManager,
		SettingNameAdminNotifierFile,
		SettingNameReleaseKey,
		SettingNameRootURL,
		SettingNameResourceMonitorPort,
		SettingNameResourceMonitorTimeout,
		SettingNameCarrierSweepSchedule,
	}
)

type SettingCategory string

const (
	SettingCategoryGeneral  = SettingCategory("general")
	SettingCategoryBackend  = SettingCategory("backend")
	SettingCategoryDispatch = SettingCategory("dispatch")
)

type SettingDefinition struct {
	DisplayName string          `json:"displayName"`
	Description string          `json:"description"`
	Category    SettingCategory `json:"category"`
	Type        SettingType     `json:"type"`
	Required    bool            `json:"required"`
	ReadOnly    bool            `json:"readOnly"`
	Default     string          `json:"default"`
	Choices     []string        `json:"choices,omitempty"`
}

const (
	ResourceManagerNone            = "none"
	ResourceManagerNoop            = "noop"
	ResourceManagerResourceMonitor = "resource-monitor"

	DefaultReserveTime            = 3
	DefaultResourceMonitorPort    = 8080
	DefaultResourceMonitorTimeout = 10
	DefaultAdminNotifierFile      = "external-resource-admin-notifications.log"
)

var (
	SettingDefinitions = map[SettingName]SettingDefinition{
		SettingNameReserveTime:            SettingDefinitionReserveTime,
		SettingNameResourceManager:        SettingDefinitionResourceManager,
		SettingNameAdminNotifierFile:      SettingDefinitionAdminNotifierFile,
		SettingNameReleaseKey:             SettingDefinitionReleaseKey,
		SettingNameRootURL:                SettingDefinitionRootURL,
		SettingNameResourceMonitorPort:    SettingDefinitionResourceMonitorPort,
		SettingNameResourceMonitorTimeout: SettingDefinitionResourceMonitorTimeout,
		SettingNameCarrierSweepSchedule:   SettingDefinitionCarrierSweepSchedule,
	}

	SettingDefinitionReserveTime = SettingDefinition{
		DisplayName: "Reserve Time",
		Description: "In seconds. How long a reservation made during dispatch is held before it expires if the workload does not start.",
		Category:    SettingCategoryDispatch,
		Type:        SettingTypeInt,
		Required:    true,
		ReadOnly:    false,
		Default:     strconv.Itoa(DefaultReserveTime),
	}

	SettingDefinitionResourceManager = SettingDefinition{
		DisplayName: "Resource Manager",
		Description: "The backend used to reserve, lock and release external resources. Unknown values fall back to noop.",
		Category:    SettingCategoryBackend,
		Type:        SettingTypeString,
		Required:    true,
		ReadOnly:    false,
		Default:     ResourceManagerNoop,
		Choices:     []string{ResourceManagerNone, ResourceManagerNoop, ResourceManagerResourceMonitor},
	}

	SettingDefinitionAdminNotifierFile = SettingDefinition{
		DisplayName: "Admin Notifier File",
		Description: "Path of the file administrator notifications are appended to. Relative paths are resolved against the data directory.",
		Category:    SettingCategoryGeneral,
		Type:        SettingTypeString,
		Required:    false,
		ReadOnly:    false,
		Default:     DefaultAdminNotifierFile,
	}

	SettingDefinitionReleaseKey = SettingDefinition{
		DisplayName: "Release Key",
		Description: "Master key accepted in place of the stash key when locking or releasing a resource by hand.",
		Category:    SettingCategoryGeneral,
		Type:        SettingTypeString,
		Required:    false,
		ReadOnly:    false,
	}

	SettingDefinitionRootURL = SettingDefinition{
		DisplayName: "Root URL",
		Description: "The identity of this dispatcher when talking to a resource monitor. Requests carrying this identity are not processed again.",
		Category:    SettingCategoryGeneral,
		Type:        SettingTypeString,
		Required:    false,
		ReadOnly:    false,
	}

	SettingDefinitionResourceMonitorPort = SettingDefinition{
		DisplayName: "Resource Monitor Port",
		Description: "The port the resource monitor listens on at each node address.",
		Category:    SettingCategoryBackend,
		Type:        SettingTypeInt,
		Required:    true,
		ReadOnly:    false,
		Default:     strconv.Itoa(DefaultResourceMonitorPort),
	}

	SettingDefinitionResourceMonitorTimeout = SettingDefinition{
		DisplayName: "Resource Monitor Timeout",
		Description: "In seconds. Timeout of a single call to the resource monitor.",
		Category:    SettingCategoryBackend,
		Type:        SettingTypeInt,
		Required:    true,
		ReadOnly:    false,
		Default:     strconv.Itoa(DefaultResourceMonitorTimeout),
	}

	SettingDefinitionCarrierSweepSchedule = SettingDefinition{
		DisplayName: "Carrier Sweep Schedule",
		Description: "Cron schedule of the sweep that drops reservations of workloads which never started. Read at startup.",
		Category:    SettingCategoryDispatch,
		Type:        SettingTypeString,
		Required:    true,
		ReadOnly:    false,
		Default:     "@every 30s",
	}
)

// ValidateSetting checks the value against the definition of the named setting.
func ValidateSetting(name SettingName, value string) error {
	definition, ok := SettingDefinitions[name]
	if !ok {
		return errors.Errorf("setting %v is not supported", name)
	}
	if definition.Required && value == "" {
		return errors.Errorf("value of required setting %v cannot be empty", name)
	}
	if value == "" {
		return nil
	}

	switch definition.Type {
	case SettingTypeInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(err, "value %v is not a number", value)
		}
		if i < 0 {
			return errors.Errorf("value %v of setting %v cannot be negative", value, name)
		}
	case SettingTypeBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return errors.Wrapf(err, "value %v is not a boolean", value)
		}
	}

	switch name {
	case SettingNameReserveTime:
		if value == "0" {
			return errors.Errorf("reserve time must be at least one second")
		}
	case SettingNameCarrierSweepSchedule:
		if _, err := cron.Parse(value); err != nil {
			return errors.Wrapf(err, "invalid cron schedule %v", value)
		}
	}
	return nil
}
