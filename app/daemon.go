package app

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/longhorn/resource-dispatcher/api"
	"github.com/longhorn/resource-dispatcher/datastore"
	"github.com/longhorn/resource-dispatcher/dispatcher"
	"github.com/longhorn/resource-dispatcher/kvstore"
	"github.com/longhorn/resource-dispatcher/manager"
	"github.com/longhorn/resource-dispatcher/metrics_collector"
	"github.com/longhorn/resource-dispatcher/notify"
	"github.com/longhorn/resource-dispatcher/types"
	"github.com/longhorn/resource-dispatcher/util"
	"github.com/longhorn/resource-dispatcher/util/server"
)

const (
	FlagConfig      = "config"
	FlagKVBackend   = "kv-backend"
	FlagKVPrefix    = "kv-prefix"
	FlagETCDServers = "etcd-servers"
	FlagDataDir     = "data-dir"
	FlagListen      = "listen"
	FlagSocket      = "socket"

	KVBackendMemory = "memory"
	KVBackendETCD   = "etcd"
	KVBackendBolt   = "bolt"

	defaultKVPrefix = "/resource-dispatcher"
	boltFileName    = "dispatcher.db"
)

func DaemonCmd() cli.Command {
	return cli.Command{
		Name:  "daemon",
		Usage: "Run the external resource dispatcher",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  FlagConfig,
				Usage: "YAML file with settings, permissions and nodes applied at startup",
			},
			cli.StringFlag{
				Name:  FlagKVBackend,
				Value: KVBackendBolt,
				Usage: "Where nodes, settings and runs are stored: memory, etcd or bolt",
			},
			cli.StringFlag{
				Name:  FlagKVPrefix,
				Value: defaultKVPrefix,
				Usage: "Key prefix in the store",
			},
			cli.StringSliceFlag{
				Name:  FlagETCDServers,
				Usage: "etcd endpoints, required by the etcd backend",
			},
			cli.StringFlag{
				Name:  FlagDataDir,
				Value: types.DefaultDataDir,
				Usage: "Directory of the bolt database and of relative notifier paths",
			},
			cli.StringFlag{
				Name:  FlagListen,
				Value: fmt.Sprintf(":%d", types.DefaultAPIPort),
				Usage: "TCP address of the API",
			},
			cli.StringFlag{
				Name:  FlagSocket,
				Usage: "Serve the API on this unix socket instead of TCP",
			},
		},
		Action: func(c *cli.Context) {
			if err := startDispatcher(c); err != nil {
				logrus.Fatalf("Error starting dispatcher: %v", err)
			}
		},
	}
}

func startDispatcher(c *cli.Context) (err error) {
	dataDir := c.String(FlagDataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create data dir %v", dataDir)
	}

	var config *datastore.Config
	if path := c.String(FlagConfig); path != "" {
		if config, err = datastore.LoadConfig(path); err != nil {
			return err
		}
	}

	backend, closeBackend, err := newBackend(c.String(FlagKVBackend), c.StringSlice(FlagETCDServers), dataDir)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeBackend())
	}()

	kv, err := kvstore.NewKVStore(c.String(FlagKVPrefix), backend)
	if err != nil {
		return err
	}
	ds, err := datastore.NewDataStore(kv)
	if err != nil {
		return err
	}
	if err := ds.ApplyConfig(config); err != nil {
		logrus.WithError(err).Warn("Config was applied partially")
	}

	logger := logrus.StandardLogger().WithField("component", "metrics")
	collector := metricscollector.InitMetricsCollectorSystem(logger, ds)

	managers := manager.NewSwitch(newResourceManager(ds, collector))

	notifierFile, err := ds.GetSettingValue(types.SettingNameAdminNotifierFile)
	if err != nil {
		return err
	}
	notifier := notify.NewFileNotifier(util.ResolvePath(dataDir, notifierFile))

	d := dispatcher.NewDispatcher(managers, ds, ds, notifier, collector)
	schedule, err := ds.GetSettingValue(types.SettingNameCarrierSweepSchedule)
	if err != nil {
		return err
	}
	if err := d.StartSweep(schedule); err != nil {
		return err
	}
	defer d.StopSweep()

	ds.OnSettingChange(func(setting *types.Setting) {
		switch setting.Name {
		case types.SettingNameResourceManager,
			types.SettingNameRootURL,
			types.SettingNameResourceMonitorPort,
			types.SettingNameResourceMonitorTimeout:
			reloadResourceManager(ds, managers, collector)
		case types.SettingNameAdminNotifierFile:
			notifier.SetPath(util.ResolvePath(dataDir, setting.Value))
		case types.SettingNameCarrierSweepSchedule:
			if err := d.StartSweep(setting.Value); err != nil {
				logrus.WithError(err).Warn("Keeping the previous carrier sweep schedule")
			}
		}
	})

	var srv server.Server
	if socket := c.String(FlagSocket); socket != "" {
		srv = server.NewUnixServer(socket)
	} else {
		srv = server.NewTCPServer(c.String(FlagListen))
	}
	handler := api.NewHandler(api.NewServer(ds, d, managers, notifier, config.Authorizer()))

	done := make(chan struct{})
	util.RegisterShutdownChannel(done)

	g, ctx := errgroup.WithContext(context.Background())
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Go(func() error {
		select {
		case <-done:
		case <-ctx.Done():
		}
		cancel()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return srv.Serve(serveCtx, handler)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	manager.Stop(managers.Current())
	logrus.Info("Dispatcher stopped")
	return nil
}

func newBackend(name string, etcdServers []string, dataDir string) (kvstore.Backend, func() error, error) {
	switch name {
	case KVBackendMemory:
		backend, err := kvstore.NewMemoryBackend()
		return backend, func() error { return nil }, err
	case KVBackendETCD:
		if len(etcdServers) == 0 {
			return nil, nil, errors.Errorf("require %v for the %v backend", FlagETCDServers, KVBackendETCD)
		}
		backend, err := kvstore.NewETCDBackend(etcdServers)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	case KVBackendBolt:
		backend, err := kvstore.NewBoltBackend(util.ResolvePath(dataDir, boltFileName))
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}
	return nil, nil, errors.Errorf("unknown kv backend %v", name)
}

// reloadResourceManager installs the backend the settings now ask for and returns the
// one it replaced. The replaced manager is not stopped: reservations granted by a noop
// manager only expire through its timers.
func reloadResourceManager(ds *datastore.DataStore, managers *manager.Switch, observer manager.CallObserver) manager.ResourceManager {
	return managers.Set(newResourceManager(ds, observer))
}

// newResourceManager builds the backend the settings currently ask for.
func newResourceManager(ds *datastore.DataStore, observer manager.CallObserver) manager.ResourceManager {
	name, err := ds.GetSettingValue(types.SettingNameResourceManager)
	if err != nil {
		logrus.WithError(err).Warnf("Failed to get setting %v", types.SettingNameResourceManager)
		name = types.ResourceManagerNoop
	}
	config := manager.Config{}
	if config.RootURL, err = ds.GetSettingValue(types.SettingNameRootURL); err != nil {
		logrus.WithError(err).Warnf("Failed to get setting %v", types.SettingNameRootURL)
	}
	if config.ResourceMonitorPort, err = ds.GetSettingAsInt(types.SettingNameResourceMonitorPort); err != nil {
		config.ResourceMonitorPort = types.DefaultResourceMonitorPort
	}
	if config.ResourceMonitorTimeout, err = ds.GetSettingAsInt(types.SettingNameResourceMonitorTimeout); err != nil {
		config.ResourceMonitorTimeout = types.DefaultResourceMonitorTimeout
	}
	logrus.Infof("Using resource manager %v", name)
	return manager.NewResourceManager(name, config, ds, observer)
}
