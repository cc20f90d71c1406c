package app

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	AppName = "resource-dispatcher"

	FlagDebug   = "debug"
	FlagLogJSON = "log-json"

	exitCodeUsage = 2
)

// NewApp builds the dispatcher command line.
func NewApp(version string) *cli.App {
	a := cli.NewApp()
	a.Name = AppName
	a.Version = version
	a.Usage = "Reserve and lock external resources for CI workloads"

	a.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   FlagDebug + ", d",
			Usage:  "Log at debug level",
			EnvVar: "DISPATCHER_DEBUG",
		},
		cli.BoolFlag{
			Name:   FlagLogJSON + ", j",
			Usage:  "Log JSON lines instead of text",
			EnvVar: "DISPATCHER_LOG_JSON",
		},
	}
	a.Before = setupLogging
	a.Commands = []cli.Command{
		DaemonCmd(),
		ResourceCmd(),
	}
	a.CommandNotFound = commandNotFound
	a.OnUsageError = usageError
	return a
}

func setupLogging(c *cli.Context) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if c.GlobalBool(FlagDebug) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if c.GlobalBool(FlagLogJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func commandNotFound(c *cli.Context, command string) {
	fmt.Fprintf(c.App.ErrWriter, "%v: unknown command %q, the commands are:", c.App.Name, command)
	for _, cmd := range c.App.Commands {
		fmt.Fprintf(c.App.ErrWriter, " %v", cmd.Name)
	}
	fmt.Fprintln(c.App.ErrWriter)
	cli.OsExiter(exitCodeUsage)
}

func usageError(c *cli.Context, err error, isSubcommand bool) error {
	return errors.Wrapf(err, "%v: invalid usage, run %v --help", c.App.Name, c.App.Name)
}
