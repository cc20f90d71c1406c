package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/longhorn/resource-dispatcher/app"
)

var VERSION = "dev"

func main() {
	if err := app.NewApp(VERSION).Run(os.Args); err != nil {
		logrus.Fatalf("%v failed: %v", app.AppName, err)
	}
}
