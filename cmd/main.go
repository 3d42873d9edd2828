package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"errortracker/cmd/check"
	"errortracker/cmd/list"
	"errortracker/cmd/migrate"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "errortracker"
	app.Usage = "The error tracker command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		migrateCMD,
		listCMD,
		checkCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "run schema and data migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Create the error_aggregates table and apply pending data migrations`,
	}
	listCMD = cli.Command{
		Name:      "list",
		Usage:     "print error aggregates",
		Action:    listAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum number of aggregates"},
			cli.StringFlag{Name: "path", Usage: "only aggregates for this request path"},
			cli.StringFlag{Name: "exception", Usage: "only aggregates with this exception type"},
		},
		Description: `List the most recently seen error aggregates`,
	}
	checkCMD = cli.Command{
		Name:        "check",
		Usage:       "push a synthetic error through the pipeline",
		Action:      checkAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Record a synthetic error to verify storage, notifiers and ticketing`,
	}
)

func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")

	m := &migrate.Migrate{Log: logrus.WithField("cmd", "migrate")}
	if err := m.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func listAction(c *cli.Context) error {
	l := &list.List{
		Log:       logrus.WithField("cmd", "list"),
		Out:       os.Stdout,
		Limit:     c.Int("limit"),
		Path:      c.String("path"),
		Exception: c.String("exception"),
	}
	if err := l.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func checkAction(_ *cli.Context) error {
	logrus.Info("Starting check CMD")

	ch := &check.Check{Log: logrus.WithField("cmd", "check"), Out: os.Stdout}
	if err := ch.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
