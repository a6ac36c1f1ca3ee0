// garage answers vehicle maintenance, weather and interference questions
// with LLM agents backed by a local SQLite database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/metrics"
)

const version = "0.3.0"

// CLI is the kong command tree.
type CLI struct {
	Debug      bool   `short:"d" help:"Enable debug logging."`
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file (default ./garage.json, then ~/.garage/garage.json)."`
	Metrics    bool   `help:"Print a metrics snapshot to stderr on exit."`

	Ask            AskCmd            `cmd:"" help:"Route a question to the car, truck or weather agent."`
	Car            CarCmd            `cmd:"" help:"Ask the car maintenance agent."`
	Truck          TruckCmd          `cmd:"" help:"Ask the truck maintenance agent."`
	Weather        WeatherCmd        `cmd:"" help:"Ask the weather agent."`
	Timeseries     TimeseriesCmd     `cmd:"" help:"Ask about interference hotspots (interactive without a question)."`
	Seed           SeedCmd           `cmd:"" help:"Create the database and insert the demo cars and trucks."`
	LoadTimeseries LoadTimeseriesCmd `cmd:"" name:"load-timeseries" help:"Import an interference CSV into the database."`
	Config         ConfigCmd         `cmd:"" help:"Manage the config file."`
	Version        VersionCmd        `cmd:"" help:"Print the version."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("garage"),
		kong.Description("Vehicle maintenance, weather and interference agents."),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, TimeFormat: "15:04:05", ShowCaller: cli.Debug})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &App{ctx: ctx, cli: &cli}

	err := kctx.Run(app)
	app.Close()
	stop()

	if cli.Metrics {
		if data, merr := metrics.GetInstance().MarshalSnapshot(); merr == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(describeError(err)))
		os.Exit(1)
	}
}
