package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/roelfdiedericks/garage/internal/config"
	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/router"
)

// AskCmd routes a free-text question.
type AskCmd struct {
	Query []string `arg:"" help:"The question."`
}

func (c *AskCmd) Run(app *App) error {
	set, err := app.Agents()
	if err != nil {
		return err
	}
	ans, err := set.Ask(app.ctx, strings.Join(c.Query, " "))
	if err != nil {
		return err
	}
	printResult(ans.Label.String()+" agent", ans.RunID, ans.Output)
	return nil
}

// CarCmd asks the car agent directly.
type CarCmd struct {
	ID    int64    `help:"Car id to preload from the database."`
	Query []string `arg:"" optional:"" help:"The question."`
}

func (c *CarCmd) Run(app *App) error {
	set, err := app.Agents()
	if err != nil {
		return err
	}
	q := joinOr(c.Query, fmt.Sprintf("What maintenance does car %d need?", c.ID))
	res, err := set.Car(app.ctx, q, c.ID)
	if err != nil {
		return err
	}
	printResult("car agent", res.RunID, res.Output)
	return nil
}

// TruckCmd asks the truck agent directly.
type TruckCmd struct {
	ID    int64    `help:"Truck id to preload from the database."`
	Query []string `arg:"" optional:"" help:"The question."`
}

func (c *TruckCmd) Run(app *App) error {
	set, err := app.Agents()
	if err != nil {
		return err
	}
	q := joinOr(c.Query, fmt.Sprintf("What maintenance does truck %d need?", c.ID))
	res, err := set.Truck(app.ctx, q, c.ID)
	if err != nil {
		return err
	}
	printResult("truck agent", res.RunID, res.Output)
	return nil
}

// WeatherCmd asks the weather agent directly.
type WeatherCmd struct {
	Query []string `arg:"" help:"The question, e.g. \"what's the weather in Oslo\"."`
}

func (c *WeatherCmd) Run(app *App) error {
	set, err := app.Agents()
	if err != nil {
		return err
	}
	res, err := set.Weather(app.ctx, strings.Join(c.Query, " "))
	if err != nil {
		return err
	}
	printResult("weather agent", res.RunID, res.Output)
	return nil
}

// TimeseriesCmd answers one question, or loops on stdin until exit/quit.
type TimeseriesCmd struct {
	Query []string `arg:"" optional:"" help:"The question. Omit for an interactive prompt."`
}

func (c *TimeseriesCmd) Run(app *App) error {
	set, err := app.Agents()
	if err != nil {
		return err
	}
	if len(c.Query) > 0 {
		res, err := set.TimeSeries(app.ctx, strings.Join(c.Query, " "))
		if err != nil {
			return err
		}
		printResult("timeseries agent", res.RunID, res.Output)
		return nil
	}

	fmt.Println(headerStyle.Render("Interference analysis") + "  (type exit or quit to leave)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(q) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := set.TimeSeries(app.ctx, q)
		if err != nil {
			if app.ctx.Err() != nil {
				return err
			}
			// one failed question does not end the session
			fmt.Fprintln(os.Stderr, errorStyle.Render(describeError(err)))
			continue
		}
		printResult("timeseries agent", res.RunID, res.Output)
	}
}

// SeedCmd creates the schema and upserts the demo vehicles.
type SeedCmd struct{}

func (c *SeedCmd) Run(app *App) error {
	st, err := app.Store()
	if err != nil {
		return err
	}
	if err := st.Seed(app.ctx); err != nil {
		return err
	}
	cfg, _ := app.Config()
	fmt.Printf("Seeded %s\n", cfg.Database.Path)
	return nil
}

// LoadTimeseriesCmd imports an interference CSV.
type LoadTimeseriesCmd struct {
	File string `arg:"" type:"existingfile" help:"CSV with columns hex, good_aircraft, bad_aircraft, total, interference_ratio, lat, lon."`
}

func (c *LoadTimeseriesCmd) Run(app *App) error {
	st, err := app.Store()
	if err != nil {
		return err
	}
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := st.LoadTimeSeriesCSV(app.ctx, f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	L_info("load-timeseries: done", "file", c.File, "rows", n)
	fmt.Printf("Loaded %d rows from %s\n", n, c.File)
	return nil
}

// ConfigCmd groups config file commands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write the default config."`
	Show ConfigShowCmd `cmd:"" help:"Print the effective config (secrets masked)."`
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" type:"path" help:"Where to write (default ~/.garage/garage.json)."`
	Force bool   `help:"Replace an existing file, keeping a backup."`
}

func (c *ConfigInitCmd) Run(app *App) error {
	return config.Init(c.Path, c.Force)
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(app *App) error {
	cfg, err := app.Config()
	if err != nil {
		return err
	}
	source := cfg.Path
	if source == "" {
		source = "built-in defaults"
	}
	printResult("config", source, redact(cfg))
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("garage %s\n", version)
	return nil
}

func joinOr(words []string, fallback string) string {
	if len(words) == 0 {
		return fallback
	}
	return strings.Join(words, " ")
}

func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// unroutableHint is shown when the router picked a label with no agent.
func unroutableHint(err *router.UnroutableQueryError) string {
	return fmt.Sprintf("Could not route the question (classified as %q). Try the car, truck or weather command directly.", err.Label.String())
}
