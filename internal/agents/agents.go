// Package agents wires the garage agents (car, truck, weather, time-series
// and router) to their prompts, tools and the shared provider.
package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/roelfdiedericks/garage/internal/agent"
	"github.com/roelfdiedericks/garage/internal/llm"
	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/retry"
	"github.com/roelfdiedericks/garage/internal/router"
	"github.com/roelfdiedericks/garage/internal/schema"
	"github.com/roelfdiedericks/garage/internal/store"
	"github.com/roelfdiedericks/garage/internal/tools"
)

// Store is what the agents' tools read.
type Store interface {
	tools.VehicleStore
	tools.InterferenceStore
}

// Deps holds everything the agents are built from.
type Deps struct {
	Provider llm.Provider
	Store    Store
	Weather  tools.WeatherConfig
	Prompts  *Prompts // nil uses the built-in catalogue

	MaxToolTurns  int
	OutputRetries int
	Retry         retry.Policy // applied to every LLM call
}

// Set is the full group of agents sharing one provider.
type Set struct {
	car        *agent.Agent[schema.MaintenanceOutput]
	truck      *agent.Agent[schema.MaintenanceOutput]
	weather    *agent.Agent[schema.WeatherOutput]
	timeseries *agent.Agent[schema.WorstInterferenceOutput]
	router     *agent.Agent[schema.RouterOutput]
	store      Store
}

// New builds every agent.
func New(d Deps) (*Set, error) {
	if d.Provider == nil {
		return nil, errors.New("agents: provider is required")
	}
	if d.Store == nil {
		return nil, errors.New("agents: store is required")
	}
	prompts := d.Prompts
	if prompts == nil {
		var err error
		if prompts, err = LoadPrompts(""); err != nil {
			return nil, err
		}
	}

	cfg := func(name string, p Prompt, reg *tools.Registry) agent.Config {
		return agent.Config{
			Name:          name,
			SystemPrompt:  p.System,
			Tools:         reg,
			MaxToolTurns:  d.MaxToolTurns,
			OutputRetries: d.OutputRetries,
			Retry:         d.Retry,
		}
	}

	s := &Set{store: d.Store}
	var err error
	if s.car, err = agent.New[schema.MaintenanceOutput](d.Provider,
		cfg("car", prompts.Car, tools.NewRegistry(tools.NewCarInfoTool(d.Store)))); err != nil {
		return nil, err
	}
	if s.truck, err = agent.New[schema.MaintenanceOutput](d.Provider,
		cfg("truck", prompts.Truck, tools.NewRegistry(tools.NewTruckInfoTool(d.Store)))); err != nil {
		return nil, err
	}
	if s.weather, err = agent.New[schema.WeatherOutput](d.Provider,
		cfg("weather", prompts.Weather, tools.NewRegistry(tools.NewTemperatureTool(d.Weather)))); err != nil {
		return nil, err
	}
	if s.timeseries, err = agent.New[schema.WorstInterferenceOutput](d.Provider,
		cfg("timeseries", prompts.TimeSeries, tools.NewRegistry(tools.NewWorstInterferenceTool(d.Store)))); err != nil {
		return nil, err
	}
	if s.router, err = agent.New[schema.RouterOutput](d.Provider,
		cfg("router", prompts.Router, nil)); err != nil {
		return nil, err
	}

	L_debug("agents: built", "provider", d.Provider.Name(), "model", d.Provider.Model())
	return s, nil
}

// Car answers a question about a car. When carID is positive the car row is
// loaded up front and placed in the prompt; the model can still call
// get_car_info for anything missing.
func (s *Set) Car(ctx context.Context, query string, carID int64) (*agent.Result[schema.MaintenanceOutput], error) {
	var opts []agent.RunOption
	if carID > 0 {
		preload := map[string]any{"car_id": carID, "car": nil}
		car, err := s.store.GetCar(ctx, carID)
		switch {
		case err == nil:
			preload["car"] = car
		case errors.Is(err, store.ErrNotFound):
			L_debug("agents: car not in store", "id", carID)
		default:
			return nil, fmt.Errorf("preload car %d: %w", carID, err)
		}
		opts = append(opts, agent.WithContext("Context (preloaded info)", preload))
	}
	return s.car.Run(ctx, query, opts...)
}

// Truck answers a question about a truck, preloading it like Car.
func (s *Set) Truck(ctx context.Context, query string, truckID int64) (*agent.Result[schema.MaintenanceOutput], error) {
	var opts []agent.RunOption
	if truckID > 0 {
		preload := map[string]any{"truck_id": truckID, "truck": nil}
		truck, err := s.store.GetTruck(ctx, truckID)
		switch {
		case err == nil:
			preload["truck"] = truck
		case errors.Is(err, store.ErrNotFound):
			L_debug("agents: truck not in store", "id", truckID)
		default:
			return nil, fmt.Errorf("preload truck %d: %w", truckID, err)
		}
		opts = append(opts, agent.WithContext("Context (preloaded info)", preload))
	}
	return s.truck.Run(ctx, query, opts...)
}

// Weather answers a weather question.
func (s *Set) Weather(ctx context.Context, query string) (*agent.Result[schema.WeatherOutput], error) {
	return s.weather.Run(ctx, query)
}

// TimeSeries answers a question about the interference data.
func (s *Set) TimeSeries(ctx context.Context, query string) (*agent.Result[schema.WorstInterferenceOutput], error) {
	return s.timeseries.Run(ctx, query)
}

// Classify labels a query with the router agent. Set implements router.Classifier.
func (s *Set) Classify(ctx context.Context, query string) (router.Label, error) {
	res, err := s.router.Run(ctx, query)
	if err != nil {
		return router.LabelUnknown, err
	}
	return res.Output.Label()
}

var idPattern = regexp.MustCompile(`(?i)(?:\b(?:id|no\.?|number)|#)\s*:?\s*(\d+)\b`)

// ExtractID finds a vehicle id mentioned in a query ("truck with ID 1",
// "car #2"). Returns 0 when there is none.
func ExtractID(query string) int64 {
	m := idPattern.FindStringSubmatch(query)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
