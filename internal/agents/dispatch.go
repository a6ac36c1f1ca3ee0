package agents

import (
	"context"

	"github.com/roelfdiedericks/garage/internal/router"
)

// Answer is the result of a routed query.
type Answer struct {
	Label  router.Label `json:"label"`
	RunID  string       `json:"runId"`
	Output any          `json:"output"`
}

// Handlers maps each label to the agent that answers it.
func (s *Set) Handlers() router.Handlers[*Answer] {
	return router.Handlers[*Answer]{
		router.LabelCar: func(ctx context.Context, q string) (*Answer, error) {
			res, err := s.Car(ctx, q, ExtractID(q))
			if err != nil {
				return nil, err
			}
			return &Answer{Label: router.LabelCar, RunID: res.RunID, Output: res.Output}, nil
		},
		router.LabelTruck: func(ctx context.Context, q string) (*Answer, error) {
			res, err := s.Truck(ctx, q, ExtractID(q))
			if err != nil {
				return nil, err
			}
			return &Answer{Label: router.LabelTruck, RunID: res.RunID, Output: res.Output}, nil
		},
		router.LabelWeather: func(ctx context.Context, q string) (*Answer, error) {
			res, err := s.Weather(ctx, q)
			if err != nil {
				return nil, err
			}
			return &Answer{Label: router.LabelWeather, RunID: res.RunID, Output: res.Output}, nil
		},
	}
}

// Ask classifies the query and runs the matching agent.
func (s *Set) Ask(ctx context.Context, query string) (*Answer, error) {
	return router.Route(ctx, query, s, s.Handlers())
}
