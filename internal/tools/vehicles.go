package tools

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/store"
)

// VehicleStore is the slice of store.Store the vehicle tools read.
type VehicleStore interface {
	GetCar(ctx context.Context, id int64) (*store.Car, error)
	GetTruck(ctx context.Context, id int64) (*store.Truck, error)
}

// CarInfoTool looks up a car by id
type CarInfoTool struct {
	store VehicleStore
}

// NewCarInfoTool creates the get_car_info tool
func NewCarInfoTool(s VehicleStore) *CarInfoTool {
	return &CarInfoTool{store: s}
}

func (t *CarInfoTool) Name() string {
	return "get_car_info"
}

func (t *CarInfoTool) Description() string {
	return "Fetch information about a car by ID: make, year, mileage, last service date and known issues."
}

func (t *CarInfoTool) Schema() map[string]any {
	return idSchema("car_id", "Numeric ID of the car")
}

func (t *CarInfoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		CarID int64 `json:"car_id"`
	}
	if err := decodeInput(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.CarID <= 0 {
		return "", fmt.Errorf("car_id is required")
	}

	car, err := t.store.GetCar(ctx, params.CarID)
	if err != nil {
		return "", err
	}
	L_debug("get_car_info: found", "id", car.ID, "make", car.Make)
	return jsonResult(car)
}

// TruckInfoTool looks up a truck by id
type TruckInfoTool struct {
	store VehicleStore
}

// NewTruckInfoTool creates the get_truck_info tool
func NewTruckInfoTool(s VehicleStore) *TruckInfoTool {
	return &TruckInfoTool{store: s}
}

func (t *TruckInfoTool) Name() string {
	return "get_truck_info"
}

func (t *TruckInfoTool) Description() string {
	return "Fetch information about a truck by ID: make, capacity in tons, mileage and known issues."
}

func (t *TruckInfoTool) Schema() map[string]any {
	return idSchema("truck_id", "Numeric ID of the truck")
}

func (t *TruckInfoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		TruckID int64 `json:"truck_id"`
	}
	if err := decodeInput(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.TruckID <= 0 {
		return "", fmt.Errorf("truck_id is required")
	}

	truck, err := t.store.GetTruck(ctx, params.TruckID)
	if err != nil {
		return "", err
	}
	L_debug("get_truck_info: found", "id", truck.ID, "make", truck.Make)
	return jsonResult(truck)
}

func idSchema(field, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{
				"type":        "integer",
				"description": description,
			},
		},
		"required": []string{field},
	}
}
