package store

// Issues maps a vehicle component to its reported state ("engine": "oil leak").
type Issues map[string]string

// Car is a row of the cars table.
type Car struct {
	ID              int64  `json:"id"`
	Make            string `json:"make"`
	Year            int    `json:"year"`
	LastServiceDate string `json:"last_service_date"` // YYYY-MM-DD
	Mileage         int    `json:"mileage"`
	Issues          Issues `json:"issues"`
}

// Truck is a row of the trucks table.
type Truck struct {
	ID           int64  `json:"id"`
	Make         string `json:"make"`
	CapacityTons int    `json:"capacity_tons"`
	Mileage      int    `json:"mileage"`
	Issues       Issues `json:"issues"`
}

// TimeSeries is one ADS-B receiver interference sample for an aircraft hex.
type TimeSeries struct {
	ID                int64   `json:"id"`
	Hex               string  `json:"hex"`
	GoodAircraft      int     `json:"good_aircraft"`
	BadAircraft       int     `json:"bad_aircraft"`
	Total             int     `json:"total"`
	InterferenceRatio float64 `json:"interference_ratio"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
}

// SeedCars are the demo cars written by Seed.
var SeedCars = []Car{
	{ID: 1, Make: "Volvo", Year: 2018, LastServiceDate: "2023-06-15", Mileage: 45000,
		Issues: Issues{"engine": "none", "tires": "good"}},
	{ID: 2, Make: "Saab", Year: 2020, LastServiceDate: "2023-08-20", Mileage: 30000,
		Issues: Issues{"engine": "big oil leak", "tires": "bad"}},
}

// SeedTrucks are the demo trucks written by Seed.
var SeedTrucks = []Truck{
	{ID: 1, Make: "Scania", CapacityTons: 20, Mileage: 120000,
		Issues: Issues{"brakes": "worn", "engine": "oil leak"}},
	{ID: 2, Make: "MAN", CapacityTons: 15, Mileage: 95000,
		Issues: Issues{"transmission": "slipping", "tires": "bald"}},
}
