package models

import "time"

// Measurements are the eight sensor values carried by one machine sample.
// A nil field means the sensor value was absent; it is never coerced to zero.
type Measurements struct {
	Power           *float64 `json:"power"`
	VoltageL1       *float64 `json:"voltage_l1_gnd"`
	VoltageL2       *float64 `json:"voltage_l2_gnd"`
	VoltageL3       *float64 `json:"voltage_l3_gnd"`
	Pressure        *float64 `json:"pressure"`
	Force           *float64 `json:"force"`
	CycleCount      *int64   `json:"cycle_count"`
	PositionOfPunch *float64 `json:"position_of_punch"`
}

// Record is one persisted machine sample.
//
// ID is assigned by the store and never changes. A zero Timestamp on a
// record being written means "use the write time".
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Measurements
}

// MeasurementFields lists the JSON keys every write request must carry.
var MeasurementFields = []string{
	"power",
	"voltage_l1_gnd",
	"voltage_l2_gnd",
	"voltage_l3_gnd",
	"pressure",
	"force",
	"cycle_count",
	"position_of_punch",
}

// Float returns a pointer to v. Handy for building records in code.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }
