package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
)

// Payload is the body of a create or replace request, kept as raw JSON so
// that "key absent" and "key present with null" stay distinguishable.
type Payload map[string]json.RawMessage

// Record validates the payload and maps it to a Record without an id.
//
// All eight measurement keys must be present; a present key may be null.
// An optional "timestamp" key is accepted in RFC3339 form.
func (p Payload) Record() (Record, error) {
	verr := &apperrors.ValidationError{}
	var rec Record

	floats := map[string]**float64{
		"power":             &rec.Power,
		"voltage_l1_gnd":    &rec.VoltageL1,
		"voltage_l2_gnd":    &rec.VoltageL2,
		"voltage_l3_gnd":    &rec.VoltageL3,
		"pressure":          &rec.Pressure,
		"force":             &rec.Force,
		"position_of_punch": &rec.PositionOfPunch,
	}

	for _, field := range MeasurementFields {
		raw, ok := p[field]
		if !ok {
			verr.AddMissing(field)
			continue
		}
		if field == "cycle_count" {
			v, err := ParseInt(raw)
			if err != nil {
				verr.AddInvalid(field, err.Error())
				continue
			}
			rec.CycleCount = v
			continue
		}
		v, err := ParseFloat(raw)
		if err != nil {
			verr.AddInvalid(field, err.Error())
			continue
		}
		*floats[field] = v
	}

	if raw, ok := p["timestamp"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			verr.AddInvalid("timestamp", "must be an RFC3339 string")
		} else if ts, err := time.Parse(time.RFC3339, s); err != nil {
			verr.AddInvalid("timestamp", "must be RFC3339")
		} else {
			rec.Timestamp = ts.UTC()
		}
	}

	if err := verr.Err(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ParseFloat decodes a JSON number or null. Null yields nil.
func ParseFloat(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errNotNumber
	}
	return &v, nil
}

// ParseInt decodes a JSON integer or null. Integral floats such as 42.0 are
// accepted; fractional values are rejected.
func ParseInt(raw json.RawMessage) (*int64, error) {
	f, err := ParseFloat(raw)
	if err != nil || f == nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || *f < math.MinInt32 || *f > math.MaxInt32 {
		return nil, errNotInteger
	}
	v := int64(*f)
	return &v, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

var (
	errNotNumber  = jsonTypeError("must be a number or null")
	errNotInteger = jsonTypeError("must be an integer or null")
)

type jsonTypeError string

func (e jsonTypeError) Error() string { return string(e) }
