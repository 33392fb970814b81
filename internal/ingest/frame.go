package ingest

import (
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

// Feed frame keys. Energy Consumption and Voltage are nested objects that
// every frame must carry; everything else is optional.
const (
	keyEnergy    = "Energy Consumption"
	keyPower     = "Power"
	keyVoltage   = "Voltage"
	keyL1        = "L1-GND"
	keyL2        = "L2-GND"
	keyL3        = "L3-GND"
	keyPressure  = "Pressure"
	keyForce     = "Force"
	keyCycles    = "Cycle Count"
	keyPunch     = "Position of the Punch"
	keyTimestamp = "Timestamp"
)

var (
	errMissing   = errors.New("required key absent")
	errNotObject = errors.New("must be an object")
)

type frame map[string]json.RawMessage

// DecodeFrame maps one feed frame onto a Record. Absent or null sensor
// values stay nil. The record has no id, and a zero timestamp unless the
// frame carried one.
func DecodeFrame(data []byte) (models.Record, error) {
	var top frame
	if err := json.Unmarshal(data, &top); err != nil {
		return models.Record{}, &apperrors.DecodeError{Err: err}
	}

	energy, err := top.object(keyEnergy)
	if err != nil {
		return models.Record{}, err
	}
	voltage, err := top.object(keyVoltage)
	if err != nil {
		return models.Record{}, err
	}

	var rec models.Record
	fields := []struct {
		src  frame
		key  string
		path string
		dst  **float64
	}{
		{energy, keyPower, keyEnergy + "." + keyPower, &rec.Power},
		{voltage, keyL1, keyVoltage + "." + keyL1, &rec.VoltageL1},
		{voltage, keyL2, keyVoltage + "." + keyL2, &rec.VoltageL2},
		{voltage, keyL3, keyVoltage + "." + keyL3, &rec.VoltageL3},
		{top, keyPressure, keyPressure, &rec.Pressure},
		{top, keyForce, keyForce, &rec.Force},
		{top, keyPunch, keyPunch, &rec.PositionOfPunch},
	}
	for _, f := range fields {
		v, err := models.ParseFloat(f.src[f.key])
		if err != nil {
			return models.Record{}, &apperrors.DecodeError{Field: f.path, Err: err}
		}
		*f.dst = v
	}

	rec.CycleCount, err = models.ParseInt(top[keyCycles])
	if err != nil {
		return models.Record{}, &apperrors.DecodeError{Field: keyCycles, Err: err}
	}

	if raw, ok := top[keyTimestamp]; ok && string(raw) != "null" {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return models.Record{}, &apperrors.DecodeError{Field: keyTimestamp, Err: err}
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return models.Record{}, &apperrors.DecodeError{Field: keyTimestamp, Err: err}
		}
		rec.Timestamp = ts.UTC()
	}

	return rec, nil
}

func (f frame) object(key string) (frame, error) {
	raw, ok := f[key]
	if !ok {
		return nil, &apperrors.DecodeError{Field: key, Err: errMissing}
	}
	var obj frame
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &apperrors.DecodeError{Field: key, Err: errNotObject}
	}
	return obj, nil
}
