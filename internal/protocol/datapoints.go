package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Datapoint ids fixed by the device family. The numbering and ranges are a
// firmware contract, not a CozyLink convention.
const (
	// DPPower is 0 (off) or 255 (on).
	DPPower = 1

	// DPMode is 0 (normal) or 1 (effects).
	DPMode = 2

	// DPColorTemp is colour temperature on a 0-1000 scale.
	DPColorTemp = 3

	// DPBrightness is brightness on a 0-1000 scale.
	DPBrightness = 4

	// DPHue is hue in degrees, 0-360.
	DPHue = 5

	// DPSaturation is saturation multiplied by ten, 0-1000.
	DPSaturation = 6
)

// Power datapoint values.
const (
	PowerOff = 0
	PowerOn  = 255
)

// dpRange bounds a datapoint's legal values.
type dpRange struct {
	min, max int

	// discrete restricts the datapoint to exactly min or max.
	discrete bool
}

// dpRanges holds the known value ranges per datapoint id.
var dpRanges = map[int]dpRange{
	DPPower:      {min: PowerOff, max: PowerOn, discrete: true},
	DPMode:       {min: 0, max: 1},
	DPColorTemp:  {min: 0, max: 1000},
	DPBrightness: {min: 0, max: 1000},
	DPHue:        {min: 0, max: 360},
	DPSaturation: {min: 0, max: 1000},
}

// Values is a tagged datapoint map: datapoint id to integer value.
//
// On the wire the keys are stringified small integers; Values hides that
// behind integer keys so callers never juggle string conversions.
type Values map[int]int

// MarshalJSON writes the wire form with stringified keys.
func (v Values) MarshalJSON() ([]byte, error) {
	wire := make(map[string]int, len(v))
	for id, value := range v {
		wire[strconv.Itoa(id)] = value
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the wire form. Non-integer keys or values are a decode
// failure; devices only ever report integer datapoints.
func (v *Values) UnmarshalJSON(data []byte) error {
	var wire map[string]json.Number
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	out := make(Values, len(wire))
	for key, num := range wire {
		id, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("%w: datapoint key %q is not an integer", ErrDecodeFailed, key)
		}
		value, err := num.Int64()
		if err != nil {
			return fmt.Errorf("%w: datapoint %d value %q is not an integer", ErrDecodeFailed, id, num)
		}
		out[id] = int(value)
	}
	*v = out
	return nil
}

// IDs returns the datapoint ids in ascending order.
func (v Values) IDs() []int {
	ids := make([]int, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Validate checks every value against its datapoint's known range.
// Datapoints outside the documented family contract pass unchecked; newer
// firmware adds ids this code has no range for.
func (v Values) Validate() error {
	for id, value := range v {
		r, known := dpRanges[id]
		if !known {
			continue
		}
		if r.discrete {
			if value != r.min && value != r.max {
				return fmt.Errorf("%w: datapoint %d value %d (want %d or %d)",
					ErrValueOutOfRange, id, value, r.min, r.max)
			}
			continue
		}
		if value < r.min || value > r.max {
			return fmt.Errorf("%w: datapoint %d value %d (want %d-%d)",
				ErrValueOutOfRange, id, value, r.min, r.max)
		}
	}
	return nil
}
