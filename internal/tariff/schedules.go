package tariff

import (
	"encoding/json"
	"os"
)

// Keys of the built-in schedules.
const (
	KeyBDResidential2024 = "bd-residential-2024"
	KeyFlat10            = "flat-10"
)

const schedulesEnv = "POWERDASH_SCHEDULES_JSON"

// BDResidential2024 is the Bangladesh residential slab tariff (2024).
func BDResidential2024() Schedule {
	return Schedule{
		Key:      KeyBDResidential2024,
		Name:     "Bangladesh Residential (2024)",
		Currency: CurrencyBDT,
		Notes:    "0-75 units 4.5, 76-200 5.5, 201-300 6.5, 301-400 8.5, above 400 11.0 taka per unit",
		Slabs: []Slab{
			{Capacity: 75, Rate: 4.5},
			{Capacity: 125, Rate: 5.5},
			{Capacity: 100, Rate: 6.5},
			{Capacity: 100, Rate: 8.5},
			{Capacity: Unbounded, Rate: 11.0},
		},
	}
}

func defaultSchedules() []Schedule {
	return []Schedule{
		BDResidential2024(),
		Flat(KeyFlat10, 10),
	}
}

// Defaults returns the built-in schedules, or the list given as JSON in
// POWERDASH_SCHEDULES_JSON. An override that fails to decode or validate
// falls back to the built-ins.
func Defaults() []Schedule {
	raw := os.Getenv(schedulesEnv)
	if raw == "" {
		return defaultSchedules()
	}
	var out []Schedule
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return defaultSchedules()
	}
	for _, s := range out {
		if s.Key == "" || s.Validate() != nil {
			return defaultSchedules()
		}
	}
	return out
}
