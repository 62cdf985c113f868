package tariff

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scheduleFile is the on-disk layout of a schedules YAML file:
//
//	schedules:
//	  - key: bd-residential-2024
//	    name: Bangladesh Residential (2024)
//	    slabs:
//	      - {capacity: 75, rate: 4.5}
//	      - {rate: 11}
type scheduleFile struct {
	Schedules []Schedule `yaml:"schedules"`
}

// LoadSchedulesYAML reads and validates the schedules listed in a YAML file.
// A slab without a capacity is the unbounded trailing slab.
func LoadSchedulesYAML(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tariff: read schedules file: %w", err)
	}
	return ParseSchedulesYAML(data)
}

// ParseSchedulesYAML decodes the YAML schedules layout from data.
func ParseSchedulesYAML(data []byte) ([]Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tariff: decode schedules yaml: %w", err)
	}
	for _, s := range f.Schedules {
		if s.Key == "" {
			return nil, fmt.Errorf("%w: schedule without key", ErrInvalidInput)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", s.Key, err)
		}
	}
	return f.Schedules, nil
}

// MarshalSchedulesYAML encodes schedules in the layout LoadSchedulesYAML reads.
func MarshalSchedulesYAML(list []Schedule) ([]byte, error) {
	return yaml.Marshal(scheduleFile{Schedules: list})
}
