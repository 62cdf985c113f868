package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSample is returned when a source has nothing usable yet.
var ErrNoSample = errors.New("telemetry: no sample available")

// Source provides the most recent consumption information. Callers must not
// assume ordering or freshness beyond "most recent sample wins".
type Source interface {
	LatestConsumption(ctx context.Context) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Sample, error)

func (f SourceFunc) LatestConsumption(ctx context.Context) (Sample, error) {
	return f(ctx)
}

// MeteredFirst reads Metered first and keeps its sample whenever it carries
// a reported cost or a metered consumption. Only when it offers power alone,
// or fails, is the Live power reading used instead.
type MeteredFirst struct {
	Metered Source
	Live    Source
}

func (m MeteredFirst) LatestConsumption(ctx context.Context) (Sample, error) {
	var (
		s   Sample
		err = ErrNoSample
	)
	if m.Metered != nil {
		s, err = m.Metered.LatestConsumption(ctx)
		if err == nil && (s.Cost != nil || s.Consumption != nil) {
			return s, nil
		}
	}
	if m.Live == nil || ctx.Err() != nil {
		return s, err
	}
	live, liveErr := m.Live.LatestConsumption(ctx)
	if liveErr == nil && live.Power != nil {
		return live, nil
	}
	if err == nil {
		return s, nil
	}
	if liveErr == nil {
		liveErr = fmt.Errorf("%w: live sample has no power", ErrNoSample)
	}
	return Sample{}, fmt.Errorf("all sources failed: %w", errors.Join(err, liveErr))
}
