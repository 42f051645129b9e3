// Package schedule derives production plans from per-collection stage-duration
// tables. Computation is pure; callers resolve the duration table (collection
// metadata or the configured fallback) and feed it in.
package schedule

import (
	"errors"
	"fmt"
	"sort"
)

// Stage is a named production stage.
type Stage string

const (
	StagePlanning  Stage = "PLANNING"
	StageFabric    Stage = "FABRIC"
	StageCutting   Stage = "CUTTING"
	StageSewing    Stage = "SEWING"
	StageQuality   Stage = "QUALITY"
	StagePackaging Stage = "PACKAGING"
	StageShipping  Stage = "SHIPPING"
)

// stageOrder fixes the canonical sequence stages run in.
var stageOrder = map[Stage]int{
	StagePlanning:  0,
	StageFabric:    1,
	StageCutting:   2,
	StageSewing:    3,
	StageQuality:   4,
	StagePackaging: 5,
	StageShipping:  6,
}

// Mode selects order or sample scheduling. Samples run a compressed cycle.
type Mode string

const (
	ModeOrder  Mode = "ORDER"
	ModeSample Mode = "SAMPLE"
)

var (
	ErrUnknownStage     = errors.New("unknown_stage")
	ErrInvalidDuration  = errors.New("invalid_stage_duration")
	ErrInvalidMode      = errors.New("invalid_schedule_mode")
	ErrEmptyDefaultDays = errors.New("invalid_default_days")
)

// StagePlan is one scheduled stage with its estimated duration in days.
type StagePlan struct {
	Stage Stage
	Days  int
}

// Plan is an ordered production schedule.
type Plan struct {
	Stages    []StagePlan
	TotalDays int
}

// DefaultSampleDurations is the built-in sample schedule used when neither the
// collection nor the configuration supplies one.
func DefaultSampleDurations() map[Stage]int {
	return map[Stage]int{
		StagePlanning: 2,
		StageFabric:   2,
		StageSewing:   5,
		StageQuality:  1,
		StageShipping: 1,
	}
}

// Compute maps a stage-duration table to an ordered plan. Stages with zero days
// are validated but excluded from the plan. In SAMPLE mode every duration is
// halved, rounded up. An empty table falls back: samples to the built-in
// default schedule, orders to a single fallback stage of defaultOrderDays.
func Compute(durations map[Stage]int, mode Mode, defaultOrderDays int) (Plan, error) {
	switch mode {
	case ModeOrder, ModeSample:
	default:
		return Plan{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if len(durations) == 0 {
		if mode == ModeSample {
			// The built-in sample schedule is already a compressed cycle;
			// it is used as-is, not halved again.
			return Compute(DefaultSampleDurations(), ModeOrder, defaultOrderDays)
		}
		if defaultOrderDays <= 0 {
			return Plan{}, ErrEmptyDefaultDays
		}
		return Plan{
			Stages:    []StagePlan{{Stage: StagePlanning, Days: defaultOrderDays}},
			TotalDays: defaultOrderDays,
		}, nil
	}

	stages := make([]StagePlan, 0, len(durations))
	for stage, days := range durations {
		if _, ok := stageOrder[stage]; !ok {
			return Plan{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
		}
		if days < 0 {
			return Plan{}, fmt.Errorf("%w: %s=%d", ErrInvalidDuration, stage, days)
		}
		if mode == ModeSample {
			days = (days + 1) / 2
		}
		if days == 0 {
			continue
		}
		stages = append(stages, StagePlan{Stage: stage, Days: days})
	}

	sort.Slice(stages, func(i, j int) bool {
		return stageOrder[stages[i].Stage] < stageOrder[stages[j].Stage]
	})

	total := 0
	for _, s := range stages {
		total += s.Days
	}

	return Plan{Stages: stages, TotalDays: total}, nil
}

// ParseDurations converts a raw duration table (collection metadata JSON) into
// a typed one. Non-integer values are rejected before they reach Compute.
func ParseDurations(raw map[string]any) (map[Stage]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[Stage]int, len(raw))
	for name, value := range raw {
		stage := Stage(name)
		if _, ok := stageOrder[stage]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
		}
		days, ok := asInt(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidDuration, name, value)
		}
		out[stage] = days
	}
	return out, nil
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
