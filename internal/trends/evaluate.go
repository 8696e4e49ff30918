package trends

import (
	"fmt"
	"math"
	"strings"
)

type Direction string

const (
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
	DirectionFlat     Direction = "flat"
	DirectionEmerging Direction = "emerging"
)

// Outcome is the per-scope classification reported by a trend run.
type Outcome string

const (
	OutcomeTrend          Outcome = "generated"
	OutcomeEmerging       Outcome = "emerging"
	OutcomeBelowFloor     Outcome = "below_floor"
	OutcomeNotSignificant Outcome = "not_significant"
	OutcomeFailed         Outcome = "failed"
)

const (
	EmergingConfidence = 60
	MaxConfidence      = 95
	TimeWindow         = "30d"
	topContextItems    = 3
)

// Policy holds the volume floor, baseline guardrail and significance bar.
type Policy struct {
	MinVolume       int
	BaselineMin     int
	MinDeltaPercent float64
}

func DefaultPolicy() Policy {
	return Policy{
		MinVolume:       10,
		BaselineMin:     25,
		MinDeltaPercent: 25,
	}
}

// Evaluation is the decision for one scope. Direction, Magnitude and
// Confidence are set only when Persist reports true.
type Evaluation struct {
	Key          ScopeKey
	Outcome      Outcome
	Direction    Direction
	Magnitude    *float64
	DeltaPercent *float64
	Confidence   int
	Themes       []string
	SignalTypes  []string
	CurrentCount int
	PrevCount    int
}

// Persist reports whether the evaluation produces a trend row.
func (e Evaluation) Persist() bool {
	return e.Outcome == OutcomeTrend || e.Outcome == OutcomeEmerging
}

// Evaluate applies the volume floor, then the baseline guardrail, then the
// significance bar.
func (p Policy) Evaluate(stats ScopeStats) Evaluation {
	eval := Evaluation{
		Key:          stats.Key,
		CurrentCount: stats.Last30,
		PrevCount:    stats.Prev30,
		Themes:       TopN(stats.Dist30.Themes, topContextItems),
		SignalTypes:  TopN(stats.Dist30.Types, topContextItems),
	}

	if stats.Last30 < p.MinVolume {
		eval.Outcome = OutcomeBelowFloor
		return eval
	}

	if stats.Prev30 < p.BaselineMin {
		eval.Outcome = OutcomeEmerging
		eval.Direction = DirectionEmerging
		eval.Confidence = EmergingConfidence
		return eval
	}

	delta := DeltaPercent(stats.Last30, stats.Prev30)
	eval.DeltaPercent = delta
	if delta == nil || math.Abs(*delta) < p.MinDeltaPercent {
		eval.Outcome = OutcomeNotSignificant
		return eval
	}

	abs := math.Abs(*delta)
	magnitude := math.Round(abs*10) / 10
	eval.Outcome = OutcomeTrend
	eval.Magnitude = &magnitude
	eval.Confidence = min(MaxConfidence, int(math.Round(50+abs/2)))
	switch {
	case *delta > 0:
		eval.Direction = DirectionUp
	case *delta < 0:
		eval.Direction = DirectionDown
	default:
		eval.Direction = DirectionFlat
	}
	return eval
}

// FallbackExplanation is the deterministic text used when no provider
// explanation is available.
func FallbackExplanation(e Evaluation) string {
	var b strings.Builder
	scope := fmt.Sprintf("%s %q", e.Key.Type, e.Key.ID)
	if e.Direction == DirectionEmerging {
		fmt.Fprintf(&b, "Emerging activity for %s: %d signals in the last 30 days against a baseline of %d, too small for a reliable percentage change.", scope, e.CurrentCount, e.PrevCount)
	} else {
		magnitude := 0.0
		if e.Magnitude != nil {
			magnitude = *e.Magnitude
		}
		fmt.Fprintf(&b, "Signal volume for %s is %s %.1f%% over the last 30 days (%d vs %d).", scope, e.Direction, magnitude, e.CurrentCount, e.PrevCount)
	}
	if len(e.Themes) > 0 {
		fmt.Fprintf(&b, " Top themes: %s.", strings.Join(e.Themes, ", "))
	}
	if len(e.SignalTypes) > 0 {
		fmt.Fprintf(&b, " Top signal types: %s.", strings.Join(e.SignalTypes, ", "))
	}
	return b.String()
}
