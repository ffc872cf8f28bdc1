// Package trend compares consecutive team statistics.
package trend

import (
	"math"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

const epsilon = 0.00001

type Trend struct {
	Delta        float64   `json:"delta"`
	DeltaPercent float64   `json:"deltaPercent"`
	Direction    Direction `json:"direction"`
	From         float64   `json:"from"`
	To           float64   `json:"to"`
}

// Improving reports whether the value went down; fewer findings is better.
func (t Trend) Improving() bool { return t.Direction == Down }

func Compute(prev, curr float64) Trend {
	d := curr - prev

	dir := Flat
	if d > epsilon {
		dir = Up
	} else if d < -epsilon {
		dir = Down
	}

	dp := 0.0
	if math.Abs(prev) > epsilon {
		dp = (d / prev) * 100.0
	}

	return Trend{
		Delta:        round(d, 2),
		DeltaPercent: round(dp, 2),
		Direction:    dir,
		From:         round(prev, 2),
		To:           round(curr, 2),
	}
}

// TeamTrend is the per-severity movement of a team's running averages.
type TeamTrend struct {
	High   Trend `json:"high"`
	Medium Trend `json:"medium"`
	Low    Trend `json:"low"`
	Runs   int   `json:"runs"`
}

// FromRuns compares the averages recorded after the two newest runs. runs
// must be ordered newest first. With a single run the comparison is against
// a fresh team, with none every direction is flat.
func FromRuns(runs []schemas.ScanRun) TeamTrend {
	var prev, curr schemas.TeamRunningStats
	switch {
	case len(runs) == 0:
	case len(runs) == 1:
		curr = runs[0].After
	default:
		curr, prev = runs[0].After, runs[1].After
	}
	return TeamTrend{
		High:   Compute(prev.AvgHighVulCnt, curr.AvgHighVulCnt),
		Medium: Compute(prev.AvgMidVulCnt, curr.AvgMidVulCnt),
		Low:    Compute(prev.AvgLowVulCnt, curr.AvgLowVulCnt),
		Runs:   len(runs),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
