// File: internal/results/normalize.go
package results

import (
	"strings"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// levelSeverity maps SARIF result levels onto the unified buckets.
var levelSeverity = map[string]schemas.Severity{
	schemas.LevelError:   schemas.SeverityHigh,
	schemas.LevelWarning: schemas.SeverityMedium,
	schemas.LevelNote:    schemas.SeverityLow,
}

// Normalize reduces the raw output of both scan kinds to severity buckets.
// A nil result yields an all-zero bucket for that side. Normalize has no side
// effects and returns the same value for the same inputs.
func Normalize(os *schemas.OpenSourceResult, cs *schemas.CodeSecurityResult) schemas.CombinedScanStats {
	return schemas.CombinedScanStats{
		OpenSource:   OpenSourceBucket(os),
		CodeSecurity: CodeSecurityBucket(cs),
	}
}

// OpenSourceBucket counts dependency findings by their severity string.
// Unrecognized severities are not counted.
func OpenSourceBucket(r *schemas.OpenSourceResult) schemas.SeverityBucket {
	var b schemas.SeverityBucket
	if r == nil {
		return b
	}
	for _, v := range r.Vulnerabilities {
		b = increment(b, schemas.Severity(strings.ToLower(strings.TrimSpace(v.Severity))))
	}
	return b
}

// CodeSecurityBucket counts findings of every run by SARIF level. Levels
// other than error, warning and note are not counted.
func CodeSecurityBucket(r *schemas.CodeSecurityResult) schemas.SeverityBucket {
	var b schemas.SeverityBucket
	if r == nil {
		return b
	}
	for _, run := range r.Runs {
		for _, f := range run.Results {
			if sev, ok := levelSeverity[strings.ToLower(f.Level)]; ok {
				b = increment(b, sev)
			}
		}
	}
	return b
}

func increment(b schemas.SeverityBucket, sev schemas.Severity) schemas.SeverityBucket {
	switch sev {
	case schemas.SeverityHigh:
		b.High++
	case schemas.SeverityMedium:
		b.Medium++
	case schemas.SeverityLow:
		b.Low++
	}
	return b
}
