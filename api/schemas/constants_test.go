package schemas_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeshield-25/codeshield-web/api/schemas"
)

// TestConstants pins the wire values of every exported enum.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		// Scan kinds
		{"ScanKindOpenSource", schemas.ScanKindOpenSource, "open_source"},
		{"ScanKindCodeSecurity", schemas.ScanKindCodeSecurity, "code_security"},

		// Severities
		{"SeverityHigh", schemas.SeverityHigh, "high"},
		{"SeverityMedium", schemas.SeverityMedium, "medium"},
		{"SeverityLow", schemas.SeverityLow, "low"},

		// Session states
		{"StateIdle", schemas.StateIdle, "idle"},
		{"StateScanning", schemas.StateScanning, "scanning"},
		{"StateCompleted", schemas.StateCompleted, "completed"},
		{"StateFailed", schemas.StateFailed, "failed"},

		// LLM ModelTiers
		{"TierFast", schemas.TierFast, "fast"},
		{"TierPowerful", schemas.TierPowerful, "powerful"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, fmt.Sprintf("%v", tc.constant))
		})
	}
}

func TestParseScanKind(t *testing.T) {
	t.Parallel()
	k, ok := schemas.ParseScanKind(" Open_Source ")
	assert.True(t, ok)
	assert.Equal(t, schemas.ScanKindOpenSource, k)

	_, ok = schemas.ParseScanKind("secrets")
	assert.False(t, ok)

	assert.Equal(t, []schemas.ScanKind{schemas.ScanKindOpenSource, schemas.ScanKindCodeSecurity}, schemas.ScanKinds)
}

func TestSessionState_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, schemas.StateIdle.Terminal())
	assert.False(t, schemas.StateScanning.Terminal())
	assert.True(t, schemas.StateCompleted.Terminal())
	assert.True(t, schemas.StateFailed.Terminal())
}

func TestSeverityBuckets(t *testing.T) {
	t.Parallel()
	stats := schemas.CombinedScanStats{
		OpenSource:   schemas.SeverityBucket{High: 1, Medium: 2, Low: 3},
		CodeSecurity: schemas.SeverityBucket{High: 4, Low: 1},
	}
	assert.Equal(t, schemas.SeverityBucket{High: 5, Medium: 2, Low: 4}, stats.Total())
	assert.Equal(t, 11, stats.Total().Total())
}

func TestTeam_HasMember(t *testing.T) {
	t.Parallel()
	team := schemas.Team{Members: []string{"u1", "u2"}}
	assert.True(t, team.HasMember("u2"))
	assert.False(t, team.HasMember("u3"))
}
