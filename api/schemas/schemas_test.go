package schemas_test

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// getTestTime provides a fixed timestamp in a non-UTC zone.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789+02:00")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func TestParseScriptType(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		input    string
		expected schemas.ScriptType
		wantErr  bool
	}{
		{"", schemas.ScriptExternal, false},
		{"external", schemas.ScriptExternal, false},
		{"inline", schemas.ScriptInline, false},
		{"dynamic", schemas.ScriptDynamic, false},
		{"module", "", true},
		{"INLINE", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := schemas.ParseScriptType(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid script type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestRiskLevel_Rank(t *testing.T) {
	t.Parallel()
	assert.Less(t, schemas.RiskLow.Rank(), schemas.RiskMedium.Rank())
	assert.Less(t, schemas.RiskMedium.Rank(), schemas.RiskHigh.Rank())
	assert.Zero(t, schemas.RiskLevel("CRITICAL").Rank(), "Unknown levels rank below LOW")
}

// TestNewAnalysisReport checks the empty report encodes arrays, not nulls,
// and that optional sections are left out.
func TestNewAnalysisReport(t *testing.T) {
	t.Parallel()
	ts := getTestTime(t)
	report := schemas.NewAnalysisReport(ts)
	assert.Equal(t, time.UTC, report.Timestamp.Location())
	assert.True(t, ts.Equal(report.Timestamp))

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"files", "networkCalls", "apiEndpoints", "dangerousPatterns", "taintSources", "errors"} {
		assert.Equal(t, []interface{}{}, raw[key], "%s should encode as an empty array", key)
	}
	assert.NotContains(t, raw, "requestSpecs")
	assert.NotContains(t, raw, "hardcodedTokens")

	summary, ok := raw["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{}, summary["byRisk"])
}
