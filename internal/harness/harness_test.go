package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestRun_Passes(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "bound", result.Changes[0].Kind)
	assert.Equal(t, "t", result.Changes[0].Key)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	s.Assertions = []Assertion{
		{Type: AssertTrack, Key: "t", Version: intPtr(3), Shape: "other"},
		{Type: AssertTrackAbsent, Key: "t"},
		{Type: AssertTrack, Key: "missing"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "version=3")
	assert.Contains(t, result.Errors[0], "shape=source")
	assert.Contains(t, result.Errors[1], "track_absent")
	assert.Contains(t, result.Errors[2], "no track")
}

func TestEvaluateAssertions_Indexes(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTrack, Key: "t", Bound: boolPtr(true), Dynamic: boolPtr(false), Parent: strPtr("")},
		{Type: AssertNodeShape, Node: "src", Shape: "source"},
		{Type: AssertEmissionCount, Key: "t", Count: intPtr(1)},
	})
	require.Len(t, errs, 1)

	var ae *AssertionError
	require.ErrorAs(t, errs[0], &ae)
	assert.Equal(t, 2, ae.Index)
	assert.Equal(t, "1 emissions", ae.Expected)
	assert.Equal(t, "0 emissions", ae.Actual)
}

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
