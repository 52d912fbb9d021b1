package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"reload_structural", "switch_map_dynamic"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSummarize_EmptyRun(t *testing.T) {
	s, err := ParseScenario([]byte("name: empty\nevents:\n  - {kind: module, module: app}\n"))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)

	sum := Summarize("empty", result)
	assert.Equal(t, int64(1), sum.Seq)
	assert.Empty(t, sum.Tracks)
	assert.NotNil(t, sum.Tracks)
	assert.NotNil(t, sum.OpenSubscriptions)
	assert.Empty(t, sum.Changes)
}
