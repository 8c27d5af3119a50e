package main

import (
	"bytes"
	"testing"

	"github.com/superfm831010/SQLBothp/common/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runParse(t *testing.T, args ...string) parseOutput {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(append([]string{"parse"}, args...))
	require.NoError(t, rootCmd.Execute())

	out, err := utils.FromJSON[parseOutput](buf.String())
	require.NoError(t, err)
	return out
}

func TestParseCommand(t *testing.T) {
	out := runParse(t, "show sales by region /predict 42")
	assert.Equal(t, "predict", out.Command)
	assert.Equal(t, "show sales by region", out.Text)
	require.NotNil(t, out.TargetID)
	assert.Equal(t, int64(42), *out.TargetID)
	assert.Empty(t, out.Error)

	out = runParse(t, "compare", "/analysis", "and", "/predict")
	assert.Empty(t, out.Command)
	assert.Equal(t, "compare /analysis and /predict", out.Text)
	assert.NotEmpty(t, out.Error)
	assert.ElementsMatch(t, []string{"/analysis", "/predict"}, out.Tokens)
}

func TestParseCommand_RequiresText(t *testing.T) {
	rootCmd.SetArgs([]string{"parse"})
	assert.Error(t, rootCmd.Execute())
}
