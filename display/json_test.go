package display

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ls"}
	cmd.Flags().Bool("json", false, "")
	return cmd
}

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv(OutputEnv, "")

	cmd := newCmd()
	assert.False(t, ShouldOutputJSON(cmd))

	require.NoError(t, cmd.Flags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(cmd))
}

func TestShouldOutputJSON_Env(t *testing.T) {
	t.Setenv(OutputEnv, "JSON")
	assert.True(t, ShouldOutputJSON(newCmd()))
	assert.True(t, ShouldOutputJSON(nil))

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(cmd), "explicit flag beats the environment")
}

func TestMarshalJSON(t *testing.T) {
	data, err := MarshalJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
