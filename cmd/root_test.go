// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPristineRootCmd builds a fresh root command so tests do not share
// flag state with the package-level instance.
func newPristineRootCmd() *cobra.Command {
	testRoot := &cobra.Command{
		Use:     "deepsurf",
		Short:   "Deepsurf is an LLM-driven browser automation agent.",
		Version: Version,
	}
	testRoot.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	testRoot.AddCommand(newRunCmd())
	return testRoot
}

func TestRootCmd_VersionFlag(t *testing.T) {
	testRootCmd := newPristineRootCmd()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--version"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	testRootCmd := newPristineRootCmd()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "browser automation agent")
}

func TestRunCmd_RequiresObjective(t *testing.T) {
	testRootCmd := newPristineRootCmd()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"run"})

	err := testRootCmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}
