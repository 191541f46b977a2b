package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "features", "neighbors", "fetch", "runs", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gaa", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"geometry", "attributes", "key", "vars", "dataset", "no-store", "labels-out"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run command should have --%s flag", name)
	}

	k := runCmd.Flags().Lookup("k")
	require.NotNil(t, k)
	assert.Equal(t, "0", k.DefValue)

	format := runCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)
}

func TestFeaturesCommand_Flags(t *testing.T) {
	for _, name := range []string{"geometry", "attributes", "key", "collinear-threshold", "standardize"} {
		flag := featuresCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "features command should have --%s flag", name)
	}
}

func TestNeighborsCommand_Flags(t *testing.T) {
	rule := neighborsCmd.Flags().Lookup("rule")
	require.NotNil(t, rule)
	assert.Equal(t, "queen", rule.DefValue)

	region := neighborsCmd.Flags().Lookup("region")
	require.NotNil(t, region)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "regions", "rm"}
	for _, name := range expected {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)

	for _, name := range []string{"status", "dataset", "offset"} {
		assert.NotNil(t, runsListCmd.Flags().Lookup(name), "runs list should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
