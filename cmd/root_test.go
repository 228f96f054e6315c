package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)

	expected := []string{"collect", "tiger", "shops", "prepare", "score", "train", "predict", "map", "serve", "dlq", "runs", "store"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "compass", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCollectCommand_HasStages(t *testing.T) {
	names := subcommandNames(collectCmd)
	for _, name := range []string{"counties", "centroids", "places", "mobility", "rent", "trends", "all"} {
		assert.True(t, names[name], "collect should have subcommand %q", name)
	}
}

func TestCollectCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"input", "output", "in-place", "force"} {
		assert.NotNil(t, collectCmd.PersistentFlags().Lookup(name), "collect should have --%s", name)
	}
}

func TestScoreCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "output", "in-place", "features", "xlsx", "top", "save"} {
		assert.NotNil(t, scoreCmd.Flags().Lookup(name), "score should have --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestDLQCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(dlqCmd)
	for _, name := range []string{"list", "retry", "purge"} {
		assert.True(t, names[name], "dlq should have subcommand %q", name)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(runsCmd)
	for _, name := range []string{"list", "show", "stats", "check"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
	require.NotNil(t, runsCheckCmd.Flags().Lookup("hours"))
}

func TestMapCommand_Defaults(t *testing.T) {
	flag := mapCmd.Flags().Lookup("column")
	require.NotNil(t, flag)
	assert.Equal(t, "success_score", flag.DefValue)
}
