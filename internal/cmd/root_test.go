package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmdHelp(t *testing.T) {
	// Capture output
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	// Test help command
	rootCmd.SetArgs([]string{"--help"})
	err := rootCmd.Execute()

	assert.NoError(t, err)
	output := buf.String()

	// Check that help output contains expected elements
	assert.Contains(t, output, "Bakery costing MCP server")
	assert.Contains(t, output, "Usage:")
	assert.Contains(t, output, "bakery-costing-mcp-server [flags]")
	assert.Contains(t, output, "Flags:")
	assert.Contains(t, output, "--stdio")
	assert.Contains(t, output, "--fetch-sheets")
	assert.Contains(t, output, "list_products")
}

func TestRootCmdVersion(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	// rootCmd is shared across tests; a prior --help run leaves the help
	// flag set, which would short-circuit --version.
	if f := rootCmd.Flags().Lookup("help"); f != nil {
		if err := f.Value.Set("false"); err != nil {
			t.Fatal(err)
		}
	}

	rootCmd.SetArgs([]string{"--version"})
	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "built at")
}
