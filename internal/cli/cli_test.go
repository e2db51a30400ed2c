package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/docsage/internal/facts"
)

func TestNormalizeExts(t *testing.T) {
	got := normalizeExts([]string{"md", ".TXT", " ", " rst "})
	assert.Equal(t, []string{".md", ".txt", ".rst"}, got)
}

func TestPrintFacts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printFacts(&buf, []facts.Fact{
		{Key: "RATE LIMIT", Value: "100/min"},
		{Key: "SUPPORT", Value: "help@example.com"},
	}))

	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "RATE LIMIT")
	assert.Contains(t, out, "help@example.com")
}

func TestPrintFactsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printFacts(&buf, nil))
	assert.Equal(t, "no facts\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"ingest"},
		{"fact", "set"},
		{"fact", "delete"},
		{"fact", "list"},
		{"ask"},
		{"learn"},
		{"stats"},
		{"memory", "clear"},
		{"backup", "run"},
		{"backup", "restore"},
	} {
		cmd, _, err := RootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
