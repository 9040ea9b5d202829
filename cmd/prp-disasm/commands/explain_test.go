package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExplainKnownHeuristic(t *testing.T) {
	buf := new(bytes.Buffer)
	flagFormat = "terminal"
	flagNoColor = true
	flagRules = ""
	flagDisableHeurs = nil

	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"explain", "process-injection", "--no-color"})
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "process-injection")
	require.Contains(t, out, "injection")
	require.Contains(t, out, "Description:")
	require.Contains(t, out, "APIs:")
	require.Contains(t, out, "VirtualAllocEx")
}

func TestExplainBuiltinHeuristic(t *testing.T) {
	buf := new(bytes.Buffer)
	flagFormat = "terminal"
	flagNoColor = true
	flagRules = ""
	flagDisableHeurs = nil

	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"explain", "packed"})
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "packed")
	require.Contains(t, out, "entropy")
}

func TestExplainJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	flagFormat = "terminal"
	flagRules = ""
	flagDisableHeurs = nil

	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"explain", "process-injection", "--format", "json"})
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)

	err := rootCmd.Execute()
	require.NoError(t, err)

	var info explainInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	require.Equal(t, "process-injection", info.ID)
	require.Equal(t, "injection", info.Category)
	require.Equal(t, 2, info.MinMatches)
	require.NotEmpty(t, info.APIs)
}

func TestExplainNotFound(t *testing.T) {
	buf := new(bytes.Buffer)
	flagFormat = "terminal"
	flagRules = ""
	flagDisableHeurs = nil

	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"explain", "nonexistent-999"})
	defer rootCmd.SetArgs(nil)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
