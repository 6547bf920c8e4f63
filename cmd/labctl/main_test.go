package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"simulate", "timeline", "ask", "eval"}, names)
}

func TestSimulateCmd_RequiresTypologyAndLever(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"simulate", "--margin", "35"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "typology")
	assert.Contains(t, err.Error(), "lever")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"ask"})

	assert.Error(t, root.Execute())
}

func TestSimulateCmd_LeverFlagRepeats(t *testing.T) {
	cmd := newSimulateCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--lever", "Punta de góndola", "--lever", "Metro cuadrado", "--size", "Grande"}))

	levers, err := cmd.Flags().GetStringSlice("lever")
	require.NoError(t, err)
	assert.Equal(t, []string{"Punta de góndola", "Metro cuadrado"}, levers)
}
