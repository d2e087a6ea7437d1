package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `id: demo
name: Demo
nodes:
  - id: start
    type: start
  - id: ask
    type: prompt
    data:
      prompt: What should we build?
  - id: end
    type: end
connections:
  - {id: c1, from: start, to: ask}
  - {id: c2, from: ask, to: end}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", writeSample(t, sample))
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "start --> ask")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeSample(t, sample))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (3 nodes, 2 connections)")

	broken := writeSample(t, "id: demo\nnodes:\n  - id: ask\n    type: prompt\n")
	out, err = execute(t, "validate", broken)
	assert.ErrorContains(t, err, "validation error")
	assert.Contains(t, out, "  - ")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "arbor version")
}
