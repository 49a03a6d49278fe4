package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph/launch"
	"pipelined.dev/graph/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(registry.Default())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute("list")
	require.NoError(t, err)
	assert.Contains(t, out, "tonesrc\n")
	assert.Contains(t, out, "wavsink\n")
}

func TestListFactory(t *testing.T) {
	tests := []struct {
		description string
		args        []string
		contains    []string
		err         error
	}{
		{
			description: "source",
			args:        []string{"list", "tonesrc", "rate=8000"},
			contains: []string{
				"Pad Templates for tonesrc:",
				"  SRC template: 'src'",
				"    Availability: Always",
				"      audio/x-raw",
				"        rate           : (int)8000",
			},
		},
		{
			description: "request pads",
			args:        []string{"list", "tee"},
			contains: []string{
				"  SINK template: 'sink'",
				"  SRC template: 'src_%u'",
				"    Availability: On request",
				"      ANY",
			},
		},
		{
			description: "sometimes pads",
			args:        []string{"list", "wavsrc", "location=in.wav"},
			contains:    []string{"    Availability: Sometimes"},
		},
		{
			description: "required property",
			args:        []string{"list", "wavsrc"},
			err:         registry.ErrInvalidProperty,
		},
		{
			description: "malformed property",
			args:        []string{"list", "tee", "name"},
			err:         registry.ErrInvalidProperty,
		},
		{
			description: "unknown factory",
			args:        []string{"list", "speakers"},
			err:         registry.ErrUnknownFactory,
		},
	}
	for _, test := range tests {
		out, err := execute(test.args...)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), "%s: %v", test.description, err)
			continue
		}
		require.NoError(t, err, test.description)
		for _, s := range test.contains {
			assert.Contains(t, out, s, test.description)
		}
	}
}

func TestLaunch(t *testing.T) {
	tests := []struct {
		description string
		args        []string
		contains    []string
		err         error
	}{
		{
			description: "eos",
			args:        []string{"tonesrc", "num-buffers=3", "!", "fakesink"},
			contains: []string{
				"Setting graph to PLAYING",
				"End-Of-Stream reached.",
			},
		},
		{
			description: "verbose",
			args:        []string{"-v", "tonesrc", "num-buffers=1", "!", "fakesink"},
			contains: []string{
				"In NULL state:",
				"Caps for the fakesink",
				"      audio/x-raw",
				"bus.Message",
				"End-Of-Stream reached.",
			},
		},
		{
			description: "no description",
			err:         errNoDescription,
		},
		{
			description: "invalid description",
			args:        []string{"tonesrc", "!"},
			err:         launch.ErrSyntax,
		},
	}
	for _, test := range tests {
		out, err := execute(test.args...)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), "%s: %v", test.description, err)
			continue
		}
		require.NoError(t, err, test.description)
		for _, s := range test.contains {
			assert.Contains(t, out, s, test.description)
		}
	}
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: cli\nlaunch: tonesrc num-buffers=2 ! fakesink\n"), 0o644))
	out, err := execute("--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "End-Of-Stream reached.")

	_, err = execute("--config", path, "tonesrc")
	assert.Error(t, err)
}
