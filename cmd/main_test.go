package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/beyondbrewing/brewery-docstore/docstore"
	"github.com/beyondbrewing/brewery-docstore/pkg/logger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		logger.SetDefault(logger.Nop())
	})

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI(t *testing.T) {
	tests := []struct {
		name   string
		engine []string
	}{
		{"log", []string{"--engine", "log"}},
		{"cursor btree", []string{"--engine", "cursor", "--layout", "btree"}},
		{"cursor lsm", []string{"--engine", "cursor", "--layout", "lsm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := append([]string{"--dir", t.TempDir(), "--db", "cli.couch"}, tt.engine...)
			with := func(args ...string) []string {
				return append(append([]string(nil), args...), base...)
			}

			out, err := run(t, with("put", "doc-1", "hello", "--rev-seq", "7", "--rev-meta", "0a0b", "--content-meta", "3")...)
			require.NoError(t, err)
			assert.Contains(t, out, "saved doc-1")

			out, err = run(t, with("get", "doc-1")...)
			require.NoError(t, err)
			assert.Contains(t, out, "rev seq:      7")
			assert.Contains(t, out, "rev meta:     0a0b")
			assert.Contains(t, out, "content meta: 0x3")
			assert.Contains(t, out, "body:         hello")

			out, err = run(t, with("get", "doc-1", "--meta-only")...)
			require.NoError(t, err)
			assert.NotContains(t, out, "body:")

			_, err = run(t, with("get", "missing")...)
			assert.ErrorIs(t, err, docstore.ErrDocNotFound)

			out, err = run(t, with("info")...)
			require.NoError(t, err)
			assert.Contains(t, out, "features:")

			_, err = run(t, with("compact")...)
			require.NoError(t, err)
		})
	}
}

func TestCLIChanges(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--dir", dir, "--engine", "log"}

	for _, id := range []string{"a", "b", "c"} {
		_, err := run(t, append([]string{"put", id, "body"}, base...)...)
		require.NoError(t, err)
	}

	out, err := run(t, append([]string{"changes", "1"}, base...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "\ta\t")
	assert.Contains(t, out, "2\tb\t")
	assert.Contains(t, out, "3\tc\t")

	_, err = run(t, "changes", "--dir", dir, "--engine", "cursor")
	assert.Error(t, err)
}

func TestCLIRelocatingCompact(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "put", "k", "v", "--dir", dir, "--db", "old.couch")
	require.NoError(t, err)

	out, err := run(t, "compact", "new.couch", "--dir", dir, "--db", "old.couch")
	require.NoError(t, err)
	assert.Contains(t, out, "new.couch")

	out, err = run(t, "get", "k", "--dir", dir, "--db", "new.couch")
	require.NoError(t, err)
	assert.Contains(t, out, "body:         v")
}

func TestCLIBench(t *testing.T) {
	for _, engine := range []string{"log", "cursor"} {
		t.Run(engine, func(t *testing.T) {
			out, err := run(t, "bench", "--dir", t.TempDir(), "--engine", engine,
				"--docs", "50", "--batch", "20", "--dbs", "3", "--body-size", "16",
				"--durability", "relaxed")
			require.NoError(t, err)
			assert.Contains(t, out, "saved:        150")
			assert.Contains(t, out, "failed:       0")
			assert.Contains(t, out, "batches:      9")
		})
	}
}

func TestCLIErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"unknown engine", []string{"info", "--engine", "tape"}},
		{"bad layout", []string{"info", "--engine", "cursor", "--layout", "hash"}},
		{"bad durability", []string{"info", "--durability", "maybe"}},
		{"bad log level", []string{"info", "--log-level", "loud"}},
		{"bad rev meta", []string{"put", "k", "v", "--rev-meta", "zz"}},
		{"missing database", []string{"get", "k"}},
		{"bench without docs", []string{"bench", "--docs", "0"}},
		{"put arity", []string{"put", "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--dir", dir)...)
			assert.Error(t, err)
		})
	}
}
