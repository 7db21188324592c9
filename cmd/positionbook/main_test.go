package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	r, err := parseRange("2026-02-01", "02/10/2026")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), r.To)

	r, err = parseRange("", "")
	require.NoError(t, err)
	assert.True(t, r.From.IsZero())
	assert.True(t, r.To.IsZero())

	_, err = parseRange("yesterday", "")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
}

func TestLoadConfig_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: tape\n"), 0o600))

	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nav.txt")
	require.NoError(t, os.WriteFile(path, []byte("2026-02-10, 100\n"), 0o600))

	data, err := readInput(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10, 100\n", string(data))

	_, err = readInput(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestImportCmd_RequiresFile(t *testing.T) {
	cmd := &importCmd{}
	f := flag.NewFlagSet("import", flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(nil))

	assert.Equal(t, subcommands.ExitUsageError, cmd.Execute(context.Background(), f))
}

// useMemoryConfig points the commands at an in-memory book for one test.
func useMemoryConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o600))

	prev := *configPath
	*configPath = path
	t.Cleanup(func() { *configPath = prev })
	return dir
}

func TestImportCmd_DetectOnly(t *testing.T) {
	dir := useMemoryConfig(t)
	file := filepath.Join(dir, "flat.csv")
	require.NoError(t, os.WriteFile(file, []byte("Ticker,Quantity,Last,Avg Price\nAAPL,100,180,150\n"), 0o600))

	cmd := &importCmd{}
	f := flag.NewFlagSet("import", flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse([]string{"-detect", file}))
	assert.Equal(t, subcommands.ExitSuccess, cmd.Execute(context.Background(), f), "detect needs no account")

	cmd = &importCmd{}
	f = flag.NewFlagSet("import", flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse([]string{file}))
	assert.Equal(t, subcommands.ExitFailure, cmd.Execute(context.Background(), f), "unlabeled rows need -account")
}

func TestResetCmd(t *testing.T) {
	useMemoryConfig(t)

	tests := []struct {
		args []string
		want subcommands.ExitStatus
	}{
		{nil, subcommands.ExitUsageError},
		{[]string{"-account", "ALL"}, subcommands.ExitFailure},
		{[]string{"-account", "ACC1"}, subcommands.ExitSuccess},
	}
	for _, tt := range tests {
		cmd := &resetCmd{}
		f := flag.NewFlagSet("reset", flag.ContinueOnError)
		cmd.SetFlags(f)
		require.NoError(t, f.Parse(tt.args))
		assert.Equal(t, tt.want, cmd.Execute(context.Background(), f), "%v", tt.args)
	}
}

func TestSeriesCmd_RejectsBadDate(t *testing.T) {
	cmd := &seriesCmd{}
	f := flag.NewFlagSet("series", flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse([]string{"-from", "soon"}))

	assert.Equal(t, subcommands.ExitUsageError, cmd.Execute(context.Background(), f))
}

func TestCommandNames(t *testing.T) {
	names := map[string]subcommands.Command{
		"serve":       &serveCmd{},
		"import":      &importCmd{},
		"positions":   &positionsCmd{},
		"series":      &seriesCmd{},
		"paste-nav":   &pasteNavCmd{},
		"paste-bench": &pasteBenchCmd{},
		"clear-nav":   &clearNavCmd{},
		"reset":       &resetCmd{},
	}
	for name, cmd := range names {
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Synopsis())
		assert.Contains(t, cmd.Usage(), name)
	}
}
