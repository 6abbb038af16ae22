package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/kexpand/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func intFlag(cmd *cli.Command, name string) *cli.IntFlag {
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.IntFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kexpand.yaml")
	body := fmt.Sprintf(`database:
  path: %s
logging:
  level: error
models:
  providers:
    - provider: mock
      model: mock-model
  embedding:
    provider: mock
    model: mock-embed
crawl:
  respect_robots: false
`, filepath.Join(dir, "db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"kexpand"}, args...))
	return out.String(), err
}

func TestReembedCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "reembed")

	t.Run("batch-size has default value of 100", func(t *testing.T) {
		f := intFlag(cmd, "batch-size")
		require.NotNil(t, f)
		assert.Equal(t, 100, f.Value)
	})

	t.Run("max-retries has default value of 3", func(t *testing.T) {
		f := intFlag(cmd, "max-retries")
		require.NotNil(t, f)
		assert.Equal(t, 3, f.Value)
	})

	t.Run("workers has default value of 4", func(t *testing.T) {
		f := intFlag(cmd, "workers")
		require.NotNil(t, f)
		assert.Equal(t, 4, f.Value)
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		_, err := runApp(t, "--log-level", "loud", "history")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := runApp(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "history")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open config file")
	})

	t.Run("log file receives output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "kexpand.log")
		_, err := runApp(t, "--config", writeConfig(t), "--log-level", "debug", "--log-file", logFile, "history")
		require.NoError(t, err)

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})
}

func TestIngestCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := runApp(t, "--config", cfgPath, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locator is required")

	_, err = runApp(t, "--config", cfgPath, "ingest", "--type", "hologram", "x")
	assert.ErrorIs(t, err, core.ErrInvalidSourceType)

	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Knowledge graphs connect summaries of ingested sources."), 0o644))

	out, err := runApp(t, "--config", cfgPath, "ingest", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    new")
	assert.Contains(t, out, "1/1 succeeded")

	out, err = runApp(t, "--config", cfgPath, "history", "--job-type", "upload")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 jobs")

	out, err = runApp(t, "--config", cfgPath, "reembed", "--report-interval", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Reembedded 1/1 nodes")
}

func TestHistoryCommand_InvalidJobType(t *testing.T) {
	_, err := runApp(t, "--config", writeConfig(t), "history", "--job-type", "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job type")
}

func TestCrawlCommand_RequiresSeeds(t *testing.T) {
	_, err := runApp(t, "--config", writeConfig(t), "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed URL is required")
}

func TestInferSourceType(t *testing.T) {
	assert.Equal(t, core.SourceTypeWeb, inferSourceType("https://example.com/a"))
	assert.Equal(t, core.SourceTypeWeb, inferSourceType("HTTP://example.com"))
	assert.Equal(t, core.SourceTypeDocument, inferSourceType("/tmp/report.pdf"))
}
