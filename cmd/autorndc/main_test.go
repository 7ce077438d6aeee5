package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autorndc/internal/batch"
	"autorndc/internal/checkpoint"
	"autorndc/internal/classify"
	"autorndc/internal/config"
	"autorndc/internal/engine"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
	"autorndc/internal/history"
)

func setup(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Paths.LogDir = dir
	cfg.Paths.CheckpointDir = dir
	cfg.History.Path = filepath.Join(dir, "historial.db")
	t.Cleanup(func() { cfg = nil })
	return dir
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func TestCheckpointShowAndClear(t *testing.T) {
	dir := setup(t)

	store, err := checkpoint.Open(checkpoint.BackendFile, dir, fields.KindManifest.Slug())
	require.NoError(t, err)
	require.NoError(t, store.Mark("M2"))
	require.NoError(t, store.Mark("M1"))
	require.NoError(t, store.Close())

	cmd, out := testCmd()
	require.NoError(t, checkpointShowCmd.RunE(cmd, []string{"manifiestos"}))
	assert.Equal(t, "2 manifiestos procesados\nM1\nM2\n", out.String())

	cmd, out = testCmd()
	require.NoError(t, checkpointClearCmd.RunE(cmd, []string{"manifiestos"}))
	assert.Contains(t, out.String(), "(2 códigos)")

	cmd, out = testCmd()
	require.NoError(t, checkpointShowCmd.RunE(cmd, []string{"manifiestos"}))
	assert.Equal(t, "0 manifiestos procesados\n", out.String())
}

func TestCheckpointRejectsUnknownKind(t *testing.T) {
	setup(t)
	cmd, _ := testCmd()
	assert.Error(t, checkpointShowCmd.RunE(cmd, []string{"facturas"}))
}

func TestAnalyzeRaw(t *testing.T) {
	dir := setup(t)
	path := filepath.Join(dir, "log_remesas.json")

	rec := eventlog.NewRecorder(fields.KindRemesa, eventlog.NewJSON(path))
	require.NoError(t, rec.Alert("R1", "CRE230", "Error CRE230: fecha de salida"))
	require.NoError(t, rec.Success("R1", "Remesa cumplida"))
	require.NoError(t, rec.Close())

	analyzeRaw = true
	t.Cleanup(func() { analyzeRaw = false })

	cmd, out := testCmd()
	require.NoError(t, analyzeCmd.RunE(cmd, []string{path}))
	assert.Contains(t, out.String(), "# Análisis de log_remesas.json")
	assert.Contains(t, out.String(), "CRE230")
}

func TestAnalyzeMissingFile(t *testing.T) {
	dir := setup(t)
	cmd, _ := testCmd()
	assert.Error(t, analyzeCmd.RunE(cmd, []string{filepath.Join(dir, "nope.json")}))
}

func TestHistoryListsRuns(t *testing.T) {
	setup(t)
	historyRaw = true
	t.Cleanup(func() { historyRaw, historyRun = false, "" })

	cmd, out := testCmd()
	require.NoError(t, historyCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Sin ejecuciones registradas")

	store, err := history.NewStore(cfg.History.Path)
	require.NoError(t, err)
	rep := batch.Report{
		RunID: "run-1", Kind: fields.KindRemesa, Started: time.Now(),
		Total: 3, Succeeded: 2, Failed: 1, Cancelled: true, Duration: time.Minute,
	}
	require.NoError(t, store.RecordRun(context.Background(), rep))
	require.NoError(t, store.RecordDocument(context.Background(), "run-1", fields.KindRemesa, "R1", engine.Outcome{
		Status: engine.StatusTerminal, Code: classify.CRE230, Reason: "fecha | hora\ninválida", Retries: 2,
	}))
	require.NoError(t, store.Close())

	cmd, out = testCmd()
	require.NoError(t, historyCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "| `run-1` | remesas |")
	assert.Contains(t, out.String(), "| 3 | 2 | 1 | 0 | cancelado | 1m0s |")

	historyRun = "run-1"
	cmd, out = testCmd()
	require.NoError(t, historyCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "# Ejecución `run-1`")
	assert.Contains(t, out.String(), "| R1 | terminal | CRE230 | 2 | fecha \\| hora inválida |")
}

func TestHistoryRendersStyledTable(t *testing.T) {
	setup(t)
	cmd, out := testCmd()
	require.NoError(t, historyCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Historial")
	assert.Contains(t, out.String(), "Sin ejecuciones registradas")
}

func TestVersion(t *testing.T) {
	setup(t)
	cmd, out := testCmd()
	require.NoError(t, versionCmd.RunE(cmd, nil))
	assert.Equal(t, "autorndc dev\n", out.String())
}

func TestReportMarkdown(t *testing.T) {
	rep := batch.Report{RunID: "abc", Total: 4, Skipped: 1, Succeeded: 2, Failed: 1, Aborted: true}
	md := reportMarkdown(rep, eventlog.Stats{}, fields.KindManifest, []string{"logs/x.csv"})

	assert.True(t, strings.HasPrefix(md, "# MANIFIESTO: Abortado"))
	assert.Contains(t, md, "| 4 | 1 | 2 | 1 | 0 |")
	assert.Contains(t, md, "`abc`")
}

func TestApplyRunFlags(t *testing.T) {
	setup(t)
	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&runColumn, "column", 0, "")
	cmd.Flags().BoolVar(&runHeadless, "headless", false, "")

	assert.Equal(t, 8, applyRunFlags(cmd, fields.KindManifest))
	assert.Equal(t, 9, applyRunFlags(cmd, fields.KindRemesa))
	assert.False(t, cfg.Browser.Headless)

	require.NoError(t, cmd.Flags().Set("column", "2"))
	require.NoError(t, cmd.Flags().Set("headless", "true"))
	assert.Equal(t, 2, applyRunFlags(cmd, fields.KindRemesa))
	assert.True(t, cfg.Browser.Headless)

	runColumn, runHeadless = 0, false
}

func TestRunRequiresCodes(t *testing.T) {
	dir := setup(t)
	runFile = filepath.Join(dir, "missing.txt")
	t.Cleanup(func() { runFile = "" })

	cmd := &cobra.Command{}
	err := runBatch(cmd, []string{"remesas"})
	assert.Error(t, err)
}
