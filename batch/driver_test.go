package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"parquet2json/convert"
	"parquet2json/source"
	"parquet2json/target"
	"parquet2json/utils"
)

type candle struct {
	Day   int32   `parquet:"day"`
	Close float64 `parquet:"close"`
}

func writeCandles(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[candle](f)
	rows := make([]candle, n)
	for i := range rows {
		rows[i] = candle{Day: int32(i), Close: 100 + float64(i)}
	}
	if n > 0 {
		_, err = w.Write(rows)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// fakeConverter fails for the listed input base names and records every call.
type fakeConverter struct {
	failFor map[string]bool
	calls   []string
}

func (f *fakeConverter) Convert(_ context.Context, inputPath string, outputPath string) (convert.Result, error) {
	f.calls = append(f.calls, filepath.Base(inputPath))
	if f.failFor[filepath.Base(inputPath)] {
		return convert.Result{}, &convert.Error{Kind: convert.KindSourceRead, Path: inputPath, Err: errors.New("broken")}
	}
	if err := os.WriteFile(outputPath, []byte("[\n\n]\n"), 0o644); err != nil {
		return convert.Result{}, err
	}
	return convert.Result{Rows: 0, Succeeded: true}, nil
}

type memoryRecorder struct {
	entries []target.ReportEntry
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, entry target.ReportEntry) error {
	m.entries = append(m.entries, entry)
	return m.err
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	previous := *utils.Logger
	utils.SetLogger(zap.New(core))
	t.Cleanup(func() { *utils.Logger = previous })
	return logs
}

func newLocal(t *testing.T, dir string) source.Source {
	t.Helper()
	src, err := source.NewLocalSource(dir)
	require.NoError(t, err)
	return src
}

func TestRunSkipsMissingInputs(t *testing.T) {
	input, output := t.TempDir(), filepath.Join(t.TempDir(), "json")
	writeCandles(t, filepath.Join(input, "1d", "2021.parquet"), 3)

	conv := &fakeConverter{}
	driver := NewDriver(newLocal(t, input), conv, Options{
		Timeframes: []string{"1d"},
		Years:      []int{2020, 2021},
		OutputDir:  output,
	}, nil)
	summary, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 2, Succeeded: 1, Skipped: 1, OutputDir: summary.OutputDir}, summary)
	assert.True(t, summary.OK())
	assert.True(t, filepath.IsAbs(summary.OutputDir))
	assert.Equal(t, []string{"2021.parquet"}, conv.calls)
	_, statErr := os.Stat(filepath.Join(output, "1d", "2020.json"))
	assert.True(t, os.IsNotExist(statErr), "no output for a skipped pair")
	_, statErr = os.Stat(filepath.Join(output, "1d", "2021.json"))
	assert.NoError(t, statErr)
}

func TestRunIsolatesFailures(t *testing.T) {
	input := t.TempDir()
	for _, tf := range []string{"1d", "4h"} {
		for _, year := range []string{"2020", "2021", "2022"} {
			writeCandles(t, filepath.Join(input, tf, year+".parquet"), 1)
		}
	}
	conv := &fakeConverter{failFor: map[string]bool{"2020.parquet": true}}
	recorder := &memoryRecorder{err: errors.New("report database down")}
	driver := NewDriver(newLocal(t, input), conv, Options{
		Timeframes: []string{"1d", "4h"},
		Years:      []int{2020, 2021, 2022, 2023},
		OutputDir:  t.TempDir(),
	}, nil).WithRecorder(recorder)

	summary, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.False(t, summary.OK())
	assert.Len(t, conv.calls, 6, "every existing pair is attempted")

	require.Len(t, recorder.entries, 8, "recorder failures never stop the run")
	first := recorder.entries[0]
	assert.Equal(t, StatusFailed, first.Status)
	assert.Equal(t, "1d/2020.parquet", first.Input)
	assert.Contains(t, first.Error, "broken")
	assert.Equal(t, driver.RunID(), first.RunID)
	assert.Equal(t, StatusSkipped, recorder.entries[3].Status)
}

func TestRunEndToEnd(t *testing.T) {
	input, output := t.TempDir(), t.TempDir()
	writeCandles(t, filepath.Join(input, "4h", "2022.parquet"), 2)
	writeCandles(t, filepath.Join(input, "4h", "2023.parquet"), 0)
	writeCandles(t, filepath.Join(input, "4h", "notes.parquet"), 1)

	conv, err := convert.New(convert.Options{Format: target.LineDelimited, BatchSize: 1, Verify: true})
	require.NoError(t, err)
	driver := NewDriver(newLocal(t, input), conv, Options{
		Timeframes: []string{"4h"},
		OutputDir:  output,
	}, nil)
	summary, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total, "years discovered from file names")
	assert.Equal(t, 2, summary.Succeeded)

	content, err := os.ReadFile(filepath.Join(output, "4h", "2022.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\"day\":0,\"close\":100}\n{\"day\":1,\"close\":101}\n", string(content))
	content, err = os.ReadFile(filepath.Join(output, "4h", "2023.json"))
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestRunVerboseGatesFileLines(t *testing.T) {
	input := t.TempDir()
	writeCandles(t, filepath.Join(input, "1d", "2021.parquet"), 1)

	for _, verbose := range []bool{false, true} {
		logs := observeLogs(t)
		var console bytes.Buffer
		pterm.DisableStyling()
		driver := NewDriver(newLocal(t, input), &fakeConverter{}, Options{
			Timeframes: []string{"1d"},
			Years:      []int{2020, 2021},
			OutputDir:  t.TempDir(),
			Verbose:    verbose,
			BatchSize:  64000,
		}, NewConsole(&console))
		_, err := driver.Run(context.Background())
		require.NoError(t, err)
		pterm.EnableStyling()

		infos := logs.FilterLevelExact(zap.InfoLevel).Len()
		if verbose {
			assert.Equal(t, 3, infos, "skip, converting and converted lines")
			assert.Equal(t, 1, logs.FilterMessage("Converted").Len())
		} else {
			assert.Zero(t, infos)
		}
		text := console.String()
		assert.Contains(t, text, "Timeframe 1d")
		assert.Contains(t, text, "Conversion Completed")
		assert.Contains(t, text, "64000")
		assert.Contains(t, text, "2020, 2021")
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	driver := NewDriver(newLocal(t, t.TempDir()), &fakeConverter{}, Options{
		Timeframes: []string{"1d"},
		Years:      []int{2020},
		OutputDir:  t.TempDir(),
	}, nil)
	summary, err := driver.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Total)
}

func TestConsoleSummaryWithFailures(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()
	var out bytes.Buffer
	NewConsole(&out).Summary(Summary{Total: 3, Succeeded: 1, Failed: 1, Skipped: 1, OutputDir: "/tmp/json"})
	text := out.String()
	assert.Contains(t, text, "Conversion Finished With Failures")
	assert.Contains(t, text, "/tmp/json")
}
