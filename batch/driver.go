// Package batch converts every {timeframe}/{year}.parquet of a source into {output}/{timeframe}/{year}.json.
package batch

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parquet2json/convert"
	"parquet2json/source"
	"parquet2json/target"
	"parquet2json/utils"
)

// log a convenience wrapper to shorten code lines
var log = utils.Logger

// Outcome statuses stored in the run report.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Converter converts one local input file into one output file.
type Converter interface {
	Convert(ctx context.Context, inputPath string, outputPath string) (convert.Result, error)
}

// Recorder receives the outcome of every pair, for example a Postgres run report.
type Recorder interface {
	Record(ctx context.Context, entry target.ReportEntry) error
}

// Options describe the pairs to convert. Format, Indent and BatchSize are shown in the header only;
// the converter is configured separately.
type Options struct {
	Format     target.Format
	Indent     *int
	BatchSize  int
	Timeframes []string
	// Years empty means the years are discovered per timeframe from the source listing
	Years     []int
	OutputDir string
	// Verbose enables the per-file lines
	Verbose bool
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	// OutputDir the absolute output directory
	OutputDir string
}

// OK is true when no attempted pair failed; skipped pairs do not count.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// Driver walks the (timeframe, year) pairs one at a time.
type Driver struct {
	source    source.Source
	converter Converter
	opts      Options
	console   *Console
	recorder  Recorder
	runID     string
}

// NewDriver creates a driver; console may be nil to suppress the header, sections and summary.
func NewDriver(src source.Source, converter Converter, opts Options, console *Console) *Driver {
	return &Driver{
		source:    src,
		converter: converter,
		opts:      opts,
		console:   console,
		runID:     uuid.NewString(),
	}
}

// WithRecorder adds an outcome recorder.
func (d *Driver) WithRecorder(r Recorder) *Driver {
	d.recorder = r
	return d
}

// RunID identifies this run in the report.
func (d *Driver) RunID() string {
	return d.runID
}

// Run converts all pairs. A failing pair never stops the others; the returned error is only set when
// the output directory cannot be created or the context is canceled.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	outputDir, err := filepath.Abs(d.opts.OutputDir)
	if err != nil {
		return Summary{}, errors.Wrapf(err, "failed to resolve the output directory %s", d.opts.OutputDir)
	}
	summary := Summary{OutputDir: outputDir}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return summary, errors.Wrapf(err, "failed to create the output directory %s", outputDir)
	}
	if d.console != nil {
		d.console.Header(d.opts, d.source.Location(), outputDir)
	}
	log.Debug("Run started", zap.String("runID", d.runID), zap.String("input", d.source.Location()),
		zap.String("output", outputDir))

	for _, timeframe := range d.opts.Timeframes {
		if err := ctx.Err(); err != nil {
			return d.finish(summary), errors.Wrap(err, "run canceled")
		}
		if d.console != nil {
			d.console.Section(timeframe)
		}
		timeframeDir := filepath.Join(outputDir, timeframe)
		if err := os.MkdirAll(timeframeDir, 0o755); err != nil {
			// the conversions below fail on their own and are counted as failures
			log.Error("Failed to create the timeframe directory", zap.String("dir", timeframeDir), zap.Error(err))
		}

		years := d.opts.Years
		if len(years) == 0 {
			years = d.discoverYears(ctx, timeframe)
		}
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return d.finish(summary), errors.Wrap(err, "run canceled")
			}
			summary.Total++
			switch d.convertPair(ctx, timeframe, year, timeframeDir) {
			case StatusSucceeded:
				summary.Succeeded++
			case StatusSkipped:
				summary.Skipped++
			default:
				summary.Failed++
			}
		}
	}
	return d.finish(summary), nil
}

func (d *Driver) finish(summary Summary) Summary {
	if d.console != nil {
		d.console.Summary(summary)
	}
	log.Debug("Run finished", zap.String("runID", d.runID), zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded), zap.Int("failed", summary.Failed), zap.Int("skipped", summary.Skipped))
	return summary
}

// convertPair handles one (timeframe, year) and returns its status.
func (d *Driver) convertPair(ctx context.Context, timeframe string, year int, timeframeDir string) string {
	input := path.Join(timeframe, fmt.Sprintf("%d.parquet", year))
	output := filepath.Join(timeframeDir, fmt.Sprintf("%d.json", year))
	entry := target.ReportEntry{RunID: d.runID, Timeframe: timeframe, Year: year, Input: input, Output: output}
	start := time.Now()

	exists, err := d.source.Exists(ctx, input)
	if err != nil {
		log.Error("Failed to check the input", zap.String("input", input), zap.Error(err))
		return d.record(ctx, entry, StatusFailed, start, err)
	}
	if !exists {
		if d.opts.Verbose {
			log.Info("Skipped, input not found", zap.String("input", input))
		}
		return d.record(ctx, entry, StatusSkipped, start, nil)
	}

	file, err := d.source.GetFile(ctx, input)
	if err != nil {
		log.Error("Failed to fetch the input", zap.String("input", input), zap.Error(err))
		return d.record(ctx, entry, StatusFailed, start, err)
	}
	defer d.source.Dispose(file)
	entry.InputBytes = file.Size
	if d.opts.Verbose {
		log.Info("Converting", zap.String("input", input), zap.String("output", output),
			zap.String("size", fmt.Sprintf("%.2f MB", utils.MegaBytes(file.Size))))
	}

	result, err := d.converter.Convert(ctx, file.LocalPath, output)
	entry.Rows = result.Rows
	if err != nil {
		// the converter has already logged the cause
		if d.opts.Verbose {
			log.Info("Failed", zap.String("input", input), zap.Stringer("kind", convert.KindOf(err)))
		}
		return d.record(ctx, entry, StatusFailed, start, err)
	}

	if info, statErr := os.Stat(output); statErr == nil {
		entry.OutputBytes = info.Size()
	}
	if d.opts.Verbose {
		fields := []zap.Field{
			zap.String("output", output),
			zap.Int64("rows", result.Rows),
			zap.String("size", fmt.Sprintf("%.2f MB", utils.MegaBytes(entry.OutputBytes))),
		}
		if entry.InputBytes > 0 {
			fields = append(fields, zap.String("ratio", fmt.Sprintf("%.2fx", float64(entry.OutputBytes)/float64(entry.InputBytes))))
		}
		log.Info("Converted", fields...)
	}
	return d.record(ctx, entry, StatusSucceeded, start, nil)
}

func (d *Driver) record(ctx context.Context, entry target.ReportEntry, status string, start time.Time, cause error) string {
	if d.recorder == nil {
		return status
	}
	entry.Status = status
	entry.Duration = time.Since(start)
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		log.Warn("Failed to record the outcome", zap.String("input", entry.Input), zap.Error(err))
	}
	return status
}

// discoverYears lists {timeframe}/*.parquet and keeps the files named by a year, ascending.
func (d *Driver) discoverYears(ctx context.Context, timeframe string) []int {
	files, err := d.source.ListFiles(ctx, timeframe, "*.parquet")
	if err != nil {
		log.Warn("Failed to list the timeframe", zap.String("timeframe", timeframe), zap.Error(err))
		return nil
	}
	years := make([]int, 0, len(files))
	for _, file := range files {
		stem := strings.TrimSuffix(path.Base(file), ".parquet")
		year, err := strconv.Atoi(stem)
		if err != nil || year < 0 {
			log.Debug("Ignoring a file not named by a year", zap.String("file", file))
			continue
		}
		years = append(years, year)
	}
	sort.Ints(years)
	log.Debug("Discovered years", zap.String("timeframe", timeframe), zap.Ints("years", years))
	return years
}
