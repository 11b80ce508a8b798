// Package convert streams one Parquet file into one JSON file.
package convert

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"parquet2json/record"
	"parquet2json/source"
	"parquet2json/target"
	"parquet2json/utils"
)

// log a convenience wrapper to shorten code lines
var log = utils.Logger

// DefaultBatchSize rows fetched per read step.
const DefaultBatchSize = 64000

// Options configure a Converter.
type Options struct {
	Format target.Format
	// BatchSize rows per read step; it bounds memory and never changes the output bytes
	BatchSize int
	// Indent nil means compact rows, N indents every nesting level by N spaces
	Indent *int
	// Verify re-reads the written output and checks the row count
	Verify bool
}

// Result is the outcome of one conversion.
type Result struct {
	Rows      int64
	Succeeded bool
	Duration  time.Duration
}

// Converter converts files one at a time; it holds no per-file state.
type Converter struct {
	opts Options
}

// New validates the options.
func New(opts Options) (*Converter, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Newf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Indent != nil && *opts.Indent < 0 {
		return nil, errors.Newf("indent must not be negative, got %d", *opts.Indent)
	}
	if opts.Format != target.Array && opts.Format != target.LineDelimited {
		return nil, errors.Newf("unsupported output format %v", opts.Format)
	}
	return &Converter{opts: opts}, nil
}

// Options returns the options the converter was built with.
func (c *Converter) Options() Options {
	return c.opts
}

// Convert reads inputPath batch by batch and writes every row as JSON to outputPath,
// which is truncated or created. The output is not created when the input cannot be opened.
// On failure the error is a *Error and the output content is unspecified.
func (c *Converter) Convert(ctx context.Context, inputPath string, outputPath string) (Result, error) {
	start := time.Now()
	rows, err := c.convert(ctx, inputPath, outputPath)
	result := Result{Rows: rows, Succeeded: err == nil, Duration: time.Since(start)}
	if err != nil {
		log.Error("Conversion failed", zap.String("input", inputPath), zap.String("output", outputPath),
			zap.Stringer("kind", KindOf(err)), zap.Int64("rows", rows), zap.Error(err))
		return result, err
	}
	log.Debug("Converted", zap.String("input", inputPath), zap.String("output", outputPath),
		zap.Int64("rows", rows), zap.Duration("duration", result.Duration))
	return result, nil
}

func (c *Converter) convert(ctx context.Context, inputPath string, outputPath string) (rows int64, err error) {
	reader := source.NewParquetReader(source.FileInfo{RelativePath: inputPath, LocalPath: inputPath}, nil)
	defer func(reader *source.ParquetReader) {
		if closeErr := reader.Close(); closeErr != nil {
			log.Error("Failed to close the input file", zap.String("path", inputPath), zap.Error(closeErr))
		}
	}(reader)
	if err := reader.Open(); err != nil {
		return 0, newError(KindSourceOpen, inputPath, err, "failed to open the input")
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, newError(KindSinkWrite, outputPath, err, "failed to create the output")
	}
	closed := false
	defer func(out *os.File) {
		if closed {
			return
		}
		if closeErr := out.Close(); closeErr != nil {
			log.Error("Failed to close the output file", zap.String("path", outputPath), zap.Error(closeErr))
		}
	}(out)

	writer := target.NewRowWriter(out, c.opts.Format)
	if err := writer.Begin(); err != nil {
		return 0, newError(KindSinkWrite, outputPath, err, "failed to start the output")
	}

	encoder := record.NewEncoder(c.opts.Indent)
	for {
		if err := ctx.Err(); err != nil {
			return writer.Rows(), newError(KindCanceled, inputPath, err, "stopped after %d rows", writer.Rows())
		}
		batch, err := reader.NextBatch(c.opts.BatchSize)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return writer.Rows(), newError(KindSourceRead, inputPath, err, "failed after %d rows", writer.Rows())
		}
		for _, row := range batch {
			data, err := encoder.Encode(row)
			if err != nil {
				return writer.Rows(), newError(KindRowSerialization, inputPath, err, "row %d", writer.Rows())
			}
			if err := writer.WriteRow(data); err != nil {
				return writer.Rows(), newError(KindSinkWrite, outputPath, err, "failed to write")
			}
		}
	}

	if err := writer.End(); err != nil {
		return writer.Rows(), newError(KindSinkWrite, outputPath, err, "failed to finish the output")
	}
	closed = true
	if err := out.Close(); err != nil {
		return writer.Rows(), newError(KindSinkWrite, outputPath, err, "failed to close the output")
	}

	rows = writer.Rows()
	if rows != reader.RowCount() {
		log.Warn("Row count differs from the file footer", zap.String("input", inputPath),
			zap.Int64("footer", reader.RowCount()), zap.Int64("written", rows))
	}
	if c.opts.Verify {
		counted, err := target.CountRows(outputPath, c.opts.Format)
		if err != nil {
			return rows, newError(KindVerification, outputPath, err, "failed to verify the output")
		}
		if counted != rows {
			return rows, newError(KindVerification, outputPath,
				errors.Newf("found %d rows, expected %d", counted, rows), "row count mismatch")
		}
	}
	return rows, nil
}
