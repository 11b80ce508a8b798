package source

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"parquet2json/record"
)

// ParquetReader reads a Parquet file as a finite sequence of row batches in on-disk order.
// Only one batch of rows is resident at a time.
type ParquetReader struct {
	// fileInfo contains metadata and details of the file to be processed, such as its path, size, etc.
	fileInfo FileInfo

	// mapper converts raw parquet rows; nil means a record.Decoder built from the file schema.
	mapper Transformer

	// isOpen indicates whether the ParquetReader is currently open and ready for processing.
	isOpen bool

	// wasClosed indicates whether the ParquetReader was closed after being opened.
	wasClosed bool

	// lastError stores the most recent error encountered by the ParquetReader, or nil if no errors occurred.
	lastError error

	// file represents the underlying os.File, used to read the current Parquet file's data.
	file *os.File

	// parquetFile is a reference to the open Parquet file being processed by the ParquetReader.
	parquetFile *parquet.File

	// rowCount represents the total number of rows in the Parquet file being processed.
	rowCount int64

	// rowGroup is the index of the next row group to start reading.
	rowGroup int

	// rows reads the current row group; nil between row groups.
	rows parquet.Rows

	// buffer is reused between batches for raw rows.
	buffer []parquet.Row

	// rowCounter keeps track of the number of rows returned by the ParquetReader so far.
	rowCounter int64
}

// NewParquetReader creates a new instance of ParquetReader using the supplied FileInfo and an optional Transformer.
func NewParquetReader(file FileInfo, transformer Transformer) *ParquetReader {
	return &ParquetReader{
		fileInfo: file,
		mapper:   transformer,
	}
}

// Open opens the associated Parquet file and reads its footer.
func (r *ParquetReader) Open() error {
	if r.isOpen || r.wasClosed {
		return fmt.Errorf("the input file ParquetReader had been already open")
	}

	fileName := r.fileInfo.LocalPath
	osFile, err := os.Open(fileName)
	if err != nil {
		r.lastError = fmt.Errorf("failed to open file %s: %w", fileName, err)
		return r.lastError
	}
	r.file = osFile
	r.isOpen = true

	fileStat, err := r.file.Stat()
	if err != nil {
		r.lastError = fmt.Errorf("failed to get file info for %s: %w", fileName, err)
		return r.lastError
	}
	size := fileStat.Size()
	f, err := parquet.OpenFile(r.file, size)
	if err != nil {
		r.lastError = fmt.Errorf("failed to open the Parquet file %s: %w", fileName, err)
		return r.lastError
	}
	r.parquetFile = f
	r.rowCount = f.NumRows()
	if r.mapper == nil {
		r.mapper = TransformerFunc(record.NewDecoder(f.Schema()).Decode)
	}
	log.Debug("Opened Parquet file", zap.String("path", fileName), zap.Int64("rowCount", r.rowCount),
		zap.Int("rowGroups", len(f.RowGroups())))
	for i, column := range f.Schema().Columns() {
		log.Trace("Column", zap.Int("index", i), zap.Strings("path", column))
	}
	return nil
}

// Schema returns the schema of the open file.
func (r *ParquetReader) Schema() *parquet.Schema {
	if r.parquetFile == nil {
		return nil
	}
	return r.parquetFile.Schema()
}

// NextBatch returns up to batchSize rows. After the last row it returns io.EOF and never an empty batch with a nil error.
// The sequence cannot be restarted.
func (r *ParquetReader) NextBatch(batchSize int) (record.Batch, error) {
	if r.lastError != nil {
		return nil, r.lastError
	}
	if !r.isOpen {
		return nil, fmt.Errorf("the ParquetReader is not open")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}
	if len(r.buffer) != batchSize {
		r.buffer = make([]parquet.Row, batchSize)
	}

	groups := r.parquetFile.RowGroups()
	batch := make(record.Batch, 0, max(min(int64(batchSize), r.rowCount-r.rowCounter), 0))
	for len(batch) < batchSize {
		if r.rows == nil {
			if r.rowGroup >= len(groups) {
				break
			}
			log.Trace("RowGroup", zap.Int("index", r.rowGroup), zap.Int64("rows", groups[r.rowGroup].NumRows()))
			r.rows = groups[r.rowGroup].Rows()
			r.rowGroup++
		}

		n, err := r.rows.ReadRows(r.buffer[:batchSize-len(batch)])
		for _, raw := range r.buffer[:n] {
			row, transformErr := r.mapper.Transform(raw)
			if transformErr != nil {
				r.lastError = fmt.Errorf("failed to decode row %d: %w", r.rowCounter+int64(len(batch)), transformErr)
				return nil, r.lastError
			}
			batch = append(batch, row)
		}
		if err == io.EOF || (err == nil && n == 0) {
			r.closeRows()
			continue
		}
		if err != nil {
			r.lastError = fmt.Errorf("failed to read rows from %s: %w", r.fileInfo.LocalPath, err)
			return nil, r.lastError
		}
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	r.rowCounter += int64(len(batch))
	log.Trace("Batch", zap.Int("rows", len(batch)), zap.Int64("rowCounter", r.rowCounter))
	return batch, nil
}

func (r *ParquetReader) closeRows() {
	if r.rows == nil {
		return
	}
	if err := r.rows.Close(); err != nil {
		log.Error("Failed to close the row group reader", zap.Error(err))
	}
	r.rows = nil
}

// Close releases the resources held by the ParquetReader and closes the associated file if it is currently open.
func (r *ParquetReader) Close() (err error) {
	if r.isOpen {
		r.closeRows()
		r.isOpen = false
		r.wasClosed = true
		err = r.file.Close()
		r.file = nil
	}
	return
}

// LastError returns the most recent error encountered by the ParquetReader or nil if no errors have occurred.
func (r *ParquetReader) LastError() error {
	return r.lastError
}

// RowCount returns the total number of rows in the Parquet file being processed by the ParquetReader.
func (r *ParquetReader) RowCount() int64 {
	return r.rowCount
}

// RowsRead returns the number of rows returned so far.
func (r *ParquetReader) RowsRead() int64 {
	return r.rowCounter
}
