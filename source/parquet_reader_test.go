package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parquet2json/record"
)

type priceRow struct {
	Day   int32   `parquet:"day"`
	Close float64 `parquet:"close"`
}

// writePrices writes rows in several row groups so batches have to cross group boundaries.
func writePrices(t *testing.T, count int, rowsPerGroup int) FileInfo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[priceRow](f)
	for i := 0; i < count; i++ {
		_, err := w.Write([]priceRow{{Day: int32(i), Close: float64(i) / 2}})
		require.NoError(t, err)
		if (i+1)%rowsPerGroup == 0 {
			require.NoError(t, w.Flush())
		}
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	return FileInfo{RelativePath: "prices.parquet", LocalPath: path, Size: info.Size()}
}

func readAll(t *testing.T, r *ParquetReader, batchSize int) ([]record.Row, []int) {
	t.Helper()
	var rows []record.Row
	var sizes []int
	for {
		batch, err := r.NextBatch(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.NotEmpty(t, batch)
		sizes = append(sizes, len(batch))
		rows = append(rows, batch...)
	}
	return rows, sizes
}

func TestParquetReaderBatches(t *testing.T) {
	file := writePrices(t, 10, 4)

	for _, batchSize := range []int{1, 3, 4, 1000} {
		r := NewParquetReader(file, nil)
		require.NoError(t, r.Open())
		assert.Equal(t, int64(10), r.RowCount())

		rows, sizes := readAll(t, r, batchSize)
		require.Len(t, rows, 10, "batch size %d", batchSize)
		for _, size := range sizes {
			assert.LessOrEqual(t, size, batchSize)
		}
		for i, row := range rows {
			day, ok := row.Get("day")
			require.True(t, ok)
			assert.Equal(t, int64(i), day.Int(), "rows must stay in file order")
		}
		assert.Equal(t, int64(10), r.RowsRead())
		require.NoError(t, r.Close())
	}
}

func TestParquetReaderEmptyFile(t *testing.T) {
	file := writePrices(t, 0, 1)
	r := NewParquetReader(file, nil)
	require.NoError(t, r.Open())
	defer func() { _ = r.Close() }()
	assert.Equal(t, int64(0), r.RowCount())
	_, err := r.NextBatch(10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, [][]string{{"day"}, {"close"}}, r.Schema().Columns())
}

func TestParquetReaderOpenErrors(t *testing.T) {
	missing := NewParquetReader(FileInfo{LocalPath: filepath.Join(t.TempDir(), "missing.parquet")}, nil)
	assert.Error(t, missing.Open())
	assert.Error(t, missing.LastError())
	assert.NoError(t, missing.Close())

	garbage := filepath.Join(t.TempDir(), "garbage.parquet")
	require.NoError(t, os.WriteFile(garbage, []byte("not a parquet file"), 0o644))
	broken := NewParquetReader(FileInfo{LocalPath: garbage}, nil)
	assert.Error(t, broken.Open())
	assert.NoError(t, broken.Close())

	file := writePrices(t, 1, 1)
	twice := NewParquetReader(file, nil)
	require.NoError(t, twice.Open())
	assert.Error(t, twice.Open())
	require.NoError(t, twice.Close())
}

func TestParquetReaderTransformerError(t *testing.T) {
	file := writePrices(t, 3, 3)
	failing := TransformerFunc(func(parquet.Row) (record.Row, error) {
		return record.Row{}, errors.New("boom")
	})
	r := NewParquetReader(file, failing)
	require.NoError(t, r.Open())
	defer func() { _ = r.Close() }()
	_, err := r.NextBatch(2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	_, again := r.NextBatch(2)
	assert.Equal(t, err, again, "the reader stays failed")
}
