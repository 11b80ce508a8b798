package source

import (
	"github.com/parquet-go/parquet-go"

	"parquet2json/record"
)

// Transformer is an interface for transforming a parquet row into the record model.
type Transformer interface {

	// Transform takes a parquet.Row and converts it into a record.Row,
	// returning the transformed row or an error.
	Transform(row parquet.Row) (record.Row, error)
}

// TransformerFunc adapts a function, typically (*record.Decoder).Decode, to Transformer.
type TransformerFunc func(row parquet.Row) (record.Row, error)

func (f TransformerFunc) Transform(row parquet.Row) (record.Row, error) {
	return f(row)
}
