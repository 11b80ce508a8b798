package record

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// ErrUnsupportedValue is returned when a value has no JSON form, not even a string fallback.
var ErrUnsupportedValue = errors.New("unsupported value")

// Encoder serializes rows to JSON text.
//
// Strings are written as UTF-8 with non-ASCII characters kept literally and without HTML escaping.
// With a nil indent the output is compact ({"a":1}); with indent N every nesting level is indented
// by N spaces, the way json.Indent lays it out. The returned slice is only valid until the next call.
type Encoder struct {
	pretty bool
	indent string
	buf    []byte
	out    bytes.Buffer
}

// NewEncoder returns an encoder; indent nil means compact output.
func NewEncoder(indent *int) *Encoder {
	e := &Encoder{}
	if indent != nil {
		e.pretty = true
		e.indent = strings.Repeat(" ", max(*indent, 0))
	}
	return e
}

// Encode serializes a row as a JSON object.
func (e *Encoder) Encode(row Row) ([]byte, error) {
	var err error
	e.buf, err = appendFields(e.buf[:0], row.Fields)
	if err != nil {
		return nil, err
	}
	if !e.pretty {
		return e.buf, nil
	}
	e.out.Reset()
	if err := json.Indent(&e.out, e.buf, "", e.indent); err != nil {
		return nil, fmt.Errorf("failed to indent row: %w", err)
	}
	return e.out.Bytes(), nil
}

// AppendJSON appends the compact JSON form of a single value.
func AppendJSON(b []byte, v Value) ([]byte, error) {
	switch v.kind {
	case Null:
		return append(b, "null"...), nil
	case Bool:
		return strconv.AppendBool(b, v.b), nil
	case Int:
		return strconv.AppendInt(b, v.i, 10), nil
	case Uint:
		return strconv.AppendUint(b, v.u, 10), nil
	case Float:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("%w: float %v", ErrUnsupportedValue, v.f)
		}
		return json.Append(b, v.f, 0)
	case String, Opaque:
		return json.Append(b, v.s, 0)
	case List:
		b = append(b, '[')
		for i, item := range v.items {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = AppendJSON(b, item); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case Map:
		return appendFields(b, v.fields)
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedValue, v.kind)
}

func appendFields(b []byte, fields []Field) ([]byte, error) {
	var err error
	b = append(b, '{')
	for i, f := range fields {
		if i > 0 {
			b = append(b, ',')
		}
		if b, err = json.Append(b, f.Name, 0); err != nil {
			return nil, err
		}
		b = append(b, ':')
		if b, err = AppendJSON(b, f.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return append(b, '}'), nil
}
