package record

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// julianDayOfEpoch is the Julian day number of 1970-01-01, used by legacy INT96 timestamps.
const julianDayOfEpoch = 2440588

type leafKind uint8

const (
	leafPlain leafKind = iota
	leafString
	leafBytes
	leafUUID
	leafDecimal
	leafDate
	leafTime
	leafTimestamp
	leafInteger
)

// leafCodec decides once per column how its physical values become Values.
type leafCodec struct {
	kind   leafKind
	scale  int
	unit   time.Duration
	utc    bool
	signed bool
}

func newLeafCodec(node parquet.Node) leafCodec {
	lt := node.Type().LogicalType()
	if lt == nil {
		return leafCodec{kind: leafPlain}
	}
	switch {
	case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil:
		return leafCodec{kind: leafString}
	case lt.Bson != nil:
		return leafCodec{kind: leafBytes}
	case lt.UUID != nil:
		return leafCodec{kind: leafUUID}
	case lt.Decimal != nil:
		return leafCodec{kind: leafDecimal, scale: int(lt.Decimal.Scale)}
	case lt.Date != nil:
		return leafCodec{kind: leafDate}
	case lt.Time != nil:
		return leafCodec{kind: leafTime, unit: timeUnit(lt.Time.Unit)}
	case lt.Timestamp != nil:
		return leafCodec{kind: leafTimestamp, unit: timeUnit(lt.Timestamp.Unit), utc: lt.Timestamp.IsAdjustedToUTC}
	case lt.Integer != nil:
		return leafCodec{kind: leafInteger, signed: lt.Integer.IsSigned}
	}
	return leafCodec{kind: leafPlain}
}

func timeUnit(u format.TimeUnit) time.Duration {
	switch {
	case u.Nanos != nil:
		return time.Nanosecond
	case u.Micros != nil:
		return time.Microsecond
	}
	return time.Millisecond
}

// decode converts a single non-null physical value.
func (c leafCodec) decode(v parquet.Value) Value {
	switch c.kind {
	case leafString:
		return StringValue(string(v.ByteArray()))
	case leafBytes:
		return OpaqueValue(base64.StdEncoding.EncodeToString(v.ByteArray()))
	case leafUUID:
		if id, err := uuid.FromBytes(v.ByteArray()); err == nil {
			return OpaqueValue(id.String())
		}
		return OpaqueValue(base64.StdEncoding.EncodeToString(v.ByteArray()))
	case leafDecimal:
		return OpaqueValue(formatDecimal(unscaled(v), c.scale))
	case leafDate:
		return OpaqueValue(time.Unix(int64(v.Int32())*86400, 0).UTC().Format(time.DateOnly))
	case leafTime:
		return OpaqueValue(formatTimeOfDay(time.Duration(integer(v)) * c.unit))
	case leafTimestamp:
		if v.Kind() == parquet.Int96 {
			return OpaqueValue(formatDateTime(int96Time(v), c.utc))
		}
		var t time.Time
		switch ticks := integer(v); c.unit {
		case time.Millisecond:
			t = time.UnixMilli(ticks)
		case time.Microsecond:
			t = time.UnixMicro(ticks)
		default:
			t = time.Unix(0, ticks)
		}
		return OpaqueValue(formatDateTime(t.UTC(), c.utc))
	case leafInteger:
		if c.signed {
			return IntValue(integer(v))
		}
		if v.Kind() == parquet.Int32 {
			return UintValue(uint64(uint32(v.Int32())))
		}
		return UintValue(uint64(v.Int64()))
	}
	return plainValue(v)
}

func plainValue(v parquet.Value) Value {
	switch v.Kind() {
	case parquet.Boolean:
		return BoolValue(v.Boolean())
	case parquet.Int32:
		return IntValue(int64(v.Int32()))
	case parquet.Int64:
		return IntValue(v.Int64())
	case parquet.Int96:
		// pre-LogicalType writers used INT96 for timestamps only
		return OpaqueValue(formatDateTime(int96Time(v), false))
	case parquet.Float:
		return floatValue(float64(v.Float()))
	case parquet.Double:
		return floatValue(v.Double())
	}
	return OpaqueValue(base64.StdEncoding.EncodeToString(v.ByteArray()))
}

// floatValue keeps NaN and infinities out of the JSON number space.
func floatValue(f float64) Value {
	switch {
	case math.IsNaN(f):
		return OpaqueValue("NaN")
	case math.IsInf(f, 1):
		return OpaqueValue("Infinity")
	case math.IsInf(f, -1):
		return OpaqueValue("-Infinity")
	}
	return FloatValue(f)
}

func integer(v parquet.Value) int64 {
	if v.Kind() == parquet.Int32 {
		return int64(v.Int32())
	}
	return v.Int64()
}

func int96Time(v parquet.Value) time.Time {
	x := v.Int96()
	nanos := uint64(x[1])<<32 | uint64(x[0])
	days := int64(x[2]) - julianDayOfEpoch
	return time.Unix(days*86400, int64(nanos)).UTC()
}

// unscaled returns the integer behind a DECIMAL value; byte arrays are big-endian two's complement.
func unscaled(v parquet.Value) *big.Int {
	switch v.Kind() {
	case parquet.Int32, parquet.Int64:
		return big.NewInt(integer(v))
	}
	b := v.ByteArray()
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
	}
	return n
}

func formatDecimal(n *big.Int, scale int) string {
	digits := new(big.Int).Abs(n).String()
	sign := ""
	if n.Sign() < 0 {
		sign = "-"
	}
	if scale <= 0 {
		return sign + digits + strings.Repeat("0", -scale)
	}
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	point := len(digits) - scale
	return sign + digits[:point] + "." + digits[point:]
}

// formatDateTime renders a timestamp the way Python's str(datetime) does.
func formatDateTime(t time.Time, utc bool) string {
	s := t.Format(time.DateTime) + fraction(t.Nanosecond())
	if utc {
		s += "+00:00"
	}
	return s
}

func formatTimeOfDay(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s) + fraction(int(d))
}

// fraction prints microseconds, or nanoseconds when they carry sub-microsecond precision.
func fraction(nanos int) string {
	switch {
	case nanos == 0:
		return ""
	case nanos%1000 == 0:
		return fmt.Sprintf(".%06d", nanos/1000)
	}
	return fmt.Sprintf(".%09d", nanos)
}
