// Package record holds the in-memory row model used between the Parquet reader and the JSON writer.
//
// A Row is an ordered list of named Values. Every Value carries a Kind tag that is fixed when the
// Parquet value is decoded, so serialization never needs to inspect Go types at runtime.
// Values without a native JSON representation (timestamps, decimals, binaries) are decoded as
// Opaque values holding their canonical string form.
package record

// Kind is the variant tag of a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Int
	Uint
	Float
	String
	List
	Map
	Opaque
)

var kindNames = [...]string{
	Null:   "null",
	Bool:   "bool",
	Int:    "int",
	Uint:   "uint",
	Float:  "float",
	String: "string",
	List:   "list",
	Map:    "map",
	Opaque: "opaque",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a tagged union. Only the field matching Kind is meaningful.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	u      uint64
	f      float64
	s      string
	items  []Value
	fields []Field
}

// Field is a named value inside a Row or a Map value.
type Field struct {
	Name  string
	Value Value
}

// Row is one record in schema declaration order.
type Row struct {
	Fields []Field
}

// Batch is a bounded chunk of rows read in one step.
type Batch []Row

func NullValue() Value              { return Value{kind: Null} }
func BoolValue(b bool) Value        { return Value{kind: Bool, b: b} }
func IntValue(i int64) Value        { return Value{kind: Int, i: i} }
func UintValue(u uint64) Value      { return Value{kind: Uint, u: u} }
func FloatValue(f float64) Value    { return Value{kind: Float, f: f} }
func StringValue(s string) Value    { return Value{kind: String, s: s} }
func OpaqueValue(s string) Value    { return Value{kind: Opaque, s: s} }
func ListValue(items []Value) Value { return Value{kind: List, items: items} }
func MapValue(fields []Field) Value { return Value{kind: Map, fields: fields} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == Null }
func (v Value) Bool() bool      { return v.b }
func (v Value) Int() int64      { return v.i }
func (v Value) Uint() uint64    { return v.u }
func (v Value) Float() float64  { return v.f }
func (v Value) Items() []Value  { return v.items }
func (v Value) Fields() []Field { return v.fields }

// Str returns the text of a String or Opaque value.
func (v Value) Str() string { return v.s }

// Get returns the named field of a row and whether it exists.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Names returns the column names of the row in order.
func (r Row) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
