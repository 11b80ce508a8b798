package record

import (
	"fmt"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// Decoder turns parquet rows of one schema into Rows.
//
// Parquet rows are flat: one value per leaf column occurrence, each tagged with its repetition and
// definition levels. The decoder precomputes the path of every leaf column once and reassembles
// the nested record from the levels, then applies LIST/MAP annotations and leaf logical types.
type Decoder struct {
	root    parquet.Node
	columns []columnPath
}

// step is one node on the path from the root to a leaf column.
type step struct {
	field    int // index within the parent group
	node     parquet.Node
	leaf     bool
	optional bool
	repeated bool
	defLevel int // the node is present when the value's definition level reaches this
	repLevel int // repetition level owned by this node, only when repeated
}

type columnPath struct {
	steps  []step
	codec  leafCodec
	maxRep int
}

// asmNode is the mutable assembly tree; groups use children, repeated nodes use items.
type asmNode struct {
	null     bool
	value    Value
	children []*asmNode
	items    []*asmNode
}

// NewDecoder prepares a decoder for rows of the given schema.
func NewDecoder(schema *parquet.Schema) *Decoder {
	d := &Decoder{root: schema}
	d.walk(schema, nil, 0, 0)
	return d
}

// NumColumns returns the number of leaf columns the decoder expects.
func (d *Decoder) NumColumns() int {
	return len(d.columns)
}

// ColumnNames returns the top-level field names in schema order.
func (d *Decoder) ColumnNames() []string {
	fields := d.root.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

func (d *Decoder) walk(group parquet.Node, prefix []step, def, rep int) {
	for i, f := range group.Fields() {
		st := step{field: i, node: f, leaf: f.Leaf()}
		nextDef, nextRep := def, rep
		switch {
		case f.Repeated():
			nextDef++
			nextRep++
			st.repeated = true
			st.repLevel = nextRep
		case f.Optional():
			nextDef++
			st.optional = true
		}
		st.defLevel = nextDef

		path := append(append(make([]step, 0, len(prefix)+1), prefix...), st)
		if st.leaf {
			d.columns = append(d.columns, columnPath{steps: path, codec: newLeafCodec(f), maxRep: nextRep})
		} else {
			d.walk(f, path, nextDef, nextRep)
		}
	}
}

// Decode converts one parquet row. Values must be ordered by column, as parquet readers return them.
func (d *Decoder) Decode(row parquet.Row) (Row, error) {
	root := newGroup(d.root)
	var (
		current = -1
		path    *columnPath
		index   []int
	)
	for _, v := range row {
		column := v.Column()
		if column < 0 || column >= len(d.columns) {
			return Row{}, fmt.Errorf("value for unknown column %d (schema has %d columns)", column, len(d.columns))
		}
		if column != current {
			current = column
			path = &d.columns[column]
			index = resetIndex(index, path.maxRep+1)
		} else {
			r := v.RepetitionLevel()
			if r <= 0 || r > path.maxRep {
				return Row{}, fmt.Errorf("column %d: unexpected repetition level %d", column, r)
			}
			index[r]++
			for l := r + 1; l < len(index); l++ {
				index[l] = 0
			}
		}
		if err := place(root, path, index, v); err != nil {
			return Row{}, fmt.Errorf("column %d: %w", column, err)
		}
	}

	fields := d.root.Fields()
	out := Row{Fields: make([]Field, len(fields))}
	for i, f := range fields {
		out.Fields[i] = Field{Name: f.Name(), Value: convert(f, root.children[i])}
	}
	return out, nil
}

func resetIndex(index []int, n int) []int {
	if cap(index) < n {
		return make([]int, n)
	}
	index = index[:n]
	for i := range index {
		index[i] = 0
	}
	return index
}

func newGroup(n parquet.Node) *asmNode {
	return &asmNode{children: make([]*asmNode, len(n.Fields()))}
}

// place inserts one leaf value into the assembly tree following its definition level and the
// per-repetition-level element indexes of the current column.
func place(cur *asmNode, p *columnPath, index []int, v parquet.Value) error {
	def := v.DefinitionLevel()
	for _, st := range p.steps {
		if cur.children == nil {
			return fmt.Errorf("inconsistent definition levels")
		}
		slot := &cur.children[st.field]

		if st.repeated {
			if *slot == nil {
				*slot = &asmNode{}
			}
			list := *slot
			if def < st.defLevel {
				return nil // empty list
			}
			k := index[st.repLevel]
			for len(list.items) <= k {
				if st.leaf {
					list.items = append(list.items, &asmNode{})
				} else {
					list.items = append(list.items, newGroup(st.node))
				}
			}
			elem := list.items[k]
			if st.leaf {
				elem.value = p.codec.decode(v)
				return nil
			}
			cur = elem
			continue
		}

		if st.optional && def < st.defLevel {
			if *slot == nil {
				*slot = &asmNode{null: true}
			}
			return nil
		}
		if st.leaf {
			*slot = &asmNode{value: p.codec.decode(v)}
			return nil
		}
		if *slot == nil {
			*slot = newGroup(st.node)
		}
		cur = *slot
	}
	return nil
}

// convert builds the Value of node n from its assembled occurrence.
func convert(n parquet.Node, a *asmNode) Value {
	if n.Repeated() {
		items := make([]Value, 0)
		if a != nil {
			for _, item := range a.items {
				items = append(items, element(n, item))
			}
		}
		return ListValue(items)
	}
	if a == nil || a.null {
		return NullValue()
	}
	return element(n, a)
}

// element converts one present, non-repeated occurrence of n.
func element(n parquet.Node, a *asmNode) Value {
	if n.Leaf() {
		return a.value
	}
	fields := n.Fields()
	switch groupKindOf(n) {
	case groupList:
		return listOf(fields[0], a.children[0])
	case groupMap:
		return mapOf(fields[0], a.children[0])
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{Name: f.Name(), Value: convert(f, a.children[i])}
	}
	return MapValue(out)
}

// listOf unwraps the repeated middle level of a LIST group. The three-level form
// (repeated group list { element }) yields the elements; the legacy two-level form the
// repeated values themselves.
func listOf(repeated parquet.Node, a *asmNode) Value {
	if repeated.Leaf() || len(repeated.Fields()) != 1 {
		return convert(repeated, a)
	}
	inner := repeated.Fields()[0]
	items := make([]Value, 0)
	if a != nil {
		for _, item := range a.items {
			items = append(items, convert(inner, item.children[0]))
		}
	}
	return ListValue(items)
}

// mapOf turns the repeated key_value group of a MAP into an object with stringified keys.
func mapOf(keyValue parquet.Node, a *asmNode) Value {
	keyIdx, valueIdx := 0, 1
	for i, f := range keyValue.Fields() {
		switch f.Name() {
		case "key":
			keyIdx = i
		case "value":
			valueIdx = i
		}
	}
	kvFields := keyValue.Fields()
	out := make([]Field, 0)
	if a != nil {
		for _, item := range a.items {
			key := convert(kvFields[keyIdx], item.children[keyIdx])
			value := convert(kvFields[valueIdx], item.children[valueIdx])
			out = append(out, Field{Name: keyString(key), Value: value})
		}
	}
	return MapValue(out)
}

type groupKind uint8

const (
	groupStruct groupKind = iota
	groupList
	groupMap
)

func groupKindOf(n parquet.Node) groupKind {
	fields := n.Fields()
	if len(fields) != 1 || !fields[0].Repeated() {
		return groupStruct
	}
	lt := n.Type().LogicalType()
	switch {
	case lt != nil && lt.List != nil:
		return groupList
	case lt != nil && lt.Map != nil && !fields[0].Leaf() && len(fields[0].Fields()) == 2:
		return groupMap
	}
	return groupStruct
}

func keyString(v Value) string {
	switch v.Kind() {
	case String, Opaque:
		return v.Str()
	case Int:
		return strconv.FormatInt(v.Int(), 10)
	case Uint:
		return strconv.FormatUint(v.Uint(), 10)
	case Bool:
		return strconv.FormatBool(v.Bool())
	case Null:
		return "null"
	}
	b, err := AppendJSON(nil, v)
	if err != nil {
		return fmt.Sprint(v.Kind())
	}
	return string(b)
}
