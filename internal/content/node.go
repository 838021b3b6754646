// Package content models generated report content as a tagged union so that
// arbitrarily shaped trees can be walked without reflection.
package content

import (
	"encoding/json"
	"strings"
)

// Kind is the tag of a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	names := [...]string{"null", "string", "number", "bool", "list", "map"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Node is one value of a content tree. The zero value is null.
//
// Map entries keep the order in which they were decoded or inserted; that
// order defines the traversal order for citation numbering.
type Node struct {
	kind   Kind
	text   string // string value, or the literal text of a number
	flag   bool
	items  []Node
	fields []Field
}

// Field is one key/value entry of a map node.
type Field struct {
	Key   string
	Value Node
}

func Null() Node              { return Node{} }
func String(s string) Node    { return Node{kind: KindString, text: s} }
func Bool(b bool) Node        { return Node{kind: KindBool, flag: b} }
func List(items ...Node) Node { return Node{kind: KindList, items: items} }
func Map(fields ...Field) Node {
	return Node{kind: KindMap, fields: fields}
}

// Number builds a number node from its literal JSON text.
func Number(literal string) Node { return Node{kind: KindNumber, text: literal} }

// F is shorthand for building a Field.
func F(key string, v Node) Field { return Field{Key: key, Value: v} }

func (n Node) Kind() Kind      { return n.kind }
func (n Node) IsNull() bool    { return n.kind == KindNull }
func (n Node) Items() []Node   { return n.items }
func (n Node) Fields() []Field { return n.fields }

// Str returns the string value, or "" for non-string nodes.
func (n Node) Str() string {
	if n.kind != KindString {
		return ""
	}
	return n.text
}

// Literal returns the raw number text for number nodes.
func (n Node) Literal() string {
	if n.kind != KindNumber {
		return ""
	}
	return n.text
}

// BoolValue returns the bool value, false for non-bool nodes.
func (n Node) BoolValue() bool { return n.kind == KindBool && n.flag }

// Empty reports whether the node carries no content: null, "", [] or {}.
func (n Node) Empty() bool {
	switch n.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(n.text) == ""
	case KindList:
		return len(n.items) == 0
	case KindMap:
		return len(n.fields) == 0
	default:
		return false
	}
}

// Get looks up key in a map node.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindMap {
		return Node{}, false
	}
	for _, f := range n.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// GetString returns the string stored at key, or "".
func (n Node) GetString(key string) string {
	v, _ := n.Get(key)
	return v.Str()
}

// Set returns a copy of a map node with key set to v. Existing keys keep their
// position; new keys are appended. Non-map nodes are returned unchanged.
func (n Node) Set(key string, v Node) Node {
	if n.kind != KindMap {
		return n
	}
	out := make([]Field, len(n.fields), len(n.fields)+1)
	copy(out, n.fields)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = v
			return Node{kind: KindMap, fields: out}
		}
	}
	return Node{kind: KindMap, fields: append(out, Field{Key: key, Value: v})}
}

// Rewrite returns a new tree in which every string leaf s has been replaced
// by fn(s). Leaves are visited depth-first, left to right: map entries in
// order, list items by index. Non-string leaves pass through unchanged.
func (n Node) Rewrite(fn func(string) string) Node {
	switch n.kind {
	case KindString:
		return String(fn(n.text))
	case KindList:
		items := make([]Node, len(n.items))
		for i, item := range n.items {
			items[i] = item.Rewrite(fn)
		}
		return Node{kind: KindList, items: items}
	case KindMap:
		fields := make([]Field, len(n.fields))
		for i, f := range n.fields {
			fields[i] = Field{Key: f.Key, Value: f.Value.Rewrite(fn)}
		}
		return Node{kind: KindMap, fields: fields}
	default:
		return n
	}
}

// Walk calls fn for every string leaf in the same order as Rewrite.
func (n Node) Walk(fn func(string)) {
	n.Rewrite(func(s string) string {
		fn(s)
		return s
	})
}

// Equal reports deep equality, including map entry order.
func (n Node) Equal(o Node) bool {
	if n.kind != o.kind {
		return false
	}
	switch n.kind {
	case KindNull:
		return true
	case KindString, KindNumber:
		return n.text == o.text
	case KindBool:
		return n.flag == o.flag
	case KindList:
		if len(n.items) != len(o.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(n.fields) != len(o.fields) {
			return false
		}
		for i := range n.fields {
			if n.fields[i].Key != o.fields[i].Key || !n.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts the tree into plain Go values for template execution:
// map[string]any, []any, string, json.Number, bool and nil.
func (n Node) Interface() any {
	switch n.kind {
	case KindString:
		return n.text
	case KindNumber:
		return json.Number(n.text)
	case KindBool:
		return n.flag
	case KindList:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(n.fields))
		for _, f := range n.fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	default:
		return nil
	}
}
