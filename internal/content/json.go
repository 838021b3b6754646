package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var (
	_ json.Marshaler   = Node{}
	_ json.Unmarshaler = (*Node)(nil)
)

// ErrTrailingData is returned when a document has content after its value.
var ErrTrailingData = errors.New("content: trailing data after JSON value")

// Parse decodes one JSON document into a Node, keeping map entry order.
func Parse(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Node{}, errors.New("content: parse: empty document")
	}
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	n := decode(iter)
	// Only a top-level number is read by looking past its end, so EOF is
	// acceptable there and means truncation everywhere else.
	if iter.Error != nil && !(iter.Error == io.EOF && n.kind == KindNumber) {
		return Node{}, fmt.Errorf("content: parse: %w", iter.Error)
	}
	// A stray byte and the end of input both read as InvalidValue; only the
	// latter leaves io.EOF behind.
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return Node{}, ErrTrailingData
	}
	return n, nil
}

// ParseString is Parse for string input.
func ParseString(s string) (Node, error) {
	return Parse([]byte(s))
}

func decode(iter *jsoniter.Iterator) Node {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		return String(iter.ReadString())
	case jsoniter.NumberValue:
		return Number(string(iter.ReadNumber()))
	case jsoniter.BoolValue:
		return Bool(iter.ReadBool())
	case jsoniter.NilValue:
		iter.ReadNil()
		return Null()
	case jsoniter.ArrayValue:
		items := []Node{}
		for iter.ReadArray() {
			items = append(items, decode(iter))
			if iter.Error != nil {
				break
			}
		}
		return List(items...)
	case jsoniter.ObjectValue:
		fields := []Field{}
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			fields = append(fields, Field{Key: key, Value: decode(it)})
			return it.Error == nil
		})
		return Map(fields...)
	default:
		if iter.Error == nil {
			iter.ReportError("decode", "unexpected token")
		}
		return Null()
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. Map entries are written in order.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n Node) encode(buf *bytes.Buffer) error {
	switch n.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(n.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber:
		buf.WriteString(n.text)
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.flag))
	case KindList:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("content: unknown kind %d", n.kind)
	}
	return nil
}

// FromValue converts plain Go values into a Node. Maps are ordered by key
// since Go maps carry no order of their own. Unsupported values are
// round-tripped through JSON.
func FromValue(v any) Node {
	switch x := v.(type) {
	case nil:
		return Null()
	case Node:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case json.Number:
		return Number(string(x))
	case int:
		return Number(strconv.Itoa(x))
	case int64:
		return Number(strconv.FormatInt(x, 10))
	case float64:
		return Number(strconv.FormatFloat(x, 'f', -1, 64))
	case []any:
		items := make([]Node, len(x))
		for i, item := range x {
			items[i] = FromValue(item)
		}
		return List(items...)
	case []string:
		items := make([]Node, len(x))
		for i, item := range x {
			items[i] = String(item)
		}
		return List(items...)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Key: k, Value: FromValue(x[k])}
		}
		return Map(fields...)
	default:
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(x)
		if err != nil {
			return Null()
		}
		n, err := Parse(data)
		if err != nil {
			return Null()
		}
		return n
	}
}
