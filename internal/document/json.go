package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxJSONDepth = 64

// Value adapts a node to json.Marshaler so sections can be placed in
// response payloads without losing key order.
type Value struct {
	node *yaml.Node
}

// NewValue wraps node. A nil node marshals as null.
func NewValue(node *yaml.Node) Value {
	return Value{node: node}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.node == nil {
		return []byte("null"), nil
	}
	return NodeJSON(v.node)
}

// NodeJSON renders a node tree as JSON, keeping mapping key order.
func NodeJSON(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNodeJSON(&buf, node, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseJSONValue decodes any JSON value into a node tree. Object key order is
// kept; a repeated key keeps its first position and its last value.
func ParseJSONValue(data []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := readJSONValue(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse JSON: unexpected data after top-level value")
	}
	return node, nil
}

func readJSONValue(dec *json.Decoder, depth int) (*yaml.Node, error) {
	if depth > maxJSONDepth {
		return nil, errors.New("nesting too deep")
	}
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			mapping := MappingNode()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := readJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				SetMappingValue(mapping, key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return mapping, nil
		case '[':
			seq := SequenceNode()
			for dec.More() {
				item, err := readJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				seq.Content = append(seq.Content, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return seq, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return StringNode(t), nil
	case json.Number:
		tag := intTag
		if strings.ContainsAny(t.String(), ".eE") {
			tag = floatTag
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}, nil
	case bool:
		return BoolNode(t), nil
	case nil:
		return NullNode(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func writeNodeJSON(buf *bytes.Buffer, node *yaml.Node, depth int) error {
	if depth > maxJSONDepth {
		return errors.New("encode JSON: nesting too deep")
	}
	node = resolveAlias(node)
	if node == nil {
		buf.WriteString("null")
		return nil
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNodeJSON(buf, node.Content[0], depth)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, resolveAlias(node.Content[i]).Value)
			buf.WriteByte(':')
			if err := writeNodeJSON(buf, node.Content[i+1], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNodeJSON(buf, item, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		writeScalarJSON(buf, node)
	default:
		buf.WriteString("null")
	}
	return nil
}

func writeScalarJSON(buf *bytes.Buffer, node *yaml.Node) {
	switch node.ShortTag() {
	case nullTag:
		buf.WriteString("null")
		return
	case boolTag:
		var b bool
		if err := node.Decode(&b); err == nil {
			buf.WriteString(strconv.FormatBool(b))
			return
		}
	case intTag:
		var i int64
		if err := node.Decode(&i); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return
		}
		var u uint64
		if err := node.Decode(&u); err == nil {
			buf.WriteString(strconv.FormatUint(u, 10))
			return
		}
	case floatTag:
		var f float64
		if err := node.Decode(&f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			if json.Valid([]byte(node.Value)) {
				buf.WriteString(node.Value)
			} else {
				buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			}
			return
		}
	}
	writeJSONString(buf, node.Value)
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encoder terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
}
