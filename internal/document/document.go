package document

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a configuration root is not a YAML mapping.
var ErrNotMapping = errors.New("document root must be a mapping")

// Document is an ordered configuration tree. Keys keep their insertion order
// through parse, edit, and encode cycles, and file comments survive as long
// as the node that carries them is not replaced.
type Document struct {
	root *yaml.Node
}

// New returns an empty document.
func New() *Document {
	return &Document{root: MappingNode()}
}

// Parse decodes YAML bytes. Empty input yields an empty document.
func Parse(data []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return FromNode(&node)
}

// ParseJSON decodes a JSON object while keeping the key order of the input.
// Any other top-level value, null included, is rejected with ErrNotMapping.
func ParseJSON(data []byte) (*Document, error) {
	node, err := ParseJSONValue(data)
	if err != nil {
		return nil, err
	}
	if node.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	return &Document{root: node}, nil
}

// FromNode wraps an existing node. Document nodes are unwrapped and a null or
// missing root becomes an empty mapping.
func FromNode(node *yaml.Node) (*Document, error) {
	if node == nil || node.Kind == 0 {
		return New(), nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return New(), nil
		}
		inner := node.Content[0]
		if inner.HeadComment == "" {
			inner.HeadComment = node.HeadComment
		}
		if inner.FootComment == "" {
			inner.FootComment = node.FootComment
		}
		node = inner
	}
	if node.Kind == yaml.ScalarNode && node.ShortTag() == nullTag {
		return New(), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	return &Document{root: node}, nil
}

// Root exposes the underlying mapping node.
func (d *Document) Root() *yaml.Node {
	return d.root
}

// Clone returns a deep copy that shares no nodes with d.
func (d *Document) Clone() *Document {
	return &Document{root: CloneNode(d.root)}
}

// Lookup returns the node at path or nil when any segment is missing.
func (d *Document) Lookup(path ...string) *yaml.Node {
	node := d.root
	for _, key := range path {
		node = MappingValue(node, key)
		if node == nil {
			return nil
		}
	}
	return node
}

// EnsureMapping returns the mapping at path, creating it and any missing
// parents. Non-mapping values found along the way are replaced.
func (d *Document) EnsureMapping(path ...string) *yaml.Node {
	node := d.root
	for _, key := range path {
		next := MappingValue(node, key)
		if next == nil || resolveAlias(next).Kind != yaml.MappingNode {
			next = MappingNode()
			SetMappingValue(node, key, next)
		}
		node = resolveAlias(next)
	}
	return node
}

// Set stores value at path, creating parent mappings as needed. An empty
// path replaces the whole document when value is a mapping.
func (d *Document) Set(value *yaml.Node, path ...string) error {
	if len(path) == 0 {
		doc, err := FromNode(value)
		if err != nil {
			return err
		}
		d.root = doc.root
		return nil
	}
	parent := d.EnsureMapping(path[:len(path)-1]...)
	SetMappingValue(parent, path[len(path)-1], value)
	return nil
}

// Delete removes the key at path and reports whether it existed.
func (d *Document) Delete(path ...string) bool {
	if len(path) == 0 {
		return false
	}
	parent := d.Lookup(path[:len(path)-1]...)
	if parent == nil {
		return false
	}
	return DeleteMappingKey(parent, path[len(path)-1])
}

// Encode renders the document as block-style YAML with two-space indent.
// Flow collections from the source are expanded; d itself is not modified.
func (d *Document) Encode() ([]byte, error) {
	root := CloneNode(d.root)
	blockStyle(root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON renders the document as a JSON object in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return NodeJSON(d.root)
}

func blockStyle(node *yaml.Node) {
	if node == nil {
		return
	}
	node.Style &^= yaml.FlowStyle
	for _, child := range node.Content {
		blockStyle(child)
	}
}
