package document

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	strTag   = "!!str"
	intTag   = "!!int"
	floatTag = "!!float"
	boolTag  = "!!bool"
	nullTag  = "!!null"
	mapTag   = "!!map"
	seqTag   = "!!seq"
)

// MappingNode returns an empty block-style mapping.
func MappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
}

// SequenceNode returns an empty block-style sequence.
func SequenceNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: seqTag}
}

// StringNode returns a string scalar. The encoder quotes it when the plain
// form would resolve to another type.
func StringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: value}
}

// BoolNode returns a boolean scalar.
func BoolNode(value bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: boolTag, Value: strconv.FormatBool(value)}
}

// NullNode returns a null scalar.
func NullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: nullTag, Value: "null"}
}

// IsMapping reports whether node (after alias resolution) is a mapping.
func IsMapping(node *yaml.Node) bool {
	node = resolveAlias(node)
	return node != nil && node.Kind == yaml.MappingNode
}

// IsEmptyMapping reports whether node is a mapping without keys.
func IsEmptyMapping(node *yaml.Node) bool {
	return IsMapping(node) && len(resolveAlias(node).Content) == 0
}

// MappingKeys lists the keys of a mapping in order.
func MappingKeys(mapping *yaml.Node) []string {
	mapping = resolveAlias(mapping)
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	return keys
}

// MappingValue returns the value stored under key, or nil.
func MappingValue(mapping *yaml.Node, key string) *yaml.Node {
	mapping = resolveAlias(mapping)
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	if idx := keyIndex(mapping, key); idx >= 0 {
		return mapping.Content[idx+1]
	}
	return nil
}

// SetMappingValue replaces the value under key in place, or appends the pair
// when the key is new. Existing key nodes keep their comments.
func SetMappingValue(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping = resolveAlias(mapping)
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return
	}
	if idx := keyIndex(mapping, key); idx >= 0 {
		mapping.Content[idx+1] = value
		return
	}
	mapping.Content = append(mapping.Content, StringNode(key), value)
}

// DeleteMappingKey removes key and reports whether it was present.
func DeleteMappingKey(mapping *yaml.Node, key string) bool {
	mapping = resolveAlias(mapping)
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return false
	}
	idx := keyIndex(mapping, key)
	if idx < 0 {
		return false
	}
	mapping.Content = append(mapping.Content[:idx], mapping.Content[idx+2:]...)
	return true
}

// CloneNode deep-copies node. Aliases in the copy point at copied anchors.
func CloneNode(node *yaml.Node) *yaml.Node {
	return cloneNode(node, make(map[*yaml.Node]*yaml.Node))
}

func cloneNode(node *yaml.Node, seen map[*yaml.Node]*yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if c, ok := seen[node]; ok {
		return c
	}
	c := *node
	seen[node] = &c
	if node.Alias != nil {
		c.Alias = cloneNode(node.Alias, seen)
	}
	if node.Content != nil {
		c.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			c.Content[i] = cloneNode(child, seen)
		}
	}
	return &c
}

func keyIndex(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if resolveAlias(mapping.Content[i]).Value == key {
			return i
		}
	}
	return -1
}

// Resolve follows alias nodes to the node they point at.
func Resolve(node *yaml.Node) *yaml.Node {
	return resolveAlias(node)
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for depth := 0; node != nil && node.Kind == yaml.AliasNode && depth < 32; depth++ {
		node = node.Alias
	}
	return node
}
