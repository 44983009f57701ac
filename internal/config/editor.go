package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is an editable YAML document. Edits keep comments and key order.
type Document struct {
	root *yaml.Node
}

// ParseDocument parses YAML for editing. Empty input yields an empty mapping.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("configuration must be a YAML mapping")
	}
	return &Document{root: &root}, nil
}

// Get returns the scalar value at a dotted path.
func (d *Document) Get(path string) (string, bool) {
	n := d.lookup(splitPath(path), false)
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

// Set assigns a scalar at a dotted path, creating intermediate mappings.
// Booleans, integers and null keep their YAML type; anything else is a
// string. Replacing a string keeps it a string.
func (d *Document) Set(path, value string) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("empty path")
	}
	parent := d.lookup(keys[:len(keys)-1], true)
	if parent == nil || parent.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: parent is not a mapping", path)
	}
	scalar := scalarNode(value)
	last := keys[len(keys)-1]
	if i := mappingIndex(parent, last); i >= 0 {
		existing := parent.Content[i+1]
		if existing.Kind != yaml.ScalarNode {
			return fmt.Errorf("%s: cannot replace a %s with a scalar", path, kindName(existing.Kind))
		}
		if existing.Tag == "!!str" {
			scalar.Tag, scalar.Value = "!!str", value
			scalar.Style = existing.Style
		}
		scalar.LineComment = existing.LineComment
		scalar.HeadComment = existing.HeadComment
		parent.Content[i+1] = scalar
		return nil
	}
	parent.Content = append(parent.Content, keyNode(last), scalar)
	return nil
}

// SetValue encodes v and stores it at a dotted path, replacing any
// existing node.
func (d *Document) SetValue(path string, v any) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("empty path")
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	parent := d.lookup(keys[:len(keys)-1], true)
	if parent == nil || parent.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: parent is not a mapping", path)
	}
	last := keys[len(keys)-1]
	if i := mappingIndex(parent, last); i >= 0 {
		parent.Content[i+1] = &node
		return nil
	}
	parent.Content = append(parent.Content, keyNode(last), &node)
	return nil
}

// Bytes renders the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) lookup(keys []string, create bool) *yaml.Node {
	n := d.root.Content[0]
	for _, k := range keys {
		if n.Kind != yaml.MappingNode {
			return nil
		}
		i := mappingIndex(n, k)
		if i < 0 {
			if !create {
				return nil
			}
			child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			n.Content = append(n.Content, keyNode(k), child)
			n = child
			continue
		}
		next := n.Content[i+1]
		// "targets: {}" is flow style; switch to block once it gets children.
		if create && next.Kind == yaml.MappingNode {
			next.Style = 0
		}
		if create && next.Kind == yaml.ScalarNode && next.Tag == "!!null" {
			next.Kind, next.Tag, next.Value = yaml.MappingNode, "!!map", ""
		}
		n = next
	}
	if create && n.Kind == yaml.MappingNode {
		n.Style = 0
	}
	return n
}

func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func keyNode(k string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
}

func scalarNode(v string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: v, Tag: "!!str"}
	switch strings.ToLower(v) {
	case "true", "false":
		n.Tag, n.Value = "!!bool", strings.ToLower(v)
		return n
	case "null", "~":
		n.Tag, n.Value = "!!null", "null"
		return n
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		n.Tag = "!!int"
	}
	return n
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	default:
		return "node"
	}
}
