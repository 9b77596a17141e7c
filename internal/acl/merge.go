package acl

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Node is the comparable shape of an XML element: local name, trimmed
// text and child elements in order. Attributes and namespace prefixes
// are ignored.
type Node struct {
	Name     string
	Text     string
	Children []Node
}

// NodeOf converts an element and its subtree into a Node.
func NodeOf(el *etree.Element) Node {
	n := Node{Name: el.Tag, Text: strings.TrimSpace(el.Text())}
	for _, c := range el.ChildElements() {
		n.Children = append(n.Children, NodeOf(c))
	}
	return n
}

// Equal reports structural equality. Nodes with a different number of
// children are never equal.
func (n Node) Equal(o Node) bool {
	if n.Name != o.Name || n.Text != o.Text || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func aceNode(r Rule) Node {
	return Node{Name: "ace", Children: []Node{
		{Name: "action", Text: string(r.Permission)},
		{Name: "allow", Text: "true"},
		{Name: "role", Text: r.Principal},
	}}
}

// Merge adds the rules missing from an existing series ACL document and
// returns the result. An empty document is treated as an empty list.
// Merging the same rules twice yields the same document as merging once,
// and a rule repeated in rules is added once.
func Merge(existing string, rules []Rule) (string, error) {
	if strings.TrimSpace(existing) == "" {
		missing, err := MissingRules("", rules)
		if err != nil {
			return "", err
		}
		return SeriesACL(missing)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(existing); err != nil {
		return "", fmt.Errorf("parse series acl: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return Merge("", rules)
	}

	var present []Node
	for _, el := range findAll(root, "ace") {
		present = append(present, NodeOf(el))
	}

	for _, r := range rules {
		candidate := aceNode(r)
		if contains(present, candidate) {
			continue
		}
		appendACE(root, r)
		present = append(present, candidate)
	}

	return write(doc)
}

// MissingRules returns the rules not yet granted by the existing document.
func MissingRules(existing string, rules []Rule) ([]Rule, error) {
	var present []Node
	if strings.TrimSpace(existing) != "" {
		doc := etree.NewDocument()
		if err := doc.ReadFromString(existing); err != nil {
			return nil, fmt.Errorf("parse series acl: %w", err)
		}
		if root := doc.Root(); root != nil {
			for _, el := range findAll(root, "ace") {
				present = append(present, NodeOf(el))
			}
		}
	}

	var missing []Rule
	for _, r := range rules {
		candidate := aceNode(r)
		if contains(present, candidate) {
			continue
		}
		missing = append(missing, r)
		present = append(present, candidate)
	}
	return missing, nil
}

func contains(nodes []Node, n Node) bool {
	for _, p := range nodes {
		if p.Equal(n) {
			return true
		}
	}
	return false
}

func findAll(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
			continue
		}
		out = append(out, findAll(c, tag)...)
	}
	return out
}
