package dublincore

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/MikeSquared-Agency/postarchive/internal/metadata"
)

// DefaultTitle is used when no title can be resolved; ingest rejects an
// empty one.
const DefaultTitle = "Default Title"

const (
	namespace         = "http://www.opencastproject.org/xsd/1.0/dublincore/"
	termsNamespace    = "http://purl.org/dc/terms/"
	instanceNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

// Field maps a metadata key onto a Dublin Core term. Fallback is only
// evaluated when the key is absent; it may be nil.
type Field struct {
	Term     string
	Key      string
	Fallback func() string
}

// Entry is one resolved term.
type Entry struct {
	Term  string
	Value string
}

// Catalog is an ordered set of uniquely keyed Dublin Core terms.
type Catalog struct {
	entries []Entry
}

// Resolve evaluates fields against the bag. A field whose key and fallback
// are both empty is left out of the catalog. The title is always present.
func Resolve(bag metadata.Bag, fields []Field) *Catalog {
	c := &Catalog{}
	for _, f := range fields {
		v, ok := bag.Lookup(f.Key)
		if !ok && f.Fallback != nil {
			v = f.Fallback()
		}
		if v != "" {
			c.Set(f.Term, v)
		}
	}
	if c.Get("title") == "" {
		c.Set("title", DefaultTitle)
	}
	return c
}

// Get returns the value of term, or "".
func (c *Catalog) Get(term string) string {
	for _, e := range c.entries {
		if e.Term == term {
			return e.Value
		}
	}
	return ""
}

// Set replaces term's value in place, or appends it.
func (c *Catalog) Set(term, value string) {
	for i := range c.entries {
		if c.entries[i].Term == term {
			c.entries[i].Value = value
			return
		}
	}
	c.entries = append(c.entries, Entry{Term: term, Value: value})
}

// Delete removes term.
func (c *Catalog) Delete(term string) {
	for i := range c.entries {
		if c.entries[i].Term == term {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Entries returns the terms in document order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// XML renders the catalog as an Opencast Dublin Core document. The title
// is written first, the other terms follow in resolution order.
func (c *Catalog) XML() (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("dublincore")
	root.CreateAttr("xmlns", namespace)
	root.CreateAttr("xmlns:dcterms", termsNamespace)
	root.CreateAttr("xmlns:xsi", instanceNamespace)

	title := c.Get("title")
	if title == "" {
		title = DefaultTitle
	}
	root.CreateElement("dcterms:title").SetText(title)
	for _, e := range c.entries {
		if e.Term == "title" {
			continue
		}
		el := root.CreateElement("dcterms:" + e.Term)
		el.SetText(e.Value)
		if e.Term == "created" {
			el.CreateAttr("xsi:type", "dcterms:W3CDTF")
		}
	}

	doc.Indent(2)
	s, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("write dublincore: %w", err)
	}
	return s, nil
}

// Created formats an epoch-millisecond timestamp for dcterms:created. The
// element is written with xsi:type dcterms:W3CDTF.
func Created(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Temporal formats a W3C-DTF period for dcterms:temporal.
func Temporal(startMs, endMs int64) string {
	return fmt.Sprintf("start=%s; end=%s; scheme=W3C-DTF;", Created(startMs), Created(endMs))
}
