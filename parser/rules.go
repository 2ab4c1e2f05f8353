package parser

import (
	"bytes"
	"cmp"
	"encoding/json"
	"html"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a fetched page body plus its parsed DOM. DOM may be nil when
// the markup could not be parsed; selector matchers then never match.
type Document struct {
	Raw string
	DOM *goquery.Document

	text    string
	hasText bool
}

// NewDocument parses body once for all rules.
func NewDocument(body string) *Document {
	doc := &Document{Raw: body}
	if dom, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		doc.DOM = dom
	}
	return doc
}

// Text returns the document's visible text with whitespace collapsed.
func (d *Document) Text() string {
	if !d.hasText {
		if d.DOM != nil {
			d.text = strings.Join(strings.Fields(d.DOM.Text()), " ")
		}
		d.hasText = true
	}
	return d.text
}

// Matcher finds a raw candidate value in a document.
type Matcher interface {
	Match(doc *Document) (string, bool)
}

// Rule is one entry of a field's extraction table.
type Rule struct {
	Priority int
	Name     string
	Matcher  Matcher
	// Post normalises a matched value; ok=false rejects it.
	Post func(string) (string, bool)
}

// SortRules orders rules by ascending priority, keeping table order for ties.
func SortRules(rules []Rule) []Rule {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return rules
}

// FirstMatch evaluates rules in priority order and returns the first
// post-processed non-empty value along with the winning rule's name.
func FirstMatch(rules []Rule, doc *Document) (value, rule string, ok bool) {
	for _, r := range rules {
		raw, matched := r.Matcher.Match(doc)
		if !matched {
			continue
		}
		v := strings.TrimSpace(raw)
		if r.Post != nil {
			var keep bool
			if v, keep = r.Post(v); !keep {
				continue
			}
		}
		if v == "" {
			continue
		}
		return v, r.Name, true
	}
	return "", "", false
}

// Pattern matches the first capture group of a regular expression against the raw body.
type Pattern struct {
	Re *regexp.Regexp
}

// Match implements Matcher.
func (p Pattern) Match(doc *Document) (string, bool) {
	m := p.Re.FindStringSubmatch(doc.Raw)
	if len(m) < 2 {
		return "", false
	}
	return html.UnescapeString(m[1]), true
}

// TextPattern matches a regular expression against the document text rather than its markup.
type TextPattern struct {
	Re *regexp.Regexp
}

// Match implements Matcher.
func (p TextPattern) Match(doc *Document) (string, bool) {
	m := p.Re.FindStringSubmatch(doc.Text())
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Selector matches the first element for Query; Attr selects an attribute
// instead of the element text. Contains, when set, must appear in the element text.
type Selector struct {
	Query    string
	Attr     string
	Contains string
	// Child, when set, reads the value from this descendant of the matched element.
	Child string
}

// Match implements Matcher.
func (s Selector) Match(doc *Document) (string, bool) {
	if doc.DOM == nil {
		return "", false
	}
	var (
		value string
		found bool
	)
	doc.DOM.Find(s.Query).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if s.Contains != "" && !strings.Contains(sel.Text(), s.Contains) {
			return true
		}
		if s.Child != "" {
			sel = sel.Find(s.Child).First()
			if sel.Length() == 0 {
				return true
			}
		}
		if s.Attr != "" {
			value, found = sel.Attr(s.Attr)
		} else {
			value, found = sel.Text(), true
		}
		return !found
	})
	return value, found
}

// JSONLD reads a property from the first embedded application/ld+json block carrying it.
// Object values yield their "name"; arrays yield their first usable element.
type JSONLD struct {
	Key string
}

// Match implements Matcher.
func (j JSONLD) Match(doc *Document) (string, bool) {
	if doc.DOM == nil {
		return "", false
	}
	var (
		value string
		found bool
	)
	doc.DOM.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		value, found = lookupLD(payload, j.Key)
		return !found
	})
	return value, found
}

func lookupLD(node any, key string) (string, bool) {
	switch n := node.(type) {
	case map[string]any:
		if v, ok := n[key]; ok {
			if s, ok := ldName(v); ok {
				return s, true
			}
		}
		if graph, ok := n["@graph"]; ok {
			return lookupLD(graph, key)
		}
	case []any:
		for _, item := range n {
			if s, ok := lookupLD(item, key); ok {
				return s, true
			}
		}
	}
	return "", false
}

func ldName(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		if name, ok := t["name"].(string); ok && name != "" {
			return name, true
		}
	case []any:
		for _, item := range t {
			if s, ok := ldName(item); ok {
				return s, true
			}
		}
	}
	return "", false
}

// FirstJSONKey returns the first key of a JSON object in document order.
func FirstJSONKey(raw string) (string, bool) {
	if !json.Valid([]byte(raw)) {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
