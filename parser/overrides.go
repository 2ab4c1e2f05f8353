package parser

import "strings"

// Override forces field values for one product. Empty fields are left alone.
type Override struct {
	Title  string
	Author string
}

// Overrides maps product identifiers to forced field values.
type Overrides map[string]Override

// NewOverrides copies in with upper-cased product identifiers.
func NewOverrides(in map[string]Override) Overrides {
	out := make(Overrides, len(in))
	for id, o := range in {
		out[strings.ToUpper(strings.TrimSpace(id))] = o
	}
	return out
}

// Apply replaces extracted fields for productID. It reports whether an entry matched.
func (o Overrides) Apply(productID string, f *Fields) bool {
	if len(o) == 0 || productID == "" {
		return false
	}
	entry, ok := o[strings.ToUpper(productID)]
	if !ok {
		return false
	}
	if entry.Title != "" {
		title := entry.Title
		f.Title = &title
	}
	if entry.Author != "" {
		author := entry.Author
		f.Author = &author
	}
	return true
}
