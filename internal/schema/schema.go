// Package schema resolves the columns of tabular inputs. Each input file has
// a declared Schema listing its logical fields and the header spellings
// accepted for each one. Resolution happens once per file; downstream code
// only ever sees canonical field names.
package schema

import (
	"fmt"
	"strings"

	apperrors "shockstudy/internal/errors"
)

// Field is a logical column with its accepted header spellings
type Field struct {
	Name     string
	Aliases  []string
	Optional bool
}

// candidates returns the canonical name followed by its aliases
func (f Field) candidates() []string {
	return append([]string{f.Name}, f.Aliases...)
}

// Schema declares the fields of one artifact
type Schema struct {
	// Artifact names the file in error messages
	Artifact string
	// ProducedBy is the stage that writes the artifact
	ProducedBy string
	Fields     []Field
}

// Mapping is a schema resolved against a concrete header
type Mapping struct {
	schema *Schema
	index  map[string]int
}

// Resolve binds every field to a header column. Exact spellings are tried
// first in alias order, then a case-insensitive match. A missing required
// field is a MissingInput error naming the artifact, the field and the
// stage that produces it.
func (s *Schema) Resolve(header []string) (*Mapping, error) {
	exact := make(map[string]int, len(header))
	folded := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := exact[h]; !ok {
			exact[h] = i
		}
		if _, ok := folded[strings.ToLower(h)]; !ok {
			folded[strings.ToLower(h)] = i
		}
	}

	m := &Mapping{schema: s, index: make(map[string]int, len(s.Fields))}
	for _, f := range s.Fields {
		col, ok := lookup(f, exact, folded)
		if !ok {
			if f.Optional {
				continue
			}
			return nil, apperrors.NewMissingInputError(
				fmt.Sprintf("%s column %q", s.Artifact, f.Name), s.ProducedBy, nil).
				WithContext("accepted", f.candidates()).
				WithContext("header", header)
		}
		m.index[f.Name] = col
	}
	return m, nil
}

func lookup(f Field, exact, folded map[string]int) (int, bool) {
	for _, c := range f.candidates() {
		if i, ok := exact[c]; ok {
			return i, true
		}
	}
	for _, c := range f.candidates() {
		if i, ok := folded[strings.ToLower(c)]; ok {
			return i, true
		}
	}
	return 0, false
}

// Has reports whether an optional field was found
func (m *Mapping) Has(field string) bool {
	_, ok := m.index[field]
	return ok
}

// Column returns the header position of a field, or -1
func (m *Mapping) Column(field string) int {
	if i, ok := m.index[field]; ok {
		return i
	}
	return -1
}

// Columns returns the set of header positions claimed by the schema
func (m *Mapping) Columns() map[int]string {
	out := make(map[int]string, len(m.index))
	for name, i := range m.index {
		out[i] = name
	}
	return out
}
