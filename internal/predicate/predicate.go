// Package predicate provides composable inclusion/exclusion predicates
// evaluated against chunk metadata during vector search.
package predicate

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Record is the metadata a predicate is evaluated against.
type Record struct {
	FilePath     string
	Language     string
	SemanticType string
}

// Predicate is a node in a filter tree.
type Predicate interface {
	Matches(r Record) bool
}

// Field selects which record attribute a leaf predicate inspects.
type Field int

const (
	FieldFilePath Field = iota
	FieldLanguage
	FieldSemanticType
)

func fieldValue(f Field, r Record) string {
	switch f {
	case FieldFilePath:
		return r.FilePath
	case FieldLanguage:
		return r.Language
	case FieldSemanticType:
		return r.SemanticType
	}
	return ""
}

// Equals matches when the field equals Value exactly.
type Equals struct {
	Field Field
	Value string
}

func (p Equals) Matches(r Record) bool {
	return fieldValue(p.Field, r) == p.Value
}

// GlobMatch matches the field against a gitignore-style glob pattern.
// Patterns without a slash match against the final path element as well
// as the whole value, so "*.py" matches "src/main.py".
type GlobMatch struct {
	Field   Field
	Pattern string
}

func (p GlobMatch) Matches(r Record) bool {
	value := fieldValue(p.Field, r)
	if ok, err := doublestar.Match(p.Pattern, value); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match("**/"+p.Pattern, value); err == nil && ok {
		return true
	}
	return false
}

// Not inverts its child.
type Not struct {
	Child Predicate
}

func (p Not) Matches(r Record) bool {
	return !p.Child.Matches(r)
}

// And matches when every child matches. An empty And matches everything.
type And struct {
	Children []Predicate
}

func (p And) Matches(r Record) bool {
	for _, c := range p.Children {
		if !c.Matches(r) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. An empty Or matches nothing.
type Or struct {
	Children []Predicate
}

func (p Or) Matches(r Record) bool {
	for _, c := range p.Children {
		if c.Matches(r) {
			return true
		}
	}
	return false
}
