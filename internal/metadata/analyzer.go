package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// TypeMetadata holds the queryable properties of a struct type
type TypeMetadata struct {
	Type       reflect.Type
	Name       string
	Properties []PropertyMetadata

	byName map[string]int
}

// PropertyMetadata holds metadata information about a struct field exposed to queries
type PropertyMetadata struct {
	Name      string // Name used in query text
	FieldName string
	Field     reflect.StructField
	Type      reflect.Type
	// IsCollection is true for slice and array fields
	IsCollection bool
	// IsMap is true for map fields with string keys, which support dotted key lookups
	IsMap bool
}

// Property returns the property matching name case-insensitively.
func (m *TypeMetadata) Property(name string) (*PropertyMetadata, bool) {
	i, ok := m.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &m.Properties[i], true
}

// AnalyzeType extracts the queryable properties of a struct type
func AnalyzeType(t reflect.Type) (*TypeMetadata, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct, got %s", t.Kind())
	}

	metadata := &TypeMetadata{
		Type:   t,
		Name:   t.Name(),
		byName: make(map[string]int),
	}

	for _, field := range reflect.VisibleFields(t) {
		// Skip unexported, embedded and hidden fields
		if !field.IsExported() || field.Anonymous || !reachable(t, field.Index) {
			continue
		}

		property, ok := analyzeField(field)
		if !ok {
			continue
		}

		key := strings.ToLower(property.Name)
		if _, dup := metadata.byName[key]; dup {
			return nil, fmt.Errorf("type %s has more than one property named %s", t, property.Name)
		}
		metadata.byName[key] = len(metadata.Properties)
		metadata.Properties = append(metadata.Properties, property)
	}

	return metadata, nil
}

// reachable reports whether a promoted field can be read without passing through
// an embedded pointer.
func reachable(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Ptr {
			return false
		}
		t = f.Type
	}
	return true
}

// analyzeField analyzes a single struct field and creates a PropertyMetadata
func analyzeField(field reflect.StructField) (PropertyMetadata, bool) {
	name := PropertyName(field)
	if name == "" {
		return PropertyMetadata{}, false
	}

	property := PropertyMetadata{
		Name:      name,
		FieldName: field.Name,
		Field:     field,
		Type:      field.Type,
	}

	switch field.Type.Kind() {
	case reflect.Slice, reflect.Array:
		property.IsCollection = true
	case reflect.Map:
		property.IsMap = field.Type.Key().Kind() == reflect.String
	}

	return property, true
}

// PropertyName returns the query name of a struct field: the value of its `query`
// tag when present, otherwise the field name in lower camel case. A tag of "-"
// hides the field and yields "".
func PropertyName(field reflect.StructField) string {
	if tag := field.Tag.Get("query"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return LowerCamel(field.Name)
}

// LowerCamel lower-cases the leading upper case run of an identifier, keeping the
// last letter of an acronym upper case when a word follows: ID -> id,
// SomeList -> someList, URLPath -> urlPath.
func LowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n > 1 && n < len(runes) && unicode.IsLower(runes[n]):
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// IsIdentifier reports whether s can be written as a bare identifier in query text.
func IsIdentifier(s string) bool {
	if s == "" || IsKeyword(s) {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "as": true,
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"add": true, "sub": true, "mul": true, "div": true, "mod": true,
}

// IsKeyword reports whether s is reserved by the grammar.
func IsKeyword(s string) bool { return keywords[strings.ToLower(s)] }
