package querytext

import (
	"fmt"
	"reflect"

	"github.com/nlstn/go-querytext/internal/convert"
	"github.com/nlstn/go-querytext/internal/metadata"
)

// Resolver maps names in query text to expressions and types.
type Resolver = convert.Resolver

// TypeResolver is the reflection based Resolver. Properties resolve against
// struct fields and map keys. Type names resolve against registered types.
type TypeResolver = metadata.Resolver

// NewResolver returns a TypeResolver with types registered for isof and cast.
// Each argument is a reflect.Type or a value of the type to register; pointers
// register their element type.
func NewResolver(types ...any) (*TypeResolver, error) {
	ts := make([]reflect.Type, 0, len(types))
	for _, v := range types {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		if t == nil {
			return nil, fmt.Errorf("cannot register the type of a nil value")
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		ts = append(ts, t)
	}
	return metadata.NewResolver(ts...)
}
