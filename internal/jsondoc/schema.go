package jsondoc

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// reflectSchema returns the JSON Schema of T, or nil when T is not a struct or
// a pointer to one.
func reflectSchema[T any]() *jsonschema.Schema {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, ExpandedStruct: true}
	return r.ReflectFromType(t)
}
