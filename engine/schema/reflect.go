package schema

import "reflect"

// ReflectProvider is a minimal default Provider that describes a Go
// type by its reflect.Type and validates structurally: a value
// conforms if it is assignable to (or, for structs, has every
// exported field present in) the described type. It does not attempt
// full JSON-schema semantics — it exists so tests and the CLI have a
// working default without standing up a real schema service.
type ReflectProvider struct{}

// NewReflectProvider constructs a ReflectProvider.
func NewReflectProvider() *ReflectProvider {
	return &ReflectProvider{}
}

// Describe returns typ's reflect.Type. typ may be a reflect.Type
// already, a zero value of the target type, or a pointer to one.
func (p *ReflectProvider) Describe(typ any) (Schema, error) {
	if t, ok := typ.(reflect.Type); ok {
		return t, nil
	}
	t := reflect.TypeOf(typ)
	if t == nil {
		return nil, nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t, nil
}

// Validate checks value's runtime type against schema (expected to be
// a reflect.Type, as returned by Describe). Structs validate by
// requiring every exported field of the schema type to be present
// with an assignable value on the input struct; everything else
// requires an exact or assignable type match.
func (p *ReflectProvider) Validate(value any, sch Schema) bool {
	want, ok := sch.(reflect.Type)
	if !ok || want == nil {
		return true
	}

	got := reflect.ValueOf(value)
	if !got.IsValid() {
		return false
	}
	for got.Kind() == reflect.Ptr {
		got = got.Elem()
	}

	if want.Kind() == reflect.Ptr {
		want = want.Elem()
	}

	if want.Kind() != reflect.Struct || got.Kind() != reflect.Struct {
		return got.Type().AssignableTo(want) || got.Type() == want
	}

	for i := 0; i < want.NumField(); i++ {
		field := want.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		fv := got.FieldByName(field.Name)
		if !fv.IsValid() {
			return false
		}
		if !fv.Type().AssignableTo(field.Type) {
			return false
		}
	}
	return true
}
