// Package schema defines the external schema-provider contract the
// engine consumes for Suspend resume validation and for surfacing
// prompt schemas to UIs. Engines consume pre-computed schemas via an
// injected Provider; reflecting schemas out of source annotations is
// out of scope.
package schema

// Schema is an opaque, provider-defined description of a type. The
// engine never inspects its contents directly — it only passes Schema
// values back into Validate.
type Schema any

// Provider describes types and validates values against those
// descriptions. A nil Provider is valid engine configuration: the
// engine skips validation entirely when none is configured.
type Provider interface {
	// Describe returns the schema for typ, or (nil, nil) if typ is not
	// describable by this provider.
	Describe(typ any) (Schema, error)

	// Validate reports whether value conforms to schema.
	Validate(value any, schema Schema) bool
}
