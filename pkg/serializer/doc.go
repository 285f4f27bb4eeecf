// Package serializer converts field values to and from the text form
// stored in the change log.
//
// # Overview
//
// A Registry maps a value's exact runtime type to a Handler, a pair of
// functions that encode the value as a string and restore it again.
// Handlers are looked up by reflect.Type identity only: a named type is
// never matched through its underlying type, so a custom type always
// requires its own registration. Every handler also carries a stable
// name; the name is persisted alongside each tracked field and drives
// deserialization on the read path, where the original Go type is no
// longer in hand.
//
// # Round-trip guarantee
//
// Every built-in handler satisfies Deserialize(Serialize(v)) == v for
// all valid v of its type. Floating-point values are encoded with the
// shortest representation that parses back to the identical bits, not
// a fixed-precision format.
//
// # Usage Example
//
// Register a custom type:
//
//	reg := serializer.NewRegistry()
//	reg.Register(Temperature(0), "temperature", serializer.Handler{
//		Serialize:   func(v any) (string, error) { ... },
//		Deserialize: func(s string) (any, error) { ... },
//	})
//
// Registration during active traffic is out of contract; register all
// custom handlers at startup.
package serializer
