package types

// Struct is a record value with named fields.
//
// Get returns the value of the named field. Implementations backed by a schema may
// return an error for fields the schema does not declare; a schemaless implementation
// reports a missing field as nil.
type Struct interface {
	Get(field string) (any, error)
}

// MapStruct is a schemaless Struct, typically decoded from a JSON object.
type MapStruct map[string]any

// Get returns the field value, or nil if the field is not present.
func (m MapStruct) Get(field string) (any, error) {
	return m[field], nil
}
