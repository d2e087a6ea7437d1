package schema

import (
	"fmt"
	"reflect"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "int").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type primitive struct {
	name   string
	accept func(v any) bool
}

func (t primitive) Name() string { return t.name }

func (t primitive) Validate(value any) error {
	if !t.accept(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// String creates a string type validator.
func String() Type {
	return primitive{name: "string", accept: func(v any) bool { _, ok := v.(string); return ok }}
}

// Int creates an integer type validator. Whole floats are accepted (JSON numbers).
func Int() Type {
	return primitive{name: "int", accept: func(v any) bool {
		switch n := v.(type) {
		case int, int8, int16, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	}}
}

// Float creates a float type validator.
func Float() Type {
	return primitive{name: "float", accept: func(v any) bool {
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return true
		}
		return false
	}}
}

// Bool creates a boolean type validator.
func Bool() Type {
	return primitive{name: "bool", accept: func(v any) bool { _, ok := v.(bool); return ok }}
}

// Any accepts every present value.
func Any() Type {
	return primitive{name: "any", accept: func(any) bool { return true }}
}

// Slice creates a slice type validator for elements of the given type.
func Slice(elem Type) Type {
	return sliceType{elem: elem}
}

// ParseType converts a type name to a Type: "string", "int", "float", "bool", "any" or "[T]".
func ParseType(typeStr string) (Type, error) {
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elem, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}

	switch typeStr {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "any":
		return Any(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

// ParseTypeMap converts a map of field names to type strings into Fields.
func ParseTypeMap(typeMap map[string]string) (Fields, error) {
	result := make(Fields, len(typeMap))
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
