package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ParamType tags the kind of a logged parameter value.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamBool   ParamType = "bool"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
)

// ErrInvalidParamType is returned when a value type tag is not one of the
// four enumerated kinds.
var ErrInvalidParamType = errors.New("unsupported param value type")

// ParamValue is a tagged union over the four param value kinds. Exactly one
// of the value fields is meaningful, selected by Type. Numeric kinds keep
// their native representation: ints are never coerced to float and floats
// are never truncated.
type ParamValue struct {
	Type  ParamType
	Text  string
	Bool  bool
	Int   int64
	Float float64
}

// ParseParamValue decodes the wire representation (a string value plus a
// type tag) into a typed value. An unknown tag yields ErrInvalidParamType;
// an unparseable numeric or boolean value yields a descriptive error.
func ParseParamValue(typeTag, raw string) (ParamValue, error) {
	switch ParamType(typeTag) {
	case ParamString:
		return ParamValue{Type: ParamString, Text: raw}, nil
	case ParamBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return ParamValue{}, fmt.Errorf("invalid bool value %q", raw)
		}
		return ParamValue{Type: ParamBool, Bool: b}, nil
	case ParamInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("invalid int value %q", raw)
		}
		return ParamValue{Type: ParamInt, Int: n}, nil
	case ParamFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("invalid float value %q", raw)
		}
		return ParamValue{Type: ParamFloat, Float: f}, nil
	default:
		return ParamValue{}, fmt.Errorf("%w: %q", ErrInvalidParamType, typeTag)
	}
}

// Native returns the Go value for JSON encoding.
func (v ParamValue) Native() any {
	switch v.Type {
	case ParamBool:
		return v.Bool
	case ParamInt:
		return v.Int
	case ParamFloat:
		return v.Float
	default:
		return v.Text
	}
}

// String renders the value the way it appeared on the wire.
func (v ParamValue) String() string {
	switch v.Type {
	case ParamBool:
		return strconv.FormatBool(v.Bool)
	case ParamInt:
		return strconv.FormatInt(v.Int, 10)
	case ParamFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Text
	}
}

// Param is a logged key/value pair scoped to a run. Keyed by (run_id, key);
// re-logging the same key overwrites the previous value, including its type.
type Param struct {
	RunID     uuid.UUID
	Key       string
	Value     ParamValue
	UpdatedAt time.Time
}
