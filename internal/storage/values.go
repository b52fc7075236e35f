package storage

import "github.com/apparatuslabs/apparatus/internal/model"

// assembleParamValue rebuilds a typed param value from the sparse value
// columns. Rows written by this package always populate the column matching
// value_type; a nil column for the tagged type yields the zero value.
func assembleParamValue(typeTag string, text *string, boolVal *bool, intVal *int64, floatVal *float64) model.ParamValue {
	v := model.ParamValue{Type: model.ParamType(typeTag)}
	switch v.Type {
	case model.ParamString:
		if text != nil {
			v.Text = *text
		}
	case model.ParamBool:
		if boolVal != nil {
			v.Bool = *boolVal
		}
	case model.ParamInt:
		if intVal != nil {
			v.Int = *intVal
		}
	case model.ParamFloat:
		if floatVal != nil {
			v.Float = *floatVal
		}
	}
	return v
}
